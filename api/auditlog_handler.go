package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/id"
)

func (a *API) registerAuditLogRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("audit-log"))

	if err := g.GET("/audit-log", a.listAuditEntries,
		forge.WithSummary("Query audit log"),
		forge.WithDescription("Returns decision and impersonation audit entries with optional filters."),
		forge.WithOperationID("listAuditEntries"),
		forge.WithRequestSchema(ListAuditEntriesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Audit entry list", []*auditlog.Entry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/audit-log/:entryId", a.getAuditEntry,
		forge.WithSummary("Get audit entry"),
		forge.WithDescription("Returns a single audit entry."),
		forge.WithOperationID("getAuditEntry"),
		forge.WithResponseSchema(http.StatusOK, "Audit entry", &auditlog.Entry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/audit-log/purge", a.purgeAuditEntries,
		forge.WithSummary("Purge audit log"),
		forge.WithDescription("Removes audit entries older than the cutoff."),
		forge.WithOperationID("purgeAuditEntries"),
		forge.WithRequestSchema(PurgeAuditEntriesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Purge result", PurgeResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listAuditEntries(ctx forge.Context, req *ListAuditEntriesRequest) ([]*auditlog.Entry, error) {
	filter := &auditlog.QueryFilter{
		Kind:     auditlog.Kind(req.Kind),
		ActorID:  req.ActorID,
		TargetID: req.TargetID,
		Outcome:  req.Outcome,
		Limit:    defaultLimit(req.Limit),
		Offset:   req.Offset,
	}

	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest("invalid after timestamp")
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		filter.Before = &t
	}

	entries, err := a.eng.Store().ListAuditEntries(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	return entries, ctx.JSON(http.StatusOK, entries)
}

func (a *API) getAuditEntry(ctx forge.Context, _ *GetAuditEntryRequest) (*auditlog.Entry, error) {
	entryID, err := id.ParseAuditEntryID(ctx.Param("entryId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid audit entry ID: %v", err))
	}

	entry, err := a.eng.Store().GetAuditEntry(ctx.Context(), entryID)
	if err != nil {
		return nil, mapError(err)
	}

	return entry, ctx.JSON(http.StatusOK, entry)
}

func (a *API) purgeAuditEntries(ctx forge.Context, req *PurgeAuditEntriesRequest) (*PurgeResponse, error) {
	cutoff, err := time.Parse(time.RFC3339, req.Before)
	if err != nil {
		return nil, forge.BadRequest("invalid before timestamp")
	}

	purged, err := a.eng.Store().PurgeAuditEntries(ctx.Context(), cutoff)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &PurgeResponse{Purged: purged}
	return resp, ctx.JSON(http.StatusOK, resp)
}
