package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
)

func (a *API) registerGrantRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("grants"))

	if err := g.PUT("/grants", a.setGrant,
		forge.WithSummary("Set grant"),
		forge.WithDescription("Writes a sub-user permission grant. The latest write per (user, key) wins."),
		forge.WithOperationID("setGrant"),
		forge.WithRequestSchema(SetGrantRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Written grant", &permission.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/grants/:grantId", a.getGrant,
		forge.WithSummary("Get grant"),
		forge.WithDescription("Returns details of a specific grant."),
		forge.WithOperationID("getGrant"),
		forge.WithResponseSchema(http.StatusOK, "Grant details", &permission.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/grants/:grantId", a.deleteGrant,
		forge.WithSummary("Delete grant"),
		forge.WithDescription("Removes a grant row. The key falls back to not granted."),
		forge.WithOperationID("deleteGrant"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/grants", a.listGrants,
		forge.WithSummary("List grants"),
		forge.WithDescription("Lists grants with optional filters."),
		forge.WithOperationID("listGrants"),
		forge.WithRequestSchema(ListGrantsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Grant list", []*permission.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/users/:userId/permissions", a.getUserPermissions,
		forge.WithSummary("Get effective permission set"),
		forge.WithDescription("Returns a sub-user's effective grant matrix. Absent keys are not granted."),
		forge.WithOperationID("getUserPermissions"),
		forge.WithResponseSchema(http.StatusOK, "Permission set", PermissionSetResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) setGrant(ctx forge.Context, req *SetGrantRequest) (*permission.Grant, error) {
	if req.UserID == "" {
		return nil, forge.BadRequest("user_id is required")
	}
	key := permission.Key(req.Key)
	if err := key.Validate(); err != nil {
		return nil, forge.BadRequest(err.Error())
	}

	now := time.Now()
	g := &permission.Grant{
		ID:        id.NewGrantID(),
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Key:       key,
		Granted:   req.Granted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.eng.Store().SetGrant(ctx.Context(), g); err != nil {
		return nil, mapError(err)
	}

	a.grantChanged(ctx, g)
	return g, ctx.JSON(http.StatusOK, g)
}

func (a *API) getGrant(ctx forge.Context, _ *GetGrantRequest) (*permission.Grant, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	g, err := a.eng.Store().GetGrant(ctx.Context(), grantID)
	if err != nil {
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusOK, g)
}

func (a *API) deleteGrant(ctx forge.Context, _ *GetGrantRequest) (*struct{}, error) {
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	g, err := a.eng.Store().GetGrant(ctx.Context(), grantID)
	if err != nil {
		return nil, mapError(err)
	}

	if err := a.eng.Store().DeleteGrant(ctx.Context(), grantID); err != nil {
		return nil, mapError(err)
	}

	a.grantChanged(ctx, g)
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listGrants(ctx forge.Context, req *ListGrantsRequest) ([]*permission.Grant, error) {
	filter := &permission.ListFilter{
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Key:       permission.Key(req.Key),
		Limit:     defaultLimit(req.Limit),
		Offset:    req.Offset,
	}

	grants, err := a.eng.Store().ListGrants(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	return grants, ctx.JSON(http.StatusOK, grants)
}

func (a *API) getUserPermissions(ctx forge.Context, _ *GetUserPermissionsRequest) (*PermissionSetResponse, error) {
	userID := ctx.Param("userId")
	if userID == "" {
		return nil, forge.BadRequest("userId is required")
	}

	set, err := a.eng.Store().GetSetForUser(ctx.Context(), userID)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &PermissionSetResponse{
		UserID:      userID,
		Permissions: make(map[string]bool, len(set)),
	}
	for key, granted := range set {
		resp.Permissions[string(key)] = granted
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

// grantChanged pushes the change to plugins and re-resolves the
// affected user's session.
func (a *API) grantChanged(ctx forge.Context, g *permission.Grant) {
	if a.eng.Plugins() != nil {
		a.eng.Plugins().EmitGrantChanged(ctx.Context(), g)
	}
	a.eng.Sessions().NotifyChanged(ctx.Context(), g.UserID)
}
