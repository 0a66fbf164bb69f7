package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse"
)

func (a *API) registerImpersonationRoutes(router forge.Router) error {
	g := router.Group("/v1/impersonation", forge.WithGroupTags("impersonation"))

	if err := g.POST("/start", a.startImpersonation,
		forge.WithSummary("Start impersonation"),
		forge.WithDescription("Overlays the admin's session with the target identity. Starting over an active overlay replaces it."),
		forge.WithOperationID("startImpersonation"),
		forge.WithRequestSchema(StartImpersonationRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Session state", SessionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/stop", a.stopImpersonation,
		forge.WithSummary("Stop impersonation"),
		forge.WithDescription("Ends the overlay and restores the admin's own access state."),
		forge.WithOperationID("stopImpersonation"),
		forge.WithRequestSchema(StopImpersonationRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Session state", SessionResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) startImpersonation(ctx forge.Context, req *StartImpersonationRequest) (*SessionResponse, error) {
	if req.AdminID == "" {
		return nil, forge.BadRequest("admin_id is required")
	}
	if req.TargetID == "" {
		return nil, forge.BadRequest("target_id is required")
	}
	if req.TargetID == req.AdminID {
		return nil, forge.BadRequest("cannot impersonate yourself")
	}

	sess, ok := a.eng.Sessions().Get(req.AdminID)
	if !ok {
		return nil, forge.NotFound(fmt.Sprintf("no session bound for user %s", req.AdminID))
	}

	err := sess.Impersonate(ctx.Context(), gatehouse.Principal{
		ID:        req.TargetID,
		RoleClaim: req.TargetRoleClaim,
		PlanID:    req.TargetPlanID,
	})
	if err != nil {
		return nil, mapError(err)
	}

	resp := toSessionResponse(sess.Snapshot())
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) stopImpersonation(ctx forge.Context, req *StopImpersonationRequest) (*SessionResponse, error) {
	if req.AdminID == "" {
		return nil, forge.BadRequest("admin_id is required")
	}

	sess, ok := a.eng.Sessions().Get(req.AdminID)
	if !ok {
		return nil, forge.NotFound(fmt.Sprintf("no session bound for user %s", req.AdminID))
	}

	if err := sess.StopImpersonation(ctx.Context()); err != nil {
		return nil, mapError(err)
	}

	resp := toSessionResponse(sess.Snapshot())
	return resp, ctx.JSON(http.StatusOK, resp)
}
