package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse"
)

func (a *API) registerSessionRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("sessions"))

	if err := g.POST("/sessions", a.bindSession,
		forge.WithSummary("Bind session"),
		forge.WithDescription("Binds an authenticated principal and starts resolving its access state."),
		forge.WithOperationID("bindSession"),
		forge.WithRequestSchema(BindSessionRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Session state", SessionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/sessions/:userId", a.getSession,
		forge.WithSummary("Get session state"),
		forge.WithDescription("Returns the session's current resolver snapshot."),
		forge.WithOperationID("getSession"),
		forge.WithResponseSchema(http.StatusOK, "Session state", SessionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/sessions/:userId/refresh", a.refreshSession,
		forge.WithSummary("Refresh session"),
		forge.WithDescription("Discards the session's resolved state and re-resolves from the stores."),
		forge.WithOperationID("refreshSession"),
		forge.WithResponseSchema(http.StatusOK, "Session state", SessionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/sessions/:userId", a.unbindSession,
		forge.WithSummary("Unbind session"),
		forge.WithDescription("Closes and removes the user's session."),
		forge.WithOperationID("unbindSession"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) bindSession(ctx forge.Context, req *BindSessionRequest) (*SessionResponse, error) {
	if req.UserID == "" {
		return nil, forge.BadRequest("user_id is required")
	}

	sess, err := a.eng.Sessions().Bind(ctx.Context(), gatehouse.Principal{
		ID:        req.UserID,
		RoleClaim: req.RoleClaim,
		PlanID:    req.PlanID,
	})
	if err != nil {
		return nil, mapError(err)
	}

	resp := toSessionResponse(sess.Snapshot())
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) getSession(ctx forge.Context, _ *GetSessionRequest) (*SessionResponse, error) {
	sess, err := a.sessionFromPath(ctx)
	if err != nil {
		return nil, err
	}

	resp := toSessionResponse(sess.Snapshot())
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) refreshSession(ctx forge.Context, _ *GetSessionRequest) (*SessionResponse, error) {
	sess, err := a.sessionFromPath(ctx)
	if err != nil {
		return nil, err
	}

	if err := sess.Reresolve(ctx.Context()); err != nil {
		return nil, mapError(err)
	}

	resp := toSessionResponse(sess.Snapshot())
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) unbindSession(ctx forge.Context, _ *GetSessionRequest) (*struct{}, error) {
	userID := ctx.Param("userId")
	if userID == "" {
		return nil, forge.BadRequest("userId is required")
	}

	a.eng.Sessions().Unbind(ctx.Context(), userID)
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) sessionFromPath(ctx forge.Context) (*gatehouse.Session, error) {
	userID := ctx.Param("userId")
	if userID == "" {
		return nil, forge.BadRequest("userId is required")
	}
	sess, ok := a.eng.Sessions().Get(userID)
	if !ok {
		return nil, forge.NotFound(fmt.Sprintf("no session bound for user %s", userID))
	}
	return sess, nil
}

func toSessionResponse(snap gatehouse.Snapshot) *SessionResponse {
	resp := &SessionResponse{
		UserID:           snap.Identity.Principal.ID,
		Impersonating:    snap.Identity.Impersonating,
		AdminID:          snap.Identity.AdminID,
		Role:             string(snap.Role),
		RoleState:        string(snap.RoleState),
		PermissionState:  string(snap.PermissionState),
		EntitlementState: string(snap.EntitlementState),
	}
	if snap.Permissions != nil {
		resp.Permissions = make(map[string]bool, len(snap.Permissions))
		for key, granted := range snap.Permissions {
			resp.Permissions[string(key)] = granted
		}
	}
	if snap.Plan != nil {
		resp.Plan = snap.Plan.Slug
	}
	return resp
}
