package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/subuser"
)

func (a *API) registerMembershipRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("memberships"))

	if err := g.POST("/memberships", a.createMembership,
		forge.WithSummary("Create membership"),
		forge.WithDescription("Places a user under a landlord account as a sub-user."),
		forge.WithOperationID("createMembership"),
		forge.WithRequestSchema(CreateMembershipRequest{}),
		forge.WithCreatedResponse(&subuser.Membership{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/memberships/:membershipId", a.getMembership,
		forge.WithSummary("Get membership"),
		forge.WithDescription("Returns details of a specific membership."),
		forge.WithOperationID("getMembership"),
		forge.WithResponseSchema(http.StatusOK, "Membership details", &subuser.Membership{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/memberships/:membershipId", a.updateMembership,
		forge.WithSummary("Update membership"),
		forge.WithDescription("Updates a membership's label or suspension state."),
		forge.WithOperationID("updateMembership"),
		forge.WithRequestSchema(UpdateMembershipRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated membership", &subuser.Membership{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/memberships/:membershipId", a.deleteMembership,
		forge.WithSummary("Delete membership"),
		forge.WithDescription("Removes a sub-user from their account and revokes their grants."),
		forge.WithOperationID("deleteMembership"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/memberships", a.listMemberships,
		forge.WithSummary("List memberships"),
		forge.WithDescription("Lists memberships with optional filters."),
		forge.WithOperationID("listMemberships"),
		forge.WithRequestSchema(ListMembershipsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Membership list", ListResponse[*subuser.Membership]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) createMembership(ctx forge.Context, req *CreateMembershipRequest) (*subuser.Membership, error) {
	if req.AccountID == "" {
		return nil, forge.BadRequest("account_id is required")
	}
	if req.UserID == "" {
		return nil, forge.BadRequest("user_id is required")
	}

	now := time.Now()
	m := &subuser.Membership{
		ID:        id.NewMembershipID(),
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Label:     req.Label,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.eng.Store().CreateMembership(ctx.Context(), m); err != nil {
		return nil, mapError(err)
	}

	a.membershipChanged(ctx, m)
	return m, ctx.JSON(http.StatusCreated, m)
}

func (a *API) getMembership(ctx forge.Context, _ *GetMembershipRequest) (*subuser.Membership, error) {
	membershipID, err := id.ParseMembershipID(ctx.Param("membershipId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid membership ID: %v", err))
	}

	m, err := a.eng.Store().GetMembership(ctx.Context(), membershipID)
	if err != nil {
		return nil, mapError(err)
	}

	return m, ctx.JSON(http.StatusOK, m)
}

func (a *API) updateMembership(ctx forge.Context, req *UpdateMembershipRequest) (*subuser.Membership, error) {
	membershipID, err := id.ParseMembershipID(ctx.Param("membershipId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid membership ID: %v", err))
	}

	m, err := a.eng.Store().GetMembership(ctx.Context(), membershipID)
	if err != nil {
		return nil, mapError(err)
	}

	if req.Label != nil {
		m.Label = *req.Label
	}
	if req.Suspended != nil {
		m.Suspended = *req.Suspended
	}
	m.UpdatedAt = time.Now()

	if err := a.eng.Store().UpdateMembership(ctx.Context(), m); err != nil {
		return nil, mapError(err)
	}

	a.membershipChanged(ctx, m)
	return m, ctx.JSON(http.StatusOK, m)
}

func (a *API) deleteMembership(ctx forge.Context, _ *GetMembershipRequest) (*struct{}, error) {
	membershipID, err := id.ParseMembershipID(ctx.Param("membershipId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid membership ID: %v", err))
	}

	m, err := a.eng.Store().GetMembership(ctx.Context(), membershipID)
	if err != nil {
		return nil, mapError(err)
	}

	if err := a.eng.Store().DeleteMembership(ctx.Context(), membershipID); err != nil {
		return nil, mapError(err)
	}
	// Grants are meaningless without the membership that scopes them.
	if err := a.eng.Store().DeleteGrantsByUser(ctx.Context(), m.UserID); err != nil {
		return nil, mapError(err)
	}

	a.membershipChanged(ctx, m)
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listMemberships(ctx forge.Context, req *ListMembershipsRequest) (*ListResponse[*subuser.Membership], error) {
	filter := &subuser.ListFilter{
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Suspended: req.Suspended,
		Limit:     defaultLimit(req.Limit),
		Offset:    req.Offset,
	}

	items, err := a.eng.Store().ListMemberships(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}
	total, err := a.eng.Store().CountMemberships(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*subuser.Membership]{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

// membershipChanged pushes the change to plugins and re-resolves any
// session whose effective identity depends on it.
func (a *API) membershipChanged(ctx forge.Context, m *subuser.Membership) {
	if a.eng.Plugins() != nil {
		a.eng.Plugins().EmitMembershipChanged(ctx.Context(), m)
	}
	a.eng.Sessions().NotifyChanged(ctx.Context(), m.UserID)
}
