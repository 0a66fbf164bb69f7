package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/id"
)

func (a *API) registerPlanRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("plans"))

	if err := g.POST("/plans", a.createPlan,
		forge.WithSummary("Create plan"),
		forge.WithDescription("Creates a plan with its feature table."),
		forge.WithOperationID("createPlan"),
		forge.WithRequestSchema(CreatePlanRequest{}),
		forge.WithCreatedResponse(&entitlement.Plan{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/plans/:planId", a.getPlan,
		forge.WithSummary("Get plan"),
		forge.WithDescription("Returns details of a specific plan."),
		forge.WithOperationID("getPlan"),
		forge.WithResponseSchema(http.StatusOK, "Plan details", &entitlement.Plan{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/plans/:planId", a.updatePlan,
		forge.WithSummary("Update plan"),
		forge.WithDescription("Updates a plan's name or feature table."),
		forge.WithOperationID("updatePlan"),
		forge.WithRequestSchema(UpdatePlanRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated plan", &entitlement.Plan{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/plans/:planId", a.deletePlan,
		forge.WithSummary("Delete plan"),
		forge.WithDescription("Deletes a plan."),
		forge.WithOperationID("deletePlan"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/plans", a.listPlans,
		forge.WithSummary("List plans"),
		forge.WithDescription("Lists plans with optional filters."),
		forge.WithOperationID("listPlans"),
		forge.WithRequestSchema(ListPlansRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Plan list", []*entitlement.Plan{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/subscriptions", a.setSubscription,
		forge.WithSummary("Set subscription"),
		forge.WithDescription("Assigns a user's plan. Re-assigning replaces the previous plan."),
		forge.WithOperationID("setSubscription"),
		forge.WithRequestSchema(SetSubscriptionRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Written subscription", &entitlement.Subscription{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/users/:userId/subscription", a.getSubscription,
		forge.WithSummary("Get subscription"),
		forge.WithDescription("Returns the user's active subscription."),
		forge.WithOperationID("getSubscription"),
		forge.WithResponseSchema(http.StatusOK, "Subscription", &entitlement.Subscription{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/users/:userId/subscription", a.deleteSubscription,
		forge.WithSummary("Delete subscription"),
		forge.WithDescription("Removes the user's subscription, leaving them unentitled."),
		forge.WithOperationID("deleteSubscription"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) createPlan(ctx forge.Context, req *CreatePlanRequest) (*entitlement.Plan, error) {
	if req.Slug == "" {
		return nil, forge.BadRequest("slug is required")
	}
	if req.Name == "" {
		return nil, forge.BadRequest("name is required")
	}
	features, err := toFeatureTable(req.Features)
	if err != nil {
		return nil, forge.BadRequest(err.Error())
	}

	now := time.Now()
	p := &entitlement.Plan{
		ID:        id.NewPlanID(),
		Slug:      req.Slug,
		Name:      req.Name,
		Features:  features,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.eng.Store().CreatePlan(ctx.Context(), p); err != nil {
		return nil, mapError(err)
	}

	a.planChanged(ctx, p, nil)
	return p, ctx.JSON(http.StatusCreated, p)
}

func (a *API) getPlan(ctx forge.Context, _ *GetPlanRequest) (*entitlement.Plan, error) {
	planID, err := id.ParsePlanID(ctx.Param("planId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid plan ID: %v", err))
	}

	p, err := a.eng.Store().GetPlan(ctx.Context(), planID)
	if err != nil {
		return nil, mapError(err)
	}

	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) updatePlan(ctx forge.Context, req *UpdatePlanRequest) (*entitlement.Plan, error) {
	planID, err := id.ParsePlanID(ctx.Param("planId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid plan ID: %v", err))
	}

	p, err := a.eng.Store().GetPlan(ctx.Context(), planID)
	if err != nil {
		return nil, mapError(err)
	}

	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Features != nil {
		features, err := toFeatureTable(req.Features)
		if err != nil {
			return nil, forge.BadRequest(err.Error())
		}
		p.Features = features
	}
	p.UpdatedAt = time.Now()

	if err := a.eng.Store().UpdatePlan(ctx.Context(), p); err != nil {
		return nil, mapError(err)
	}

	a.planChanged(ctx, p, nil)
	a.eng.Sessions().NotifyPlanChanged(ctx.Context(), planID)
	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) deletePlan(ctx forge.Context, _ *GetPlanRequest) (*struct{}, error) {
	planID, err := id.ParsePlanID(ctx.Param("planId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid plan ID: %v", err))
	}

	if err := a.eng.Store().DeletePlan(ctx.Context(), planID); err != nil {
		return nil, mapError(err)
	}

	a.planChanged(ctx, nil, nil)
	// Subscription rows referencing the deleted plan survive; their
	// sessions re-resolve into the dangling-plan failure state.
	a.eng.Sessions().NotifyPlanChanged(ctx.Context(), planID)
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listPlans(ctx forge.Context, req *ListPlansRequest) ([]*entitlement.Plan, error) {
	filter := &entitlement.ListFilter{
		Slug:   req.Slug,
		Search: req.Search,
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	}

	plans, err := a.eng.Store().ListPlans(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	return plans, ctx.JSON(http.StatusOK, plans)
}

func (a *API) setSubscription(ctx forge.Context, req *SetSubscriptionRequest) (*entitlement.Subscription, error) {
	if req.UserID == "" {
		return nil, forge.BadRequest("user_id is required")
	}
	planID, err := id.ParsePlanID(req.PlanID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid plan_id: %v", err))
	}

	// The plan must exist; a dangling reference would fail every
	// entitlement resolution for the user.
	p, err := a.eng.Store().GetPlan(ctx.Context(), planID)
	if err != nil {
		return nil, mapError(err)
	}

	now := time.Now()
	sub := &entitlement.Subscription{
		ID:        id.NewSubscriptionID(),
		UserID:    req.UserID,
		PlanID:    planID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.eng.Store().SetSubscription(ctx.Context(), sub); err != nil {
		return nil, mapError(err)
	}

	a.planChanged(ctx, p, sub)
	a.eng.Sessions().NotifyChanged(ctx.Context(), sub.UserID)
	return sub, ctx.JSON(http.StatusOK, sub)
}

func (a *API) getSubscription(ctx forge.Context, _ *GetSubscriptionRequest) (*entitlement.Subscription, error) {
	userID := ctx.Param("userId")
	if userID == "" {
		return nil, forge.BadRequest("userId is required")
	}

	sub, err := a.eng.Store().GetSubscriptionByUser(ctx.Context(), userID)
	if err != nil {
		return nil, mapError(err)
	}

	return sub, ctx.JSON(http.StatusOK, sub)
}

func (a *API) deleteSubscription(ctx forge.Context, _ *GetSubscriptionRequest) (*struct{}, error) {
	userID := ctx.Param("userId")
	if userID == "" {
		return nil, forge.BadRequest("userId is required")
	}

	if err := a.eng.Store().DeleteSubscriptionByUser(ctx.Context(), userID); err != nil {
		return nil, mapError(err)
	}

	a.planChanged(ctx, nil, nil)
	a.eng.Sessions().NotifyChanged(ctx.Context(), userID)
	return nil, ctx.NoContent(http.StatusNoContent)
}

func toFeatureTable(raw map[string]string) (map[entitlement.Feature]entitlement.Level, error) {
	if raw == nil {
		return nil, nil
	}
	features := make(map[entitlement.Feature]entitlement.Level, len(raw))
	for k, v := range raw {
		f := entitlement.Feature(k)
		if err := f.Validate(); err != nil {
			return nil, err
		}
		lvl := entitlement.Level(v)
		if err := lvl.Validate(); err != nil {
			return nil, err
		}
		features[f] = lvl
	}
	return features, nil
}

func (a *API) planChanged(ctx forge.Context, p *entitlement.Plan, sub *entitlement.Subscription) {
	if a.eng.Plugins() != nil {
		a.eng.Plugins().EmitPlanChanged(ctx.Context(), p, sub)
	}
}
