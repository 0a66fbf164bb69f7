package entitlement

import (
	"context"

	"github.com/xraph/gatehouse/id"
)

// Store defines persistence operations for plans and subscriptions.
type Store interface {
	// CreatePlan persists a new plan.
	CreatePlan(ctx context.Context, p *Plan) error

	// GetPlan retrieves a plan by ID.
	GetPlan(ctx context.Context, planID id.PlanID) (*Plan, error)

	// GetPlanBySlug retrieves a plan by slug.
	GetPlanBySlug(ctx context.Context, slug string) (*Plan, error)

	// UpdatePlan persists changes to a plan, including its feature table.
	UpdatePlan(ctx context.Context, p *Plan) error

	// DeletePlan removes a plan by ID.
	DeletePlan(ctx context.Context, planID id.PlanID) error

	// ListPlans returns plans matching the filter.
	ListPlans(ctx context.Context, filter *ListFilter) ([]*Plan, error)

	// SetSubscription creates or replaces the subscription for a user.
	SetSubscription(ctx context.Context, s *Subscription) error

	// GetSubscriptionByUser retrieves the subscription for a user, if any.
	GetSubscriptionByUser(ctx context.Context, userID string) (*Subscription, error)

	// ListSubscriptionsByPlan returns every subscription referencing the
	// plan. Used to find the sessions a plan-table edit invalidates.
	ListSubscriptionsByPlan(ctx context.Context, planID id.PlanID) ([]*Subscription, error)

	// DeleteSubscriptionByUser removes a user's subscription.
	DeleteSubscriptionByUser(ctx context.Context, userID string) error
}
