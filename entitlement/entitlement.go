// Package entitlement defines the closed feature vocabulary, the
// per-feature entitlement Level, and the Plan and Subscription entities
// with their store interface.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/gatehouse/id"
)

var (
	// ErrPlanNotFound is returned when no plan matches a lookup.
	ErrPlanNotFound = errors.New("entitlement: plan not found")

	// ErrSubscriptionNotFound is returned when a user has no
	// subscription row. An unsubscribed user is entitled to nothing,
	// which is an ordinary answer rather than a failure.
	ErrSubscriptionNotFound = errors.New("entitlement: subscription not found")
)

// Feature names a plan-gated capability. The vocabulary is closed and
// known at compile time.
type Feature string

const (
	// FeatureAPIAccess gates programmatic API access.
	FeatureAPIAccess Feature = "api_access"

	// FeatureBulkMessaging gates sending messages to many tenants at once.
	FeatureBulkMessaging Feature = "bulk_messaging"

	// FeatureDocumentTemplates gates the lease/notice template library.
	FeatureDocumentTemplates Feature = "document_templates"

	// FeatureAdvancedReporting gates custom and scheduled reports.
	FeatureAdvancedReporting Feature = "advanced_reporting"

	// FeatureOnlinePayments gates online rent collection.
	FeatureOnlinePayments Feature = "online_payments"

	// FeatureMaintenanceTracking gates the maintenance workflow module.
	FeatureMaintenanceTracking Feature = "maintenance_tracking"
)

// Features lists every feature in the closed vocabulary.
func Features() []Feature {
	return []Feature{
		FeatureAPIAccess,
		FeatureBulkMessaging,
		FeatureDocumentTemplates,
		FeatureAdvancedReporting,
		FeatureOnlinePayments,
		FeatureMaintenanceTracking,
	}
}

// Validate returns an error if f is not in the closed vocabulary.
func (f Feature) Validate() error {
	for _, known := range Features() {
		if f == known {
			return nil
		}
	}
	return fmt.Errorf("entitlement: unknown feature %q", string(f))
}

// Level is the plan-derived access level for a feature.
type Level string

const (
	// LevelNone means the plan lacks the feature.
	LevelNone Level = "none"

	// LevelReadOnly means the plan grants a degraded, read-only variant.
	LevelReadOnly Level = "read_only"

	// LevelFull means the plan grants the feature without restriction.
	LevelFull Level = "full"
)

// Validate returns an error if l is not a known level.
func (l Level) Validate() error {
	switch l {
	case LevelNone, LevelReadOnly, LevelFull:
		return nil
	}
	return fmt.Errorf("entitlement: unknown level %q", string(l))
}

// Plan is a subscription plan with its feature table. A feature absent
// from the table is LevelNone.
type Plan struct {
	ID        id.PlanID         `json:"id" db:"id"`
	Slug      string            `json:"slug" db:"slug"`
	Name      string            `json:"name" db:"name"`
	Features  map[Feature]Level `json:"features" db:"features"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// Level returns the plan's entitlement level for f, LevelNone when the
// table has no row for it.
func (p *Plan) Level(f Feature) Level {
	if p == nil || p.Features == nil {
		return LevelNone
	}
	lvl, ok := p.Features[f]
	if !ok {
		return LevelNone
	}
	return lvl
}

// Subscription binds a user to a plan.
type Subscription struct {
	ID        id.SubscriptionID `json:"id" db:"id"`
	UserID    string            `json:"user_id" db:"user_id"`
	PlanID    id.PlanID         `json:"plan_id" db:"plan_id"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing plans.
type ListFilter struct {
	Slug   string `json:"slug,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
