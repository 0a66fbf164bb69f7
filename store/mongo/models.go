package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/subuser"
)

// ──────────────────────────────────────────────────
// Membership model
// ──────────────────────────────────────────────────

type membershipModel struct {
	grove.BaseModel `grove:"table:gatehouse_memberships"`
	ID              string    `grove:"id,pk"         bson:"_id"`
	AccountID       string    `grove:"account_id"    bson:"account_id"`
	UserID          string    `grove:"user_id"       bson:"user_id"`
	Label           string    `grove:"label"         bson:"label,omitempty"`
	Suspended       bool      `grove:"suspended"     bson:"suspended"`
	CreatedAt       time.Time `grove:"created_at"    bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"    bson:"updated_at"`
}

func membershipToModel(m *subuser.Membership) *membershipModel {
	return &membershipModel{
		ID:        m.ID.String(),
		AccountID: m.AccountID,
		UserID:    m.UserID,
		Label:     m.Label,
		Suspended: m.Suspended,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func membershipFromModel(m *membershipModel) *subuser.Membership {
	mid, _ := id.ParseMembershipID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &subuser.Membership{
		ID:        mid,
		AccountID: m.AccountID,
		UserID:    m.UserID,
		Label:     m.Label,
		Suspended: m.Suspended,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Grant model
// ──────────────────────────────────────────────────

type grantModel struct {
	grove.BaseModel `grove:"table:gatehouse_grants"`
	ID              string    `grove:"id,pk"         bson:"_id"`
	AccountID       string    `grove:"account_id"    bson:"account_id"`
	UserID          string    `grove:"user_id"       bson:"user_id"`
	Key             string    `grove:"key"           bson:"key"`
	Granted         bool      `grove:"granted"       bson:"granted"`
	CreatedAt       time.Time `grove:"created_at"    bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"    bson:"updated_at"`
}

func grantToModel(g *permission.Grant) *grantModel {
	return &grantModel{
		ID:        g.ID.String(),
		AccountID: g.AccountID,
		UserID:    g.UserID,
		Key:       string(g.Key),
		Granted:   g.Granted,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func grantFromModel(m *grantModel) *permission.Grant {
	gid, _ := id.ParseGrantID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &permission.Grant{
		ID:        gid,
		AccountID: m.AccountID,
		UserID:    m.UserID,
		Key:       permission.Key(m.Key),
		Granted:   m.Granted,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Plan model
// ──────────────────────────────────────────────────

type planModel struct {
	grove.BaseModel `grove:"table:gatehouse_plans"`
	ID              string            `grove:"id,pk"       bson:"_id"`
	Slug            string            `grove:"slug"        bson:"slug"`
	Name            string            `grove:"name"        bson:"name"`
	Features        map[string]string `grove:"features"    bson:"features,omitempty"`
	CreatedAt       time.Time         `grove:"created_at"  bson:"created_at"`
	UpdatedAt       time.Time         `grove:"updated_at"  bson:"updated_at"`
}

func planToModel(p *entitlement.Plan) *planModel {
	features := make(map[string]string, len(p.Features))
	for f, lvl := range p.Features {
		features[string(f)] = string(lvl)
	}
	return &planModel{
		ID:        p.ID.String(),
		Slug:      p.Slug,
		Name:      p.Name,
		Features:  features,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func planFromModel(m *planModel) *entitlement.Plan {
	pid, _ := id.ParsePlanID(m.ID) //nolint:errcheck // stored IDs are always valid
	features := make(map[entitlement.Feature]entitlement.Level, len(m.Features))
	for f, lvl := range m.Features {
		features[entitlement.Feature(f)] = entitlement.Level(lvl)
	}
	return &entitlement.Plan{
		ID:        pid,
		Slug:      m.Slug,
		Name:      m.Name,
		Features:  features,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Subscription model
// ──────────────────────────────────────────────────

type subscriptionModel struct {
	grove.BaseModel `grove:"table:gatehouse_subscriptions"`
	ID              string    `grove:"id,pk"       bson:"_id"`
	UserID          string    `grove:"user_id"     bson:"user_id"`
	PlanID          string    `grove:"plan_id"     bson:"plan_id"`
	CreatedAt       time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"  bson:"updated_at"`
}

func subscriptionToModel(s *entitlement.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:        s.ID.String(),
		UserID:    s.UserID,
		PlanID:    s.PlanID.String(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func subscriptionFromModel(m *subscriptionModel) *entitlement.Subscription {
	sid, _ := id.ParseSubscriptionID(m.ID) //nolint:errcheck // stored IDs are always valid
	pid, _ := id.ParsePlanID(m.PlanID)     //nolint:errcheck // stored IDs are always valid
	return &entitlement.Subscription{
		ID:        sid,
		UserID:    m.UserID,
		PlanID:    pid,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Audit entry model
// ──────────────────────────────────────────────────

type auditEntryModel struct {
	grove.BaseModel `grove:"table:gatehouse_audit_log"`
	ID              string    `grove:"id,pk"          bson:"_id"`
	Kind            string    `grove:"kind"           bson:"kind"`
	ActorID         string    `grove:"actor_id"       bson:"actor_id"`
	TargetID        string    `grove:"target_id"      bson:"target_id,omitempty"`
	Impersonating   bool      `grove:"impersonating"  bson:"impersonating"`
	RoleClass       string    `grove:"role_class"     bson:"role_class,omitempty"`
	Requirement     string    `grove:"requirement"    bson:"requirement,omitempty"`
	Outcome         string    `grove:"outcome"        bson:"outcome,omitempty"`
	Code            string    `grove:"code"           bson:"code,omitempty"`
	Reason          string    `grove:"reason"         bson:"reason,omitempty"`
	EvalTimeNs      int64     `grove:"eval_time_ns"   bson:"eval_time_ns,omitempty"`
	CreatedAt       time.Time `grove:"created_at"     bson:"created_at"`
}

func auditEntryToModel(e *auditlog.Entry) *auditEntryModel {
	return &auditEntryModel{
		ID:            e.ID.String(),
		Kind:          string(e.Kind),
		ActorID:       e.ActorID,
		TargetID:      e.TargetID,
		Impersonating: e.Impersonating,
		RoleClass:     e.RoleClass,
		Requirement:   e.Requirement,
		Outcome:       e.Outcome,
		Code:          e.Code,
		Reason:        e.Reason,
		EvalTimeNs:    e.EvalTimeNs,
		CreatedAt:     e.CreatedAt,
	}
}

func auditEntryFromModel(m *auditEntryModel) *auditlog.Entry {
	eid, _ := id.ParseAuditEntryID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &auditlog.Entry{
		ID:            eid,
		Kind:          auditlog.Kind(m.Kind),
		ActorID:       m.ActorID,
		TargetID:      m.TargetID,
		Impersonating: m.Impersonating,
		RoleClass:     m.RoleClass,
		Requirement:   m.Requirement,
		Outcome:       m.Outcome,
		Code:          m.Code,
		Reason:        m.Reason,
		EvalTimeNs:    m.EvalTimeNs,
		CreatedAt:     m.CreatedAt,
	}
}
