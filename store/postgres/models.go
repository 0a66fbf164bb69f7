package postgres

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
	ID              string    `grove:"id,pk"`
	AccountID       string    `grove:"account_id,notnull"`
	UserID          string    `grove:"user_id,notnull"`
	Label           string    `grove:"label"`
	Suspended       bool      `grove:"suspended,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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
	ID              string    `grove:"id,pk"`
	AccountID       string    `grove:"account_id,notnull"`
	UserID          string    `grove:"user_id,notnull"`
	Key             string    `grove:"key,notnull"`
	Granted         bool      `grove:"granted,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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
	ID              string            `grove:"id,pk"`
	Slug            string            `grove:"slug,notnull"`
	Name            string            `grove:"name,notnull"`
	Features        map[string]string `grove:"features,type:jsonb"`
	CreatedAt       time.Time         `grove:"created_at,notnull"`
	UpdatedAt       time.Time         `grove:"updated_at,notnull"`
}

func planToModel(p *entitlement.Plan) *planModel {
	var features map[string]string
	if p.Features != nil {
		features = make(map[string]string, len(p.Features))
		for f, lvl := range p.Features {
			features[string(f)] = string(lvl)
		}
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
	var features map[entitlement.Feature]entitlement.Level
	if m.Features != nil {
		features = make(map[entitlement.Feature]entitlement.Level, len(m.Features))
		for f, lvl := range m.Features {
			features[entitlement.Feature(f)] = entitlement.Level(lvl)
		}
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
	ID              string    `grove:"id,pk"`
	UserID          string    `grove:"user_id,notnull"`
	PlanID          string    `grove:"plan_id,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func subscriptionToModel(sub *entitlement.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:        sub.ID.String(),
		UserID:    sub.UserID,
		PlanID:    sub.PlanID.String(),
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
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
	ID              string    `grove:"id,pk"`
	Kind            string    `grove:"kind,notnull"`
	ActorID         string    `grove:"actor_id,notnull"`
	TargetID        string    `grove:"target_id"`
	Impersonating   bool      `grove:"impersonating,notnull"`
	RoleClass       string    `grove:"role_class"`
	Requirement     string    `grove:"requirement"`
	Outcome         string    `grove:"outcome"`
	Code            string    `grove:"code"`
	Reason          string    `grove:"reason"`
	EvalTimeNs      int64     `grove:"eval_time_ns,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
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
