// Package sqlite provides a SQLite implementation of the gatehouse
// composite store using grove ORM with Go-based migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/subuser"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the composite gatehouse store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("gatehouse/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("gatehouse/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Membership operations
// ──────────────────────────────────────────────────

func (s *Store) CreateMembership(ctx context.Context, m *subuser.Membership) error {
	existing := new(membershipModel)
	err := s.sdb.NewSelect(existing).Where("user_id = ?", m.UserID).Scan(ctx)
	if err == nil {
		return fmt.Errorf("user %s already in account %s: %w", m.UserID, existing.AccountID, subuser.ErrDuplicate)
	}
	if !isNoRows(err) {
		return fmt.Errorf("gatehouse: create membership: %w", err)
	}
	if _, err := s.sdb.NewInsert(membershipToModel(m)).Exec(ctx); err != nil {
		return fmt.Errorf("gatehouse: create membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, membershipID id.MembershipID) (*subuser.Membership, error) {
	m := new(membershipModel)
	err := s.sdb.NewSelect(m).Where("id = ?", membershipID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("membership %s: %w", membershipID, subuser.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get membership: %w", err)
	}
	return membershipFromModel(m), nil
}

func (s *Store) GetMembershipByUser(ctx context.Context, userID string) (*subuser.Membership, error) {
	m := new(membershipModel)
	err := s.sdb.NewSelect(m).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", userID, subuser.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get membership by user: %w", err)
	}
	return membershipFromModel(m), nil
}

func (s *Store) UpdateMembership(ctx context.Context, m *subuser.Membership) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(membershipToModel(m)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: update membership: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("membership %s: %w", m.ID, subuser.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, membershipID id.MembershipID) error {
	_, err := s.sdb.NewDelete((*membershipModel)(nil)).
		Where("id = ?", membershipID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete membership: %w", err)
	}
	return nil
}

func (s *Store) ListMemberships(ctx context.Context, filter *subuser.ListFilter) ([]*subuser.Membership, error) {
	var models []membershipModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if filter.AccountID != "" {
			q = q.Where("account_id = ?", filter.AccountID)
		}
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.Suspended != nil {
			q = q.Where("suspended = ?", *filter.Suspended)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("gatehouse: list memberships: %w", err)
	}
	result := make([]*subuser.Membership, len(models))
	for i := range models {
		result[i] = membershipFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountMemberships(ctx context.Context, filter *subuser.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*membershipModel)(nil))
	if filter != nil {
		if filter.AccountID != "" {
			q = q.Where("account_id = ?", filter.AccountID)
		}
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.Suspended != nil {
			q = q.Where("suspended = ?", *filter.Suspended)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: count memberships: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Grant operations
// ──────────────────────────────────────────────────

func (s *Store) SetGrant(ctx context.Context, g *permission.Grant) error {
	existing := new(grantModel)
	err := s.sdb.NewSelect(existing).
		Where("user_id = ?", g.UserID).
		Where("key = ?", string(g.Key)).
		Scan(ctx)
	switch {
	case err == nil:
		// Latest write wins: keep the row identity, replace the value.
		gid, perr := id.ParseGrantID(existing.ID)
		if perr != nil {
			return fmt.Errorf("gatehouse: set grant: %w", perr)
		}
		g.ID = gid
		g.CreatedAt = existing.CreatedAt
		g.UpdatedAt = time.Now().UTC()
		if _, err := s.sdb.NewUpdate(grantToModel(g)).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("gatehouse: set grant: %w", err)
		}
		return nil
	case isNoRows(err):
		if _, err := s.sdb.NewInsert(grantToModel(g)).Exec(ctx); err != nil {
			return fmt.Errorf("gatehouse: set grant: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("gatehouse: set grant: %w", err)
	}
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*permission.Grant, error) {
	m := new(grantModel)
	err := s.sdb.NewSelect(m).Where("id = ?", grantID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("grant %s: %w", grantID, permission.ErrGrantNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get grant: %w", err)
	}
	return grantFromModel(m), nil
}

func (s *Store) DeleteGrant(ctx context.Context, grantID id.GrantID) error {
	_, err := s.sdb.NewDelete((*grantModel)(nil)).
		Where("id = ?", grantID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete grant: %w", err)
	}
	return nil
}

func (s *Store) ListGrants(ctx context.Context, filter *permission.ListFilter) ([]*permission.Grant, error) {
	var models []grantModel
	q := s.sdb.NewSelect(&models).OrderExpr("key ASC")
	if filter != nil {
		if filter.AccountID != "" {
			q = q.Where("account_id = ?", filter.AccountID)
		}
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.Key != "" {
			q = q.Where("key = ?", string(filter.Key))
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("gatehouse: list grants: %w", err)
	}
	result := make([]*permission.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) GetSetForUser(ctx context.Context, userID string) (permission.Set, error) {
	var models []grantModel
	err := s.sdb.NewSelect(&models).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("gatehouse: get permission set: %w", err)
	}
	set := make(permission.Set, len(models))
	for i := range models {
		set[permission.Key(models[i].Key)] = models[i].Granted
	}
	return set, nil
}

func (s *Store) DeleteGrantsByUser(ctx context.Context, userID string) error {
	_, err := s.sdb.NewDelete((*grantModel)(nil)).
		Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete grants by user: %w", err)
	}
	return nil
}

func (s *Store) DeleteGrantsByAccount(ctx context.Context, accountID string) error {
	_, err := s.sdb.NewDelete((*grantModel)(nil)).
		Where("account_id = ?", accountID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete grants by account: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Plan operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(ctx context.Context, p *entitlement.Plan) error {
	m, err := planToModel(p)
	if err != nil {
		return fmt.Errorf("gatehouse: create plan: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("gatehouse: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*entitlement.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).Where("id = ?", planID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("plan %s: %w", planID, entitlement.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get plan: %w", err)
	}
	return planFromModel(m)
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug string) (*entitlement.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).Where("slug = ?", slug).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("plan slug %q: %w", slug, entitlement.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get plan by slug: %w", err)
	}
	return planFromModel(m)
}

func (s *Store) UpdatePlan(ctx context.Context, p *entitlement.Plan) error {
	p.UpdatedAt = time.Now().UTC()
	m, err := planToModel(p)
	if err != nil {
		return fmt.Errorf("gatehouse: update plan: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: update plan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("plan %s: %w", p.ID, entitlement.ErrPlanNotFound)
	}
	return nil
}

func (s *Store) DeletePlan(ctx context.Context, planID id.PlanID) error {
	_, err := s.sdb.NewDelete((*planModel)(nil)).
		Where("id = ?", planID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete plan: %w", err)
	}
	return nil
}

func (s *Store) ListPlans(ctx context.Context, filter *entitlement.ListFilter) ([]*entitlement.Plan, error) {
	var models []planModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if filter.Slug != "" {
			q = q.Where("slug = ?", filter.Slug)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("gatehouse: list plans: %w", err)
	}
	result := make([]*entitlement.Plan, len(models))
	for i := range models {
		p, err := planFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("gatehouse: list plans: %w", err)
		}
		result[i] = p
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Subscription operations
// ──────────────────────────────────────────────────

func (s *Store) SetSubscription(ctx context.Context, sub *entitlement.Subscription) error {
	existing := new(subscriptionModel)
	err := s.sdb.NewSelect(existing).Where("user_id = ?", sub.UserID).Scan(ctx)
	switch {
	case err == nil:
		sid, perr := id.ParseSubscriptionID(existing.ID)
		if perr != nil {
			return fmt.Errorf("gatehouse: set subscription: %w", perr)
		}
		sub.ID = sid
		sub.CreatedAt = existing.CreatedAt
		sub.UpdatedAt = time.Now().UTC()
		if _, err := s.sdb.NewUpdate(subscriptionToModel(sub)).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("gatehouse: set subscription: %w", err)
		}
		return nil
	case isNoRows(err):
		if _, err := s.sdb.NewInsert(subscriptionToModel(sub)).Exec(ctx); err != nil {
			return fmt.Errorf("gatehouse: set subscription: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("gatehouse: set subscription: %w", err)
	}
}

func (s *Store) GetSubscriptionByUser(ctx context.Context, userID string) (*entitlement.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", userID, entitlement.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get subscription: %w", err)
	}
	return subscriptionFromModel(m), nil
}

func (s *Store) ListSubscriptionsByPlan(ctx context.Context, planID id.PlanID) ([]*entitlement.Subscription, error) {
	var models []subscriptionModel
	err := s.sdb.NewSelect(&models).
		Where("plan_id = ?", planID.String()).
		OrderExpr("user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("gatehouse: list subscriptions: %w", err)
	}
	result := make([]*entitlement.Subscription, 0, len(models))
	for i := range models {
		result = append(result, subscriptionFromModel(&models[i]))
	}
	return result, nil
}

func (s *Store) DeleteSubscriptionByUser(ctx context.Context, userID string) error {
	_, err := s.sdb.NewDelete((*subscriptionModel)(nil)).
		Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete subscription: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Audit log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAuditEntry(ctx context.Context, e *auditlog.Entry) error {
	if _, err := s.sdb.NewInsert(auditEntryToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("gatehouse: create audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetAuditEntry(ctx context.Context, entryID id.AuditEntryID) (*auditlog.Entry, error) {
	m := new(auditEntryModel)
	err := s.sdb.NewSelect(m).Where("id = ?", entryID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("audit entry %s: %w", entryID, auditlog.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get audit entry: %w", err)
	}
	return auditEntryFromModel(m), nil
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *auditlog.QueryFilter) ([]*auditlog.Entry, error) {
	var models []auditEntryModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC")
	if filter != nil {
		if filter.Kind != "" {
			q = q.Where("kind = ?", string(filter.Kind))
		}
		if filter.ActorID != "" {
			q = q.Where("actor_id = ?", filter.ActorID)
		}
		if filter.TargetID != "" {
			q = q.Where("target_id = ?", filter.TargetID)
		}
		if filter.Outcome != "" {
			q = q.Where("outcome = ?", filter.Outcome)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("gatehouse: list audit entries: %w", err)
	}
	result := make([]*auditlog.Entry, len(models))
	for i := range models {
		result[i] = auditEntryFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *auditlog.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*auditEntryModel)(nil))
	if filter != nil {
		if filter.Kind != "" {
			q = q.Where("kind = ?", string(filter.Kind))
		}
		if filter.ActorID != "" {
			q = q.Where("actor_id = ?", filter.ActorID)
		}
		if filter.TargetID != "" {
			q = q.Where("target_id = ?", filter.TargetID)
		}
		if filter.Outcome != "" {
			q = q.Where("outcome = ?", filter.Outcome)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: count audit entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*auditEntryModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: purge audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("gatehouse: purge audit entries rows: %w", err)
	}
	return n, nil
}
