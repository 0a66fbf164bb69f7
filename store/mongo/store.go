// Package mongo provides a MongoDB implementation of the gatehouse
// composite store using grove ORM. Migration creates the indexes each
// collection queries by.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/subuser"
)

// Collection name constants.
const (
	colMemberships   = "gatehouse_memberships"
	colGrants        = "gatehouse_grants"
	colPlans         = "gatehouse_plans"
	colSubscriptions = "gatehouse_subscriptions"
	colAuditLog      = "gatehouse_audit_log"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite gatehouse store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all gatehouse collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("gatehouse/mongo: migrate %s indexes: %w", col, err)
		}
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all gatehouse
// collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colMemberships: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "account_id", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "suspended", Value: 1}}},
		},
		colGrants: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "account_id", Value: 1}}},
		},
		colPlans: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "plan_id", Value: 1}}},
		},
		colAuditLog: {
			{Keys: bson.D{{Key: "kind", Value: 1}}},
			{Keys: bson.D{{Key: "actor_id", Value: 1}}},
			{Keys: bson.D{{Key: "target_id", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Membership operations
// ──────────────────────────────────────────────────

func (s *Store) CreateMembership(ctx context.Context, m *subuser.Membership) error {
	existing := new(membershipModel)
	err := s.mdb.NewFind(existing).
		Filter(bson.M{"user_id": m.UserID}).
		Scan(ctx)
	if err == nil {
		return fmt.Errorf("user %s already in account %s: %w", m.UserID, existing.AccountID, subuser.ErrDuplicate)
	}
	if !isNoDocuments(err) {
		return fmt.Errorf("gatehouse: create membership: %w", err)
	}
	if _, err := s.mdb.NewInsert(membershipToModel(m)).Exec(ctx); err != nil {
		return fmt.Errorf("gatehouse: create membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, membershipID id.MembershipID) (*subuser.Membership, error) {
	m := new(membershipModel)
	err := s.mdb.NewFind(m).
		Filter(bson.M{"_id": membershipID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("membership %s: %w", membershipID, subuser.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get membership: %w", err)
	}
	return membershipFromModel(m), nil
}

func (s *Store) GetMembershipByUser(ctx context.Context, userID string) (*subuser.Membership, error) {
	m := new(membershipModel)
	err := s.mdb.NewFind(m).
		Filter(bson.M{"user_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("user %s: %w", userID, subuser.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get membership by user: %w", err)
	}
	return membershipFromModel(m), nil
}

func (s *Store) UpdateMembership(ctx context.Context, m *subuser.Membership) error {
	m.UpdatedAt = time.Now().UTC()
	model := membershipToModel(m)
	res, err := s.mdb.NewUpdate(model).
		Filter(bson.M{"_id": model.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: update membership: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("membership %s: %w", m.ID, subuser.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, membershipID id.MembershipID) error {
	_, err := s.mdb.NewDelete((*membershipModel)(nil)).
		Filter(bson.M{"_id": membershipID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete membership: %w", err)
	}
	return nil
}

func membershipFilter(filter *subuser.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.AccountID != "" {
		f["account_id"] = filter.AccountID
	}
	if filter.UserID != "" {
		f["user_id"] = filter.UserID
	}
	if filter.Suspended != nil {
		f["suspended"] = *filter.Suspended
	}
	return f
}

func (s *Store) ListMemberships(ctx context.Context, filter *subuser.ListFilter) ([]*subuser.Membership, error) {
	var models []membershipModel
	q := s.mdb.NewFind(&models).
		Filter(membershipFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*membershipModel)(nil)).
		Filter(membershipFilter(filter)).
		Count(ctx)
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
	err := s.mdb.NewFind(existing).
		Filter(bson.M{"user_id": g.UserID, "key": string(g.Key)}).
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
		if _, err := s.mdb.NewUpdate(grantToModel(g)).
			Filter(bson.M{"_id": existing.ID}).
			Exec(ctx); err != nil {
			return fmt.Errorf("gatehouse: set grant: %w", err)
		}
		return nil
	case isNoDocuments(err):
		if _, err := s.mdb.NewInsert(grantToModel(g)).Exec(ctx); err != nil {
			return fmt.Errorf("gatehouse: set grant: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("gatehouse: set grant: %w", err)
	}
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*permission.Grant, error) {
	m := new(grantModel)
	err := s.mdb.NewFind(m).
		Filter(bson.M{"_id": grantID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("grant %s: %w", grantID, permission.ErrGrantNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get grant: %w", err)
	}
	return grantFromModel(m), nil
}

func (s *Store) DeleteGrant(ctx context.Context, grantID id.GrantID) error {
	_, err := s.mdb.NewDelete((*grantModel)(nil)).
		Filter(bson.M{"_id": grantID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete grant: %w", err)
	}
	return nil
}

func (s *Store) ListGrants(ctx context.Context, filter *permission.ListFilter) ([]*permission.Grant, error) {
	f := bson.M{}
	if filter != nil {
		if filter.AccountID != "" {
			f["account_id"] = filter.AccountID
		}
		if filter.UserID != "" {
			f["user_id"] = filter.UserID
		}
		if filter.Key != "" {
			f["key"] = string(filter.Key)
		}
	}
	var models []grantModel
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "key", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID}).
		Scan(ctx)
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
	_, err := s.mdb.NewDelete((*grantModel)(nil)).
		Filter(bson.M{"user_id": userID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete grants by user: %w", err)
	}
	return nil
}

func (s *Store) DeleteGrantsByAccount(ctx context.Context, accountID string) error {
	_, err := s.mdb.NewDelete((*grantModel)(nil)).
		Filter(bson.M{"account_id": accountID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete grants by account: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Plan operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(ctx context.Context, p *entitlement.Plan) error {
	if _, err := s.mdb.NewInsert(planToModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("gatehouse: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*entitlement.Plan, error) {
	m := new(planModel)
	err := s.mdb.NewFind(m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("plan %s: %w", planID, entitlement.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get plan: %w", err)
	}
	return planFromModel(m), nil
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug string) (*entitlement.Plan, error) {
	m := new(planModel)
	err := s.mdb.NewFind(m).
		Filter(bson.M{"slug": slug}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("plan slug %q: %w", slug, entitlement.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get plan by slug: %w", err)
	}
	return planFromModel(m), nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *entitlement.Plan) error {
	p.UpdatedAt = time.Now().UTC()
	model := planToModel(p)
	res, err := s.mdb.NewUpdate(model).
		Filter(bson.M{"_id": model.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: update plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("plan %s: %w", p.ID, entitlement.ErrPlanNotFound)
	}
	return nil
}

func (s *Store) DeletePlan(ctx context.Context, planID id.PlanID) error {
	_, err := s.mdb.NewDelete((*planModel)(nil)).
		Filter(bson.M{"_id": planID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete plan: %w", err)
	}
	return nil
}

func (s *Store) ListPlans(ctx context.Context, filter *entitlement.ListFilter) ([]*entitlement.Plan, error) {
	f := bson.M{}
	if filter != nil {
		if filter.Slug != "" {
			f["slug"] = filter.Slug
		}
		if filter.Search != "" {
			f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	var models []planModel
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("gatehouse: list plans: %w", err)
	}
	result := make([]*entitlement.Plan, len(models))
	for i := range models {
		result[i] = planFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Subscription operations
// ──────────────────────────────────────────────────

func (s *Store) SetSubscription(ctx context.Context, sub *entitlement.Subscription) error {
	existing := new(subscriptionModel)
	err := s.mdb.NewFind(existing).
		Filter(bson.M{"user_id": sub.UserID}).
		Scan(ctx)
	switch {
	case err == nil:
		sid, perr := id.ParseSubscriptionID(existing.ID)
		if perr != nil {
			return fmt.Errorf("gatehouse: set subscription: %w", perr)
		}
		sub.ID = sid
		sub.CreatedAt = existing.CreatedAt
		sub.UpdatedAt = time.Now().UTC()
		if _, err := s.mdb.NewUpdate(subscriptionToModel(sub)).
			Filter(bson.M{"_id": existing.ID}).
			Exec(ctx); err != nil {
			return fmt.Errorf("gatehouse: set subscription: %w", err)
		}
		return nil
	case isNoDocuments(err):
		if _, err := s.mdb.NewInsert(subscriptionToModel(sub)).Exec(ctx); err != nil {
			return fmt.Errorf("gatehouse: set subscription: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("gatehouse: set subscription: %w", err)
	}
}

func (s *Store) GetSubscriptionByUser(ctx context.Context, userID string) (*entitlement.Subscription, error) {
	m := new(subscriptionModel)
	err := s.mdb.NewFind(m).
		Filter(bson.M{"user_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("user %s: %w", userID, entitlement.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get subscription: %w", err)
	}
	return subscriptionFromModel(m), nil
}

func (s *Store) ListSubscriptionsByPlan(ctx context.Context, planID id.PlanID) ([]*entitlement.Subscription, error) {
	var models []subscriptionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"plan_id": planID.String()}).
		Sort(bson.D{{Key: "user_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("gatehouse: list subscriptions: %w", err)
	}
	result := make([]*entitlement.Subscription, len(models))
	for i := range models {
		result[i] = subscriptionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteSubscriptionByUser(ctx context.Context, userID string) error {
	_, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
		Filter(bson.M{"user_id": userID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete subscription: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Audit log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAuditEntry(ctx context.Context, e *auditlog.Entry) error {
	if _, err := s.mdb.NewInsert(auditEntryToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("gatehouse: create audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetAuditEntry(ctx context.Context, entryID id.AuditEntryID) (*auditlog.Entry, error) {
	m := new(auditEntryModel)
	err := s.mdb.NewFind(m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("audit entry %s: %w", entryID, auditlog.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get audit entry: %w", err)
	}
	return auditEntryFromModel(m), nil
}

func auditFilter(filter *auditlog.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Kind != "" {
		f["kind"] = string(filter.Kind)
	}
	if filter.ActorID != "" {
		f["actor_id"] = filter.ActorID
	}
	if filter.TargetID != "" {
		f["target_id"] = filter.TargetID
	}
	if filter.Outcome != "" {
		f["outcome"] = filter.Outcome
	}
	created := bson.M{}
	if filter.After != nil {
		created["$gt"] = *filter.After
	}
	if filter.Before != nil {
		created["$lt"] = *filter.Before
	}
	if len(created) > 0 {
		f["created_at"] = created
	}
	return f
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *auditlog.QueryFilter) ([]*auditlog.Entry, error) {
	var models []auditEntryModel
	q := s.mdb.NewFind(&models).
		Filter(auditFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*auditEntryModel)(nil)).
		Filter(auditFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: count audit entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*auditEntryModel)(nil)).
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: purge audit entries: %w", err)
	}
	return res.DeletedCount(), nil
}
