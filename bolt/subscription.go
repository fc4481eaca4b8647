package bolt

import (
	"fmt"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/go-errors/errors"

	"github.com/subkeeper/subkeeper"
)

type subscriptionService struct {
	db       *DB
	statuses map[string]struct{}
}

// NewSubscriptionService returns a SubscriptionService backed by storm/bbolt.
func NewSubscriptionService(db *DB, statuses []string) subkeeper.SubscriptionService {
	ss := &subscriptionService{
		db:       db,
		statuses: make(map[string]struct{}, len(statuses)),
	}
	for _, s := range statuses {
		ss.statuses[s] = struct{}{}
	}
	return ss
}

// Create inserts a new active subscription with a freshly minted token.
func (ss *subscriptionService) Create(name, email, plan string, content []string) (*subkeeper.Subscription, error) {
	s := subkeeper.NewSubscription(name, email, plan, content)
	if err := ss.db.stormDB.Save(s); err != nil {
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.Create", Err: errors.Errorf("failed to save: %v", err)}
	}

	return s, nil
}

// FindByToken finds a subscription by its unsubscribe token.
func (ss *subscriptionService) FindByToken(token string) (*subkeeper.Subscription, error) {
	var s subkeeper.Subscription
	if err := ss.db.stormDB.One("Token", token, &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
		}
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.FindByToken", Err: errors.Errorf("failed to find by token: %v", err)}
	}

	return &s, nil
}

// List returns one page of subscriptions, most recently created first, plus
// the total count for the filter.
func (ss *subscriptionService) List(page, pageSize int, filter subkeeper.Filter) ([]subkeeper.Subscription, int, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, &subkeeper.Error{Code: subkeeper.ErrInvalid, Message: "page and page size must be positive"}
	}
	if pageSize > subkeeper.MaxPageSize {
		pageSize = subkeeper.MaxPageSize
	}

	matchers := filterMatchers(filter)

	total, err := ss.db.stormDB.Select(matchers...).Count(new(subkeeper.Subscription))
	if err != nil {
		return nil, 0, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.List", Err: errors.Errorf("failed to count: %v", err)}
	}

	// IDs are monotonically increasing, so descending ID is
	// creation-descending order.
	var subscriptions []subkeeper.Subscription
	query := ss.db.stormDB.Select(matchers...).
		OrderBy("ID").
		Reverse().
		Skip((page - 1) * pageSize).
		Limit(pageSize)
	if err := query.Find(&subscriptions); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return []subkeeper.Subscription{}, total, nil
		}
		return nil, 0, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.List", Err: errors.Errorf("failed to list: %v", err)}
	}

	return subscriptions, total, nil
}

// UpdateStatus sets a new status, validated against the configured
// enumeration.
func (ss *subscriptionService) UpdateStatus(id int, status string) error {
	if _, ok := ss.statuses[status]; !ok {
		return &subkeeper.Error{Code: subkeeper.ErrInvalid, Message: fmt.Sprintf("unknown status: %s", status)}
	}

	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.UpdateStatus", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var s subkeeper.Subscription
	if err := tx.One("ID", id, &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
		}
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.UpdateStatus", Err: err}
	}

	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	if err := tx.Save(&s); err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.UpdateStatus", Err: errors.Errorf("failed to save: %v", err)}
	}

	if err := tx.Commit(); err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.UpdateStatus", Err: err}
	}

	return nil
}

// SoftDelete drives a record to inactive; already-inactive records are left
// untouched and reported as success.
func (ss *subscriptionService) SoftDelete(id int) error {
	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.SoftDelete", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var s subkeeper.Subscription
	if err := tx.One("ID", id, &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
		}
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.SoftDelete", Err: err}
	}

	if s.Status == subkeeper.StatusInactive {
		return nil
	}

	s.Status = subkeeper.StatusInactive
	s.UpdatedAt = time.Now().UTC()
	if err := tx.Save(&s); err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.SoftDelete", Err: errors.Errorf("failed to save: %v", err)}
	}

	if err := tx.Commit(); err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.SoftDelete", Err: err}
	}

	return nil
}

// Unsubscribe consumes a token inside a single write transaction: the status
// flip and the token rotation commit together. bbolt admits one writer at a
// time, so the read inside the transaction doubles as the compare half of
// the compare-and-swap; a concurrent call with the same token finds it gone
// and reports not_found.
func (ss *subscriptionService) Unsubscribe(token string) (string, error) {
	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return "", &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.Unsubscribe", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var s subkeeper.Subscription
	if err := tx.One("Token", token, &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return "", &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
		}
		return "", &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.Unsubscribe", Err: err}
	}

	s.Status = subkeeper.StatusInactive
	s.Token = subkeeper.NewToken()
	s.UpdatedAt = time.Now().UTC()
	if err := tx.Save(&s); err != nil {
		return "", &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.Unsubscribe", Err: errors.Errorf("failed to save: %v", err)}
	}

	if err := tx.Commit(); err != nil {
		return "", &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.Unsubscribe", Err: err}
	}

	return s.Email, nil
}

// Stats computes the aggregate rollup over a full scan.
func (ss *subscriptionService) Stats() (*subkeeper.Stats, error) {
	var all []subkeeper.Subscription
	if err := ss.db.stormDB.All(&all); err != nil {
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "bolt.Stats", Err: errors.Errorf("failed to scan: %v", err)}
	}

	stats := &subkeeper.Stats{
		Total:    len(all),
		ByStatus: make(map[string]int),
		ByPlan:   make(map[string]int),
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -(subkeeper.TrendDays - 1)).Truncate(24 * time.Hour)
	byDay := make(map[string]int)
	for _, s := range all {
		if s.Status != "" {
			stats.ByStatus[s.Status]++
		}
		if s.Plan != "" {
			stats.ByPlan[s.Plan]++
		}
		if !s.CreatedAt.Before(cutoff) {
			byDay[s.CreatedAt.UTC().Format("2006-01-02")]++
		}
	}

	for d := 0; d < subkeeper.TrendDays; d++ {
		day := cutoff.AddDate(0, 0, d).Format("2006-01-02")
		if count, ok := byDay[day]; ok {
			stats.RecentTrend = append(stats.RecentTrend, subkeeper.TrendPoint{Date: day, Count: count})
		}
	}

	return stats, nil
}

func filterMatchers(filter subkeeper.Filter) []q.Matcher {
	var matchers []q.Matcher
	if filter.Status != "" {
		matchers = append(matchers, q.Eq("Status", filter.Status))
	}
	if filter.Plan != "" {
		matchers = append(matchers, q.Eq("Plan", filter.Plan))
	}
	return matchers
}
