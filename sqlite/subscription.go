package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/subkeeper/subkeeper"
)

const subscriptionColumns = "id, name, email, content, plan, status, token, created_at, updated_at"

type subscriptionService struct {
	db       *DB
	statuses map[string]struct{}
}

// NewSubscriptionService returns a SubscriptionService backed by sqlite.
// statuses is the configured status enumeration; UpdateStatus rejects
// anything outside it.
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

	encoded, err := encodeContent(s.Content)
	if err != nil {
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Create", Err: err}
	}

	res, err := ss.db.sqlDB.Exec(
		"INSERT INTO subscriptions (name, email, content, plan, status, token, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		s.Name, s.Email, encoded, s.Plan, s.Status, s.Token, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Create", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Create", Err: err}
	}
	s.ID = int(id)

	return s, nil
}

// FindByToken finds a subscription by its unsubscribe token. Exact match
// only; this is the single secret-lookup path into a record.
func (ss *subscriptionService) FindByToken(token string) (*subkeeper.Subscription, error) {
	row := ss.db.sqlDB.QueryRow("SELECT "+subscriptionColumns+" FROM subscriptions WHERE token = ?", token)

	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
		}
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.FindByToken", Err: err}
	}

	return s, nil
}

// List returns one page of subscriptions, most recently created first, plus
// the total count for the filter. page is 1-indexed; pageSize is clamped to
// subkeeper.MaxPageSize.
func (ss *subscriptionService) List(page, pageSize int, filter subkeeper.Filter) ([]subkeeper.Subscription, int, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, &subkeeper.Error{Code: subkeeper.ErrInvalid, Message: "page and page size must be positive"}
	}
	if pageSize > subkeeper.MaxPageSize {
		pageSize = subkeeper.MaxPageSize
	}

	where, args := buildFilter(filter)

	var total int
	if err := ss.db.sqlDB.QueryRow("SELECT COUNT(*) FROM subscriptions"+where, args...).Scan(&total); err != nil {
		return nil, 0, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.List", Err: err}
	}

	query := "SELECT " + subscriptionColumns + " FROM subscriptions" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := ss.db.sqlDB.Query(query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.List", Err: err}
	}
	defer rows.Close()

	subscriptions := make([]subkeeper.Subscription, 0, pageSize)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.List", Err: err}
		}
		subscriptions = append(subscriptions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.List", Err: err}
	}

	return subscriptions, total, nil
}

// UpdateStatus sets a new status on a record. The value is validated against
// the configured enumeration before storage is touched.
func (ss *subscriptionService) UpdateStatus(id int, status string) error {
	if _, ok := ss.statuses[status]; !ok {
		return &subkeeper.Error{Code: subkeeper.ErrInvalid, Message: fmt.Sprintf("unknown status: %s", status)}
	}

	res, err := ss.db.sqlDB.Exec("UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id)
	if err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.UpdateStatus", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.UpdateStatus", Err: err}
	}
	if n == 0 {
		return &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
	}

	return nil
}

// SoftDelete drives a record to inactive. Deleting an already-inactive
// record is a no-op success that leaves updated_at untouched.
func (ss *subscriptionService) SoftDelete(id int) error {
	res, err := ss.db.sqlDB.Exec("UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ? AND status <> ?",
		subkeeper.StatusInactive, time.Now().UTC(), id, subkeeper.StatusInactive)
	if err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.SoftDelete", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.SoftDelete", Err: err}
	}
	if n == 0 {
		var exists int
		err := ss.db.sqlDB.QueryRow("SELECT COUNT(*) FROM subscriptions WHERE id = ?", id).Scan(&exists)
		if err != nil {
			return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.SoftDelete", Err: err}
		}
		if exists == 0 {
			return &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
		}
	}

	return nil
}

// Unsubscribe consumes a token: the record goes inactive and the token is
// replaced in the same conditional update, so the link just used can never
// resolve again. The update is keyed on the current token value; of two
// concurrent calls with the same token, exactly one wins and the other gets
// not_found.
func (ss *subscriptionService) Unsubscribe(token string) (string, error) {
	var (
		id    int
		email string
	)
	err := ss.db.sqlDB.QueryRow("SELECT id, email FROM subscriptions WHERE token = ?", token).Scan(&id, &email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
		}
		return "", &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Unsubscribe", Err: err}
	}

	res, err := ss.db.sqlDB.Exec("UPDATE subscriptions SET status = ?, token = ?, updated_at = ? WHERE id = ? AND token = ?",
		subkeeper.StatusInactive, subkeeper.NewToken(), time.Now().UTC(), id, token)
	if err != nil {
		return "", &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Unsubscribe", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Unsubscribe", Err: err}
	}
	if n == 0 {
		// Lost the race: someone consumed the token between read and update.
		return "", &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
	}

	return email, nil
}

// Stats computes the aggregate rollup. Plain reads only; writers are never
// blocked while it runs.
func (ss *subscriptionService) Stats() (*subkeeper.Stats, error) {
	stats := &subkeeper.Stats{
		ByStatus: make(map[string]int),
		ByPlan:   make(map[string]int),
	}

	if err := ss.db.sqlDB.QueryRow("SELECT COUNT(*) FROM subscriptions").Scan(&stats.Total); err != nil {
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Stats", Err: err}
	}

	if err := ss.groupCount("status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := ss.groupCount("plan", stats.ByPlan); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -(subkeeper.TrendDays - 1)).Truncate(24 * time.Hour)
	rows, err := ss.db.sqlDB.Query(
		"SELECT date(created_at), COUNT(*) FROM subscriptions WHERE created_at >= ? GROUP BY date(created_at) ORDER BY date(created_at)",
		cutoff)
	if err != nil {
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Stats", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var p subkeeper.TrendPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Stats", Err: err}
		}
		stats.RecentTrend = append(stats.RecentTrend, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Stats", Err: err}
	}

	return stats, nil
}

func (ss *subscriptionService) groupCount(column string, dst map[string]int) error {
	rows, err := ss.db.sqlDB.Query("SELECT " + column + ", COUNT(*) FROM subscriptions WHERE " + column + " <> '' GROUP BY " + column)
	if err != nil {
		return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Stats", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Stats", Err: err}
		}
		dst[key] = count
	}

	return rows.Err()
}

func buildFilter(filter subkeeper.Filter) (string, []interface{}) {
	var (
		where string
		args  []interface{}
	)
	if filter.Status != "" {
		where = " WHERE status = ?"
		args = append(args, filter.Status)
	}
	if filter.Plan != "" {
		if where == "" {
			where = " WHERE plan = ?"
		} else {
			where += " AND plan = ?"
		}
		args = append(args, filter.Plan)
	}
	return where, args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row scanner) (*subkeeper.Subscription, error) {
	var (
		s       subkeeper.Subscription
		encoded string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &encoded, &s.Plan, &s.Status, &s.Token, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(encoded), &s.Content); err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	return &s, nil
}

func encodeContent(content []string) (string, error) {
	if content == nil {
		content = []string{}
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
