package subkeeper

import (
	"net/url"
	"time"
)

// MaxPageSize caps admin listing page sizes to keep scans bounded.
const MaxPageSize = 100

// SubscriptionService is the interface that wraps methods related to the
// subscription lifecycle. Implementations persist the records and enforce
// the token-rotation invariant on unsubscribe.
type SubscriptionService interface {
	Create(name, email, plan string, content []string) (*Subscription, error)
	FindByToken(token string) (*Subscription, error)
	List(page, pageSize int, filter Filter) ([]Subscription, int, error)
	UpdateStatus(id int, status string) error
	SoftDelete(id int) error
	Unsubscribe(token string) (string, error)
	Stats() (*Stats, error)
}

// Subscription represents a subscriber.
//
// Token is the capability to unsubscribe: unique store-wide, carries no
// structure tied to the record, and is rotated whenever it is consumed.
// It is never serialized into API responses.
type Subscription struct {
	ID        int       `json:"id" storm:"id,increment"`
	Name      string    `json:"name"`
	Email     string    `json:"email" storm:"index"`
	Content   []string  `json:"content"`
	Plan      string    `json:"plan" storm:"index"`
	Status    string    `json:"status" storm:"index"`
	Token     string    `json:"-" storm:"unique"`
	CreatedAt time.Time `json:"created_at" storm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription statuses. The enumeration is configurable (see Config), but
// unsubscribe and delete always land on StatusInactive.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// DefaultStatuses returns the status enumeration used when none is configured.
func DefaultStatuses() []string {
	return []string{StatusActive, StatusInactive}
}

// NewSubscription returns a new active subscription with a freshly minted
// token and both timestamps set to now.
func NewSubscription(name, email, plan string, content []string) *Subscription {
	now := time.Now().UTC()
	return &Subscription{
		Name:      name,
		Email:     email,
		Content:   content,
		Plan:      plan,
		Status:    StatusActive,
		Token:     NewToken(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Filter narrows admin listings. Zero values mean "no filter".
type Filter struct {
	Status string
	Plan   string
}

// Stats is a read-only rollup over the whole store.
type Stats struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	ByPlan      map[string]int `json:"by_plan"`
	RecentTrend []TrendPoint   `json:"recent_trend"`
}

// TrendDays is the window covered by Stats.RecentTrend.
const TrendDays = 7

// TrendPoint is the number of subscriptions created on a single day.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UnsubscribeURL builds the link a subscriber follows to unsubscribe. An
// empty token yields an empty string rather than a broken link.
func UnsubscribeURL(baseURL, token string) string {
	if token == "" {
		return ""
	}
	return baseURL + "/unsubscribe?token=" + url.QueryEscape(token)
}
