package http

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subkeeper/subkeeper"
	"github.com/subkeeper/subkeeper/mock"
	"github.com/subkeeper/subkeeper/sqlite"
)

const adminEmail = "admin@example.com"

var s *Server

func TestMain(m *testing.M) {
	var err error
	s, err = NewServer()
	if err != nil {
		log.Fatal(err)
	}
	s.Policy = subkeeper.NewAllowList([]string{adminEmail})

	os.Exit(m.Run())
}

func TestCreateSubscriptionHandler(t *testing.T) {
	subscription := subkeeper.NewSubscription("Ana", "ana@x.com", "free", []string{"news"})
	subscription.ID = 1

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("Create", "Ana", "ana@x.com", "free", []string{"news"}).Return(subscription, nil)
	s.SubscriptionService = subscriptionService

	data, err := json.Marshal(CreateSubscriptionRequest{
		Name:    "Ana",
		Email:   "ana@x.com",
		Plan:    "free",
		Content: []string{"news"},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "/subscriptions", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var created subkeeper.Subscription
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&created))
	assert.Equal(t, 1, created.ID)
	assert.Equal(t, "ana@x.com", created.Email)
	// The token must not appear in the response.
	assert.Empty(t, created.Token)
	assert.NotContains(t, w.Body.String(), subscription.Token)

	subscriptionService.AssertExpectations(t)
}

func TestCreateSubscriptionHandler_InvalidEmail(t *testing.T) {
	s.SubscriptionService = new(mock.SubscriptionService)

	data, err := json.Marshal(CreateSubscriptionRequest{Email: "not-an-email"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "/subscriptions", bytes.NewReader(data))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUnsubscribeHandler(t *testing.T) {
	token := subkeeper.NewToken()

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("Unsubscribe", token).Return("ana@x.com", nil)
	s.SubscriptionService = subscriptionService

	req, err := http.NewRequest(http.MethodGet, "/unsubscribe?token="+token, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp unsubscribeResponse
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&resp))
	assert.Equal(t, unsubscribedMessage, resp.Message)
	assert.Equal(t, "ana@x.com", resp.Email)

	subscriptionService.AssertExpectations(t)
}

func TestUnsubscribeHandler_MissingToken(t *testing.T) {
	s.SubscriptionService = new(mock.SubscriptionService)

	req, err := http.NewRequest(http.MethodGet, "/unsubscribe", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnsubscribeHandler_GenericFailureMessage(t *testing.T) {
	notFound := &subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"}
	internal := &subkeeper.Error{Code: subkeeper.ErrInternal, Op: "sqlite.Unsubscribe", Err: assert.AnError}

	testCases := []struct {
		name string
		err  error
	}{
		{name: "unknown token", err: notFound},
		{name: "storage error", err: internal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token := subkeeper.NewToken()
			subscriptionService := new(mock.SubscriptionService)
			subscriptionService.On("Unsubscribe", token).Return("", tc.err)
			s.SubscriptionService = subscriptionService

			req, err := http.NewRequest(http.MethodGet, "/unsubscribe?token="+token, nil)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			// Both failure kinds collapse into the same response so the
			// endpoint cannot be used to probe token validity.
			assert.Equal(t, http.StatusNotFound, w.Code)

			var resp struct {
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&resp))
			assert.Equal(t, invalidTokenMessage, resp.Message)
		})
	}
}

func TestAdmin_RequiresIdentity(t *testing.T) {
	s.SubscriptionService = new(mock.SubscriptionService)

	req, err := http.NewRequest(http.MethodGet, "/admin/subscriptions", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_RejectsUnknownCaller(t *testing.T) {
	s.SubscriptionService = new(mock.SubscriptionService)

	req, err := http.NewRequest(http.MethodGet, "/admin/stats", nil)
	require.NoError(t, err)
	req.Header.Set(adminIdentityHeader, "visitor@example.com")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListSubscriptionsHandler(t *testing.T) {
	items := []subkeeper.Subscription{
		*subkeeper.NewSubscription("B", "b@x.com", "pro", nil),
		*subkeeper.NewSubscription("A", "a@x.com", "free", nil),
	}

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("List", 2, 10, subkeeper.Filter{Status: subkeeper.StatusActive}).Return(items, 25, nil)
	s.SubscriptionService = subscriptionService

	req, err := http.NewRequest(http.MethodGet, "/admin/subscriptions?page=2&page_size=10&status=active", nil)
	require.NoError(t, err)
	req.Header.Set(adminIdentityHeader, adminEmail)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp ListSubscriptionsResponse
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&resp))
	assert.Equal(t, 25, resp.TotalCount)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 10, resp.PageSize)
	assert.Len(t, resp.Items, 2)

	subscriptionService.AssertExpectations(t)
}

func TestListSubscriptionsHandler_InvalidPagination(t *testing.T) {
	s.SubscriptionService = new(mock.SubscriptionService)

	for _, query := range []string{"page=0", "page_size=0", "page=x", "page_size=x"} {
		req, err := http.NewRequest(http.MethodGet, "/admin/subscriptions?"+query, nil)
		require.NoError(t, err)
		req.Header.Set(adminIdentityHeader, adminEmail)

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "query: %s", query)
	}
}

func TestListSubscriptionsHandler_PageSizeClamped(t *testing.T) {
	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("List", 1, subkeeper.MaxPageSize, subkeeper.Filter{}).
		Return([]subkeeper.Subscription{}, 0, nil)
	s.SubscriptionService = subscriptionService

	req, err := http.NewRequest(http.MethodGet, "/admin/subscriptions?page_size=5000", nil)
	require.NoError(t, err)
	req.Header.Set(adminIdentityHeader, adminEmail)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	subscriptionService.AssertExpectations(t)
}

func TestUpdateStatusHandler(t *testing.T) {
	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("UpdateStatus", 42, subkeeper.StatusInactive).Return(nil)
	s.SubscriptionService = subscriptionService

	data, err := json.Marshal(UpdateStatusRequest{Status: subkeeper.StatusInactive})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPatch, "/admin/subscriptions/42/status", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set(adminIdentityHeader, adminEmail)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	subscriptionService.AssertExpectations(t)
}

func TestUpdateStatusHandler_InvalidStatus(t *testing.T) {
	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("UpdateStatus", 42, "bogus").
		Return(&subkeeper.Error{Code: subkeeper.ErrInvalid, Message: "unknown status: bogus"})
	s.SubscriptionService = subscriptionService

	data, err := json.Marshal(UpdateStatusRequest{Status: "bogus"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPatch, "/admin/subscriptions/42/status", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set(adminIdentityHeader, adminEmail)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDeleteSubscriptionHandler(t *testing.T) {
	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("SoftDelete", 7).Return(nil)
	s.SubscriptionService = subscriptionService

	req, err := http.NewRequest(http.MethodDelete, "/admin/subscriptions/7", nil)
	require.NoError(t, err)
	req.Header.Set(adminIdentityHeader, adminEmail)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	subscriptionService.AssertExpectations(t)
}

func TestDeleteSubscriptionHandler_NotFound(t *testing.T) {
	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("SoftDelete", 9999).
		Return(&subkeeper.Error{Code: subkeeper.ErrNotFound, Message: "subscription not found"})
	s.SubscriptionService = subscriptionService

	req, err := http.NewRequest(http.MethodDelete, "/admin/subscriptions/9999", nil)
	require.NoError(t, err)
	req.Header.Set(adminIdentityHeader, adminEmail)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestUnsubscribeFlow exercises the whole flow against a real sqlite store:
// a visitor subscribes, follows their unsubscribe link once, and the link is
// dead afterwards while the record survives as inactive.
func TestUnsubscribeFlow(t *testing.T) {
	db := sqlite.NewDB(filepath.Join(t.TempDir(), "subkeeper_test.db"))
	require.NoError(t, db.Open())
	t.Cleanup(func() {
		_ = db.Close()
	})
	svc := sqlite.NewSubscriptionService(db, subkeeper.DefaultStatuses())
	s.SubscriptionService = svc

	data, err := json.Marshal(CreateSubscriptionRequest{
		Name:    "Ana",
		Email:   "ana@x.com",
		Content: []string{"news"},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "/subscriptions", bytes.NewReader(data))
	require.NoError(t, err)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	items, _, err := svc.List(1, 1, subkeeper.Filter{})
	require.NoError(t, err)
	token := items[0].Token
	link := subkeeper.UnsubscribeURL("", token)

	req, err = http.NewRequest(http.MethodGet, link, nil)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp unsubscribeResponse
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&resp))
	assert.Equal(t, "ana@x.com", resp.Email)

	// Replaying the link deterministically fails.
	req, err = http.NewRequest(http.MethodGet, link, nil)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	items, total, err := svc.List(1, 1, subkeeper.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, subkeeper.StatusInactive, items[0].Status)
	assert.NotEqual(t, token, items[0].Token)
}

func TestStatsHandler(t *testing.T) {
	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("Stats").Return(&subkeeper.Stats{
		Total:    3,
		ByStatus: map[string]int{subkeeper.StatusActive: 2, subkeeper.StatusInactive: 1},
		ByPlan:   map[string]int{"pro": 2, "free": 1},
	}, nil)
	s.SubscriptionService = subscriptionService

	req, err := http.NewRequest(http.MethodGet, "/admin/stats", nil)
	require.NoError(t, err)
	req.Header.Set(adminIdentityHeader, adminEmail)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var stats subkeeper.Stats
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[subkeeper.StatusActive])

	subscriptionService.AssertExpectations(t)
}
