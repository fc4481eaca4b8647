package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/subkeeper/subkeeper"
)

// adminIdentityHeader carries the caller identity established by the
// upstream authenticator. The middleware only applies the allow-list policy.
const adminIdentityHeader = "X-Admin-Email"

const (
	defaultPage     = 1
	defaultPageSize = 20
)

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.Header.Get(adminIdentityHeader)
		if email == "" {
			writeJSONResponse(w, http.StatusUnauthorized, map[string]string{"error": subkeeper.ErrUnauthorized})
			return
		}

		if s.Policy == nil || !s.Policy.CanAdminister(email) {
			hlog.FromRequest(r).Warn().Str("email", email).Msg("admin access denied")
			writeJSONResponse(w, http.StatusForbidden, map[string]string{"error": subkeeper.ErrForbidden})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ListSubscriptionsRequest holds the parsed query parameters of the admin
// listing endpoint.
type ListSubscriptionsRequest struct {
	Page     int
	PageSize int
	Status   string
	Plan     string
}

// Validate implements ozzo validation for the listing request.
func (req ListSubscriptionsRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Page, validation.Min(1)),
		validation.Field(&req.PageSize, validation.Min(1)),
	)
}

// ListSubscriptionsResponse is the paginated admin listing.
type ListSubscriptionsResponse struct {
	Items      []subkeeper.Subscription `json:"items"`
	TotalCount int                      `json:"total_count"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
}

func (s *Server) listSubscriptionsHandler(w http.ResponseWriter, r *http.Request) error {
	req, err := parseListRequest(r)
	if err != nil {
		return NewError(err, http.StatusBadRequest, "invalid pagination parameters")
	}
	if err := req.Validate(); err != nil {
		return NewError(err, http.StatusBadRequest, err.Error())
	}

	items, total, err := s.SubscriptionService.List(req.Page, req.PageSize, subkeeper.Filter{
		Status: req.Status,
		Plan:   req.Plan,
	})
	if err != nil {
		return serviceError(err)
	}

	writeJSONResponse(w, http.StatusOK, ListSubscriptionsResponse{
		Items:      items,
		TotalCount: total,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})

	return nil
}

func parseListRequest(r *http.Request) (ListSubscriptionsRequest, error) {
	req := ListSubscriptionsRequest{
		Page:     defaultPage,
		PageSize: defaultPageSize,
		Status:   r.URL.Query().Get("status"),
		Plan:     r.URL.Query().Get("plan"),
	}

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return req, err
		}
		req.Page = page
	}

	if raw := r.URL.Query().Get("page_size"); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil {
			return req, err
		}
		req.PageSize = pageSize
	}

	if req.PageSize > subkeeper.MaxPageSize {
		req.PageSize = subkeeper.MaxPageSize
	}

	return req, nil
}

// UpdateStatusRequest is the body of the admin status change endpoint.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// Validate implements ozzo validation for the status change request.
func (req UpdateStatusRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Status, validation.Required),
	)
}

func (s *Server) updateStatusHandler(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return NewError(err, http.StatusBadRequest, "invalid id")
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return NewError(err, http.StatusBadRequest, err.Error())
	}

	if err := s.SubscriptionService.UpdateStatus(id, req.Status); err != nil {
		return serviceError(err)
	}

	hlog.FromRequest(r).Info().
		Int("id", id).
		Str("status", req.Status).
		Msg("updated subscription status")

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "status updated"})

	return nil
}

func (s *Server) deleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return NewError(err, http.StatusBadRequest, "invalid id")
	}

	if err := s.SubscriptionService.SoftDelete(id); err != nil {
		return serviceError(err)
	}

	hlog.FromRequest(r).Info().
		Int("id", id).
		Msg("soft-deleted subscription")

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "subscription deleted"})

	return nil
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) error {
	stats, err := s.SubscriptionService.Stats()
	if err != nil {
		return serviceError(err)
	}

	writeJSONResponse(w, http.StatusOK, stats)

	return nil
}
