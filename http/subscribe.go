package http

import (
	"encoding/json"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/zerolog/hlog"
)

// CreateSubscriptionRequest is the body of POST /subscriptions, filled in by
// the landing-page form.
type CreateSubscriptionRequest struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Plan    string   `json:"plan"`
	Content []string `json:"content"`
}

// Validate implements ozzo validation for the create request.
func (req CreateSubscriptionRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Email, validation.Required, is.EmailFormat),
		validation.Field(&req.Name, validation.Length(0, 255)),
		validation.Field(&req.Plan, validation.Length(0, 64)),
	)
}

func (s *Server) createSubscriptionHandler(w http.ResponseWriter, r *http.Request) error {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, "invalid request body")
	}

	if err := req.Validate(); err != nil {
		return NewError(err, http.StatusUnprocessableEntity, err.Error())
	}

	subscription, err := s.SubscriptionService.Create(req.Name, req.Email, req.Plan, req.Content)
	if err != nil {
		return err
	}

	hlog.FromRequest(r).Info().
		Int("id", subscription.ID).
		Str("email", subscription.Email).
		Msg("created subscription")

	writeJSONResponse(w, http.StatusCreated, subscription)

	return nil
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	//nolint:errcheck
	json.NewEncoder(w).Encode(response)
}
