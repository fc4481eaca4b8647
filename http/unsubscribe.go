package http

import (
	"net/http"
)

const (
	unsubscribedMessage = "You have been unsubscribed."
	// One generic message for every failure: the endpoint must not reveal
	// whether a token ever existed.
	invalidTokenMessage = "This unsubscribe link is invalid or has already been used."
)

type unsubscribeResponse struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

func (s *Server) unsubscribeHandler(w http.ResponseWriter, r *http.Request) error {
	token := r.URL.Query().Get("token")
	if token == "" {
		return NewError(nil, http.StatusBadRequest, "token is required")
	}

	email, err := s.SubscriptionService.Unsubscribe(token)
	if err != nil {
		// not_found and storage errors alike collapse into the generic
		// message; the cause still reaches the log and sentry via the
		// Error wrapper.
		return NewError(err, http.StatusNotFound, invalidTokenMessage)
	}

	writeJSONResponse(w, http.StatusOK, unsubscribeResponse{
		Message: unsubscribedMessage,
		Email:   email,
	})

	return nil
}
