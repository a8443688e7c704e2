package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/engine"
	"github.com/hammamikhairi/guardian/internal/library"
	"github.com/hammamikhairi/guardian/internal/lullaby"
)

// statusClientClosed is the nginx convention for a request the client
// abandoned before the response was written.
const statusClientClosed = 499

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosed
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrDecode),
		errors.Is(err, domain.ErrEmptyClip),
		errors.Is(err, lullaby.ErrEmptyTopic):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrBelowThreshold):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrService),
		errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrModelUnavailable),
		errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, engine.ErrNoLullaby),
		errors.Is(err, library.ErrNoGenerator):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.log.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
