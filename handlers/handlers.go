package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"neon/backend/query"
	"neon/backend/services"

	"go.uber.org/zap"
)

// Handlers serves the HTTP API on top of the query service clients, the
// timeline registry and the saved filter tables.
type Handlers struct {
	Query     *services.QueryService
	Filters   *services.FilterService
	Timelines *services.TimelineService
	Tables    *services.FilterTableService
	Logger    *zap.Logger
}

func (h *Handlers) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var clauseErr *query.InvalidClauseError
	var transportErr *services.TransportError
	var malformedErr *services.MalformedResponseError

	switch {
	case errors.As(err, &clauseErr):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &transportErr), errors.As(err, &malformedErr):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrBucketOutOfRange):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger().Error(msg,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	http.Error(w, msg+": "+err.Error(), status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// HealthCheck reports that the server is up.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
