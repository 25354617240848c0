// Package response writes JSON bodies and RFC 7807 problem documents for the
// ShutterSpot API. Every response echoes the request ID for correlation.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shutterspot/shutterspot/internal/api/middleware"
	"github.com/shutterspot/shutterspot/internal/api/models"
)

// StaleWarning is the RFC 7234 warning sent with fallback weather.
const StaleWarning = `110 - "Response is Stale"`

// JSON writes data with the given status. The body is encoded before the
// header is sent, so an encoding failure still yields a well-formed 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}

	var body []byte
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			InternalError(w, r, "failed to encode response")
			return
		}
		body = append(b, '\n')
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Stale writes a fallback payload: 200 with the Warning header set.
func Stale(w http.ResponseWriter, r *http.Request, data interface{}) {
	w.Header().Set("Warning", StaleWarning)
	JSON(w, r, http.StatusOK, data)
}

// Error writes a problem document for the current request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 with optional per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, problem(r, http.StatusBadRequest, detail).WithErrors(errors))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, problem(r, http.StatusNotFound, detail))
}

// InternalError writes a 500. detail must not carry internal error text.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, problem(r, http.StatusInternalServerError, detail))
}

// ServiceUnavailable writes a 503. A positive retryAfter is sent as Retry-After
// in whole seconds, rounded up.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	Error(w, r, problem(r, http.StatusServiceUnavailable, detail))
}

func problem(r *http.Request, status int, detail string) *models.Problem {
	return models.NewProblem(status, middleware.GetRequestID(r.Context()), detail)
}
