package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error document, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID echoes the request ID so clients can quote it in reports.
	TraceID string `json:"traceId"`

	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError describes one rejected query or body field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs.
const (
	ProblemTypeValidation      = "https://api.shutterspot.app/problems/validation-error"
	ProblemTypeUnauthorized    = "https://api.shutterspot.app/problems/unauthorized"
	ProblemTypeForbidden       = "https://api.shutterspot.app/problems/forbidden"
	ProblemTypeNotFound        = "https://api.shutterspot.app/problems/not-found"
	ProblemTypeTooManyRequests = "https://api.shutterspot.app/problems/too-many-requests"
	ProblemTypeInternal        = "https://api.shutterspot.app/problems/internal-error"
	ProblemTypeUnavailable     = "https://api.shutterspot.app/problems/service-unavailable"
	ProblemTypeTLSRequired     = "https://api.shutterspot.app/problems/tls-required"
)

type problemKind struct {
	uri   string
	title string
}

var problemKinds = map[int]problemKind{
	http.StatusBadRequest:          {ProblemTypeValidation, "Validation error"},
	http.StatusUnauthorized:        {ProblemTypeUnauthorized, "Unauthorized"},
	http.StatusForbidden:           {ProblemTypeForbidden, "Forbidden"},
	http.StatusNotFound:            {ProblemTypeNotFound, "Not found"},
	http.StatusTooManyRequests:     {ProblemTypeTooManyRequests, "Too many requests"},
	http.StatusInternalServerError: {ProblemTypeInternal, "Internal server error"},
	http.StatusServiceUnavailable:  {ProblemTypeUnavailable, "Service unavailable"},
}

// NewProblem builds the problem for an HTTP status. Statuses without a
// registered type get "about:blank" and the standard status text.
func NewProblem(status int, traceID, detail string) *Problem {
	kind, ok := problemKinds[status]
	if !ok {
		kind = problemKind{uri: "about:blank", title: http.StatusText(status)}
	}
	return &Problem{
		Type:    kind.uri,
		Title:   kind.title,
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithType overrides the type URI and title.
func (p *Problem) WithType(uri, title string) *Problem {
	p.Type = uri
	p.Title = title
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors attaches per-field errors.
func (p *Problem) WithErrors(errs []FieldError) *Problem {
	p.Errors = errs
	return p
}

// Error implements error.
func (p *Problem) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	body, err := json.Marshal(p)
	if err != nil {
		http.Error(w, p.Title, p.Status)
		return
	}
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_, _ = w.Write(append(body, '\n'))
}
