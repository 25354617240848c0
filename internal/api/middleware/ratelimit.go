package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/shutterspot/shutterspot/internal/api/models"
)

// RateLimitConfig is a fixed-window request budget.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// RateLimits holds the budget for each endpoint tier.
type RateLimits struct {
	// Standard covers location reads served from storage.
	Standard RateLimitConfig
	// Expensive covers endpoints that may call the weather provider.
	Expensive RateLimitConfig
	// Admin covers batch sync, keyed by token subject.
	Admin RateLimitConfig
}

// Default rate limit tiers.
var (
	AdminRateLimit     = RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}
	ExpensiveRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}
	StandardRateLimit  = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// DefaultRateLimits returns the default tiers.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Standard:  StandardRateLimit,
		Expensive: ExpensiveRateLimit,
		Admin:     AdminRateLimit,
	}
}

// WithDefaults fills unset tiers from DefaultRateLimits.
func (l RateLimits) WithDefaults() RateLimits {
	d := DefaultRateLimits()
	if l.Standard.RequestLimit <= 0 || l.Standard.WindowLength <= 0 {
		l.Standard = d.Standard
	}
	if l.Expensive.RequestLimit <= 0 || l.Expensive.WindowLength <= 0 {
		l.Expensive = d.Expensive
	}
	if l.Admin.RequestLimit <= 0 || l.Admin.WindowLength <= 0 {
		l.Admin = d.Admin
	}
	return l
}

// RateLimitByIP limits by client address. Run chi's RealIP first so proxied
// requests are keyed by the original client.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

// RateLimitByUser limits by token subject, falling back to the client address
// for unauthenticated requests.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByUserOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

func keyByUserOrIP(r *http.Request) (string, error) {
	if subject := GetSubject(r.Context()); subject != "" {
		return "sub:" + subject, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes a 429 problem. httprate may already have set
// Retry-After; otherwise the full window is a safe upper bound.
func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))
	return func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		models.NewProblem(http.StatusTooManyRequests, GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.").
			WithInstance(r.URL.Path).
			Write(w)
	}
}
