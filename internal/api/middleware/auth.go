package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shutterspot/shutterspot/internal/api/models"
	"github.com/shutterspot/shutterspot/internal/auth"
)

type claimsKey struct{}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Auth rejects requests without a valid bearer token and stores the
// token claims in the request context.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r)
			if problem != "" {
				writeUnauthorized(w, r, problem)
				return
			}

			claims, err := validator.Validate(token)
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				writeUnauthorized(w, r, "access token has expired")
				return
			case errors.Is(err, auth.ErrInvalidToken):
				writeUnauthorized(w, r, "invalid access token")
				return
			case err != nil:
				writeUnauthorized(w, r, "authentication failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// bearerToken extracts the token from the Authorization header. The scheme
// is matched case-insensitively. A non-empty second result explains a failure.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// RequireRole rejects authenticated requests whose token lacks role.
// It must run after Auth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				writeUnauthorized(w, r, "authentication required")
				return
			}
			if !claims.HasRole(role) {
				models.NewProblem(http.StatusForbidden, GetRequestID(r.Context()), "requires role "+role).
					WithInstance(r.URL.Path).
					Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized writes a 401. The response package imports this one,
// so problems are written directly.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="shutterspot"`)
	models.NewProblem(http.StatusUnauthorized, GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path).
		Write(w)
}

// GetClaims returns the token claims, or nil on unauthenticated requests.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// GetSubject returns the token subject, or "" on unauthenticated requests.
func GetSubject(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
