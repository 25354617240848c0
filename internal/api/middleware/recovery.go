package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection quietly.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				requestID := GetRequestID(r.Context())
				log.Error().
					Str("request_id", requestID).
					Str("path", r.URL.Path).
					Interface("panic", p).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				// A partially written response cannot be replaced.
				if rec.wroteHeader {
					return
				}
				models.NewProblem(http.StatusInternalServerError, requestID, "an unexpected error occurred").
					WithInstance(r.URL.Path).
					Write(rec)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
