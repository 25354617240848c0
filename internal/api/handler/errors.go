package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/api/response"
	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/location"
	"github.com/shutterspot/shutterspot/internal/weather"
)

// providerRetryAfter matches the default time an open provider circuit waits before probing.
const providerRetryAfter = time.Minute

// writeServiceError maps domain errors to problem responses.
// Unexpected errors are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, weather.ErrValidation),
		errors.Is(err, location.ErrInvalidQuery),
		errors.Is(err, geo.ErrInvalidCoordinate):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, weather.ErrLocationNotFound),
		errors.Is(err, weather.ErrWeatherNotFound),
		errors.Is(err, location.ErrLocationNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, weather.ErrWeatherUnavailable):
		response.ServiceUnavailable(w, r, "weather provider unavailable and no cached forecast exists", providerRetryAfter)
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		// Client went away; nothing useful can be written.
		logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request cancelled")
	default:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
