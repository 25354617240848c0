package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/api/middleware"
	"github.com/shutterspot/shutterspot/internal/api/models"
	"github.com/shutterspot/shutterspot/internal/api/response"
	"github.com/shutterspot/shutterspot/internal/weather"
)

// WeatherSyncer is the weather engine surface used by WeatherHandler.
type WeatherSyncer interface {
	SyncLocationWeather(ctx context.Context, locationID string) (*weather.View, error)
	SyncActive(ctx context.Context) (*weather.BatchResult, error)
}

// WeatherHandler handles weather sync endpoints.
type WeatherHandler struct {
	syncer WeatherSyncer
	logger zerolog.Logger
	now    func() time.Time
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(syncer WeatherSyncer, logger zerolog.Logger) *WeatherHandler {
	return &WeatherHandler{syncer: syncer, logger: logger, now: time.Now}
}

// SyncLocation handles POST /v1/locations/{locationId}/weather:sync.
// A stale cached forecast is returned with stale=true when the provider is down.
func (h *WeatherHandler) SyncLocation(w http.ResponseWriter, r *http.Request) {
	locationID := strings.TrimSpace(chi.URLParam(r, "locationId"))
	if locationID == "" {
		response.BadRequest(w, r, "locationId is required", []models.FieldError{
			{Field: "locationId", Message: "is required", Code: "required"},
		})
		return
	}

	view, err := h.syncer.SyncLocationWeather(r.Context(), locationID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if view.IsFallback() {
		response.Stale(w, r, models.NewWeatherResponse(view, h.now()))
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewWeatherResponse(view, h.now()))
}

// SyncAll handles POST /v1/weather:syncAll - sync every active location.
// Per-location failures are reported in the body; the request itself succeeds.
func (h *WeatherHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	h.logger.Info().Str("subject", middleware.GetSubject(r.Context())).Msg("batch weather sync requested")

	result, err := h.syncer.SyncActive(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewSyncAllResponse(result))
}
