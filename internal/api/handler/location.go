package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/api/models"
	"github.com/shutterspot/shutterspot/internal/api/response"
	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/location"
)

// LocationFinder is the nearby query surface used by LocationHandler.
type LocationFinder interface {
	FindNearby(ctx context.Context, lat, lon, radiusKm float64, opts location.NearbyOptions) ([]location.Summary, error)
	FindNearest(ctx context.Context, lat, lon float64) (*location.Summary, error)
	Get(ctx context.Context, id string) (*location.Location, error)
}

// LocationHandler handles location lookup endpoints.
type LocationHandler struct {
	finder LocationFinder
	logger zerolog.Logger
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(finder LocationFinder, logger zerolog.Logger) *LocationHandler {
	return &LocationHandler{finder: finder, logger: logger}
}

// Nearby handles GET /v1/locations/nearby?lat=&lon=&radiusKm=[&sort=distance][&limit=].
func (h *LocationHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	p := &queryParser{r: r}
	q := models.NearbyQuery{
		Lat:      p.floatParam("lat"),
		Lon:      p.floatParam("lon"),
		RadiusKm: p.floatParam("radiusKm"),
		Sort:     p.stringParam("sort"),
		Limit:    p.intParam("limit"),
	}
	if len(p.errors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", p.errors)
		return
	}
	if errs := validateQuery(q); len(errs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", errs)
		return
	}

	items, err := h.finder.FindNearby(r.Context(), *q.Lat, *q.Lon, *q.RadiusKm, location.NearbyOptions{
		SortByDistance: q.Sort == "distance",
		Limit:          q.Limit,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.NearbyResponse{
		Origin:   geo.Coordinate{Latitude: *q.Lat, Longitude: *q.Lon},
		RadiusKm: *q.RadiusKm,
		Count:    len(items),
		Items:    items,
	})
}

// Nearest handles GET /v1/locations/nearest?lat=&lon=.
func (h *LocationHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	p := &queryParser{r: r}
	q := models.PointQuery{Lat: p.floatParam("lat"), Lon: p.floatParam("lon")}
	if len(p.errors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", p.errors)
		return
	}
	if errs := validateQuery(q); len(errs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", errs)
		return
	}

	nearest, err := h.finder.FindNearest(r.Context(), *q.Lat, *q.Lon)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, nearest)
}

// Get handles GET /v1/locations/{locationId}.
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "locationId"))
	loc, err := h.finder.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewLocation(loc))
}
