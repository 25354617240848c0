// Package handler provides HTTP handlers for the ShutterSpot API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shutterspot/shutterspot/internal/api/models"
	"github.com/shutterspot/shutterspot/internal/api/response"
	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/provider/resilience"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// OpsConfig holds the optional dependencies reported by OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Database is pinged by the readiness check.
	Database Pinger

	// Registry reports upstream provider health.
	Registry *resilience.Registry

	// CacheStats reports distance cache effectiveness.
	CacheStats func() geo.CacheStats

	// RefreshStats reports scheduled refresh counters.
	RefreshStats func() map[string]interface{}
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	db := h.databaseStatus(r.Context())
	if db.Status != models.HealthStatusOK {
		response.ServiceUnavailable(w, r, "database unavailable", 0)
		return
	}
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{h.databaseStatus(r.Context())},
		Providers:  []models.ProviderStatus{},
	}
	if status.Subsystems[0].Status != models.HealthStatusOK {
		status.Status = models.HealthStatusFail
	}

	if h.cfg.Registry != nil {
		for _, ph := range h.cfg.Registry.GetAllHealth() {
			ps := providerStatus(ph)
			if ps.Status != models.HealthStatusOK {
				status.DegradedProviders = append(status.DegradedProviders, ph.Name)
				if status.Status == models.HealthStatusOK {
					status.Status = models.HealthStatusDegraded
				}
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	if h.cfg.CacheStats != nil {
		stats := h.cfg.CacheStats()
		status.DistanceCache = &stats
	}
	if h.cfg.RefreshStats != nil {
		status.Refresh = h.cfg.RefreshStats()
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) databaseStatus(ctx context.Context) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK}
	if h.cfg.Database == nil {
		return s
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.cfg.Database.Ping(ctx); err != nil {
		msg := err.Error()
		s.Status = models.HealthStatusFail
		s.Detail = &msg
	}
	return s
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            ph.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        ph.CircuitState.String(),
		ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
		LastSuccessAt:       models.TimestampPtr(ph.LastSuccessAt),
		LastFailureAt:       models.TimestampPtr(ph.LastFailureAt),
	}
	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}
