package models

import (
	"time"

	"github.com/shutterspot/shutterspot/internal/weather"
)

// SyncAllResponse is returned by POST /v1/weather:syncAll.
type SyncAllResponse struct {
	StartedAt  Timestamp        `json:"startedAt"`
	DurationMs int64            `json:"durationMs"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Synced     int              `json:"synced"`
	FromCache  int              `json:"fromCache"`
	Fallback   int              `json:"fallback"`
	Failed     int              `json:"failed"`
	Errors     []SyncErrorEntry `json:"errors,omitempty"`
}

// SyncErrorEntry reports one failed location in a batch sync.
type SyncErrorEntry struct {
	LocationID string `json:"locationId"`
	Message    string `json:"message"`
}

// NewSyncAllResponse maps a batch result.
func NewSyncAllResponse(r *weather.BatchResult) SyncAllResponse {
	resp := SyncAllResponse{
		StartedAt:  Timestamp(r.StartTime),
		DurationMs: r.Duration.Milliseconds(),
		Total:      r.Total,
		Succeeded:  r.Succeeded(),
		Synced:     r.Synced,
		FromCache:  r.FromCache,
		Fallback:   r.Fallback,
		Failed:     r.Failed,
	}
	for _, e := range r.Errors {
		resp.Errors = append(resp.Errors, SyncErrorEntry{LocationID: e.LocationID, Message: e.Error})
	}
	return resp
}

// WeatherResponse wraps a synced weather view with its freshness.
type WeatherResponse struct {
	*weather.View
	AgeSeconds int64 `json:"ageSeconds"`
	Stale      bool  `json:"stale"`
}

// NewWeatherResponse maps a view as of now.
func NewWeatherResponse(v *weather.View, now time.Time) WeatherResponse {
	return WeatherResponse{
		View:       v,
		AgeSeconds: int64(v.Age(now).Seconds()),
		Stale:      v.IsFallback(),
	}
}
