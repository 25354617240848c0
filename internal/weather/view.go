package weather

import (
	"fmt"
	"strings"
	"time"

	"github.com/shutterspot/shutterspot/internal/geo"
)

// Origin tells where the data in a View came from.
type Origin string

const (
	// OriginCache means the stored aggregate was fresh and reused.
	OriginCache Origin = "cache"

	// OriginRemote means the aggregate was refreshed and persisted.
	OriginRemote Origin = "remote"

	// OriginFallback means the refresh failed and stale stored data was served.
	OriginFallback Origin = "fallback"
)

// WindDirectionMode selects how wind direction is presented.
type WindDirectionMode string

const (
	// WindFrom is the meteorological convention: where the wind blows from.
	WindFrom WindDirectionMode = "from"

	// WindTowards shows where the wind blows to (direction + 180°).
	WindTowards WindDirectionMode = "towards"
)

// ParseWindDirectionMode accepts "from" or "towards" (case-insensitive).
func ParseWindDirectionMode(s string) (WindDirectionMode, error) {
	switch WindDirectionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", WindFrom:
		return WindFrom, nil
	case WindTowards:
		return WindTowards, nil
	default:
		return "", fmt.Errorf("%w: unknown wind direction mode %q", ErrValidation, s)
	}
}

// View is the presentation of a location's weather returned by a sync.
// Wind directions in a View follow the configured WindDirectionMode; stored
// data always keeps the meteorological convention.
type View struct {
	WeatherID             string           `json:"weatherId"`
	LocationID            string           `json:"locationId"`
	Coordinate            geo.Coordinate   `json:"coordinate"`
	Timezone              string           `json:"timezone"`
	TimezoneOffsetSeconds int              `json:"timezoneOffsetSeconds"`
	LastUpdate            time.Time        `json:"lastUpdate"`
	Origin                Origin           `json:"origin"`
	Current               *DailyForecast   `json:"current,omitempty"`
	Daily                 []DailyForecast  `json:"daily"`
	Hourly                []HourlyForecast `json:"hourly"`
}

// IsFallback reports whether stale data was served after a failed refresh.
func (v *View) IsFallback() bool {
	return v.Origin == OriginFallback
}

// Age returns how long ago the data was fetched.
func (v *View) Age(now time.Time) time.Duration {
	return now.Sub(v.LastUpdate)
}

// newView maps an aggregate to a View, applying the display mode to copies.
func newView(w *Weather, origin Origin, mode WindDirectionMode) *View {
	v := &View{
		WeatherID:             w.ID,
		LocationID:            w.LocationID,
		Coordinate:            w.Coordinate,
		Timezone:              w.Timezone,
		TimezoneOffsetSeconds: w.TimezoneOffsetSeconds,
		LastUpdate:            w.LastUpdate,
		Origin:                origin,
		Daily:                 make([]DailyForecast, len(w.DailyForecasts)),
		Hourly:                make([]HourlyForecast, len(w.HourlyForecasts)),
	}

	flip := mode == WindTowards
	for i, d := range w.DailyForecasts {
		if flip {
			d.Wind = d.Wind.Flipped()
		}
		v.Daily[i] = d
	}
	for i, h := range w.HourlyForecasts {
		if flip {
			h.Wind = h.Wind.Flipped()
		}
		v.Hourly[i] = h
	}

	if len(v.Daily) > 0 {
		current := v.Daily[0]
		v.Current = &current
	}
	return v
}
