package weather

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shutterspot/shutterspot/internal/geo"
)

// Weather errors.
var (
	ErrValidation         = errors.New("validation failed")
	ErrWeatherUnavailable = errors.New("weather unavailable")
	ErrPersistence        = errors.New("weather persistence failed")
	ErrWeatherNotFound    = errors.New("weather not found")
	ErrLocationNotFound   = errors.New("location not found")
	ErrEmptyForecast      = errors.New("remote returned no daily forecasts")
)

// Forecast list bounds kept per aggregate.
const (
	MaxDailyForecasts  = 7
	MaxHourlyForecasts = 48
)

// LocationRef identifies a location and where it is.
type LocationRef struct {
	ID         string
	Coordinate geo.Coordinate
}

// FetchResult is what a RemoteSource returns for one coordinate, already
// normalized to metric units.
type FetchResult struct {
	Timezone              string
	TimezoneOffsetSeconds int
	Daily                 []DailyForecast
	Hourly                []HourlyForecast
}

// Weather is the per-location aggregate: metadata plus its forecast lists.
// Exactly one exists per location. Values are replaced wholesale on refresh;
// nothing outside the aggregate keeps references to its slices.
type Weather struct {
	ID                    string         `json:"id"`
	LocationID            string         `json:"locationId"`
	Coordinate            geo.Coordinate `json:"coordinate"`
	Timezone              string         `json:"timezone"`
	TimezoneOffsetSeconds int            `json:"timezoneOffsetSeconds"`
	LastUpdate            time.Time      `json:"lastUpdate"`

	// DailyForecasts is ordered by date with one entry per local calendar date.
	DailyForecasts []DailyForecast `json:"dailyForecasts"`

	// HourlyForecasts is ordered by time with one entry per timestamp.
	HourlyForecasts []HourlyForecast `json:"hourlyForecasts"`
}

// NewWeather builds the first aggregate for a location from a fetch.
// The ID is left empty; the store assigns it on first insert.
func NewWeather(loc LocationRef, res *FetchResult, fetchedAt time.Time) (*Weather, error) {
	if loc.ID == "" {
		return nil, &ValidationError{Field: "locationId", Rule: "required"}
	}

	w := &Weather{
		LocationID: loc.ID,
		Coordinate: loc.Coordinate,
	}
	return w.Refresh(res, fetchedAt)
}

// Refresh returns a new aggregate with the same identity whose forecasts are
// replaced by the fetch result. The receiver is not modified.
func (w *Weather) Refresh(res *FetchResult, fetchedAt time.Time) (*Weather, error) {
	if res == nil || len(res.Daily) == 0 {
		return nil, ErrEmptyForecast
	}

	next := &Weather{
		ID:                    w.ID,
		LocationID:            w.LocationID,
		Coordinate:            w.Coordinate,
		Timezone:              res.Timezone,
		TimezoneOffsetSeconds: res.TimezoneOffsetSeconds,
		LastUpdate:            fetchedAt,
	}

	loc := next.Location()

	daily, err := normalizeDaily(res.Daily, loc)
	if err != nil {
		return nil, err
	}
	hourly, err := normalizeHourly(res.Hourly)
	if err != nil {
		return nil, err
	}

	next.DailyForecasts = daily
	next.HourlyForecasts = hourly
	return next, nil
}

// Relocate returns a shallow copy of the aggregate at coord.
func (w *Weather) Relocate(coord geo.Coordinate) *Weather {
	next := *w
	next.Coordinate = coord
	return &next
}

// Location resolves the aggregate's timezone: the IANA name when it loads,
// else the fixed offset, else UTC.
func (w *Weather) Location() *time.Location {
	if w.Timezone != "" {
		if loc, err := time.LoadLocation(w.Timezone); err == nil {
			return loc
		}
	}
	if w.TimezoneOffsetSeconds != 0 {
		name := w.Timezone
		if name == "" {
			name = fmt.Sprintf("UTC%+d", w.TimezoneOffsetSeconds/3600)
		}
		return time.FixedZone(name, w.TimezoneOffsetSeconds)
	}
	return time.UTC
}

// Clone returns a deep copy.
func (w *Weather) Clone() *Weather {
	if w == nil {
		return nil
	}
	cpy := *w
	cpy.DailyForecasts = append([]DailyForecast(nil), w.DailyForecasts...)
	cpy.HourlyForecasts = append([]HourlyForecast(nil), w.HourlyForecasts...)
	return &cpy
}

// CurrentForecast returns the first daily forecast, if any.
func (w *Weather) CurrentForecast() (DailyForecast, bool) {
	if len(w.DailyForecasts) == 0 {
		return DailyForecast{}, false
	}
	return w.DailyForecasts[0], true
}

// calendarDate formats t as a local calendar date in loc.
func calendarDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// normalizeDaily validates, sorts and dedupes by local date, keeping the
// first entry seen for a date, then caps at MaxDailyForecasts.
func normalizeDaily(in []DailyForecast, loc *time.Location) ([]DailyForecast, error) {
	out := make([]DailyForecast, 0, len(in))
	for i := range in {
		d, err := NewDailyForecast(in[i])
		if err != nil {
			return nil, fmt.Errorf("daily forecast %d: %w", i, err)
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	seen := make(map[string]struct{}, len(out))
	unique := out[:0]
	for _, d := range out {
		key := calendarDate(d.Date, loc)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, d)
	}

	if len(unique) > MaxDailyForecasts {
		unique = unique[:MaxDailyForecasts]
	}
	return unique, nil
}

// normalizeHourly validates, sorts and dedupes by timestamp, then caps at
// MaxHourlyForecasts.
func normalizeHourly(in []HourlyForecast) ([]HourlyForecast, error) {
	out := make([]HourlyForecast, 0, len(in))
	for i := range in {
		h, err := NewHourlyForecast(in[i])
		if err != nil {
			return nil, fmt.Errorf("hourly forecast %d: %w", i, err)
		}
		out = append(out, h)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})

	unique := out[:0]
	for _, h := range out {
		if n := len(unique); n > 0 && h.Time.Equal(unique[n-1].Time) {
			continue
		}
		unique = append(unique, h)
	}

	if len(unique) > MaxHourlyForecasts {
		unique = unique[:MaxHourlyForecasts]
	}
	return unique, nil
}
