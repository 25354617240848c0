package weather

import "time"

// Freshness is the outcome of a staleness decision.
type Freshness string

const (
	FreshnessMissing Freshness = "MISSING"
	FreshnessStale   Freshness = "STALE"
	FreshnessFresh   Freshness = "FRESH"
)

// Staleness defaults.
const (
	DefaultMaxAge       = 48 * time.Hour
	DefaultCoverageDays = 5
)

// StalenessPolicy decides whether a cached aggregate can be reused.
// Age and forecast coverage are independent triggers for a refresh.
type StalenessPolicy struct {
	// MaxAge is how old LastUpdate may be before a refresh (default: 48h).
	MaxAge time.Duration

	// CoverageDays is the number of consecutive local calendar days, starting
	// today, that must each have a daily forecast (default: 5).
	CoverageDays int
}

// DefaultStalenessPolicy returns the 48h / 5-day policy.
func DefaultStalenessPolicy() StalenessPolicy {
	return StalenessPolicy{
		MaxAge:       DefaultMaxAge,
		CoverageDays: DefaultCoverageDays,
	}
}

func (p StalenessPolicy) withDefaults() StalenessPolicy {
	if p.MaxAge <= 0 {
		p.MaxAge = DefaultMaxAge
	}
	if p.CoverageDays <= 0 {
		p.CoverageDays = DefaultCoverageDays
	}
	return p
}

// Decide classifies cached weather at time now.
func (p StalenessPolicy) Decide(cached *Weather, now time.Time) Freshness {
	if cached == nil {
		return FreshnessMissing
	}

	p = p.withDefaults()
	if now.Sub(cached.LastUpdate) > p.MaxAge {
		return FreshnessStale
	}
	if len(p.MissingDates(cached, now)) > 0 {
		return FreshnessStale
	}
	return FreshnessFresh
}

// MissingDates lists the local calendar dates (YYYY-MM-DD) in the coverage
// window that have no daily forecast.
func (p StalenessPolicy) MissingDates(cached *Weather, now time.Time) []string {
	p = p.withDefaults()
	loc := time.UTC
	if cached != nil {
		loc = cached.Location()
	}

	have := make(map[string]struct{})
	if cached != nil {
		for _, d := range cached.DailyForecasts {
			have[calendarDate(d.Date, loc)] = struct{}{}
		}
	}

	local := now.In(loc)
	var missing []string
	for i := 0; i < p.CoverageDays; i++ {
		// Noon keeps the date stable across DST transitions.
		day := time.Date(local.Year(), local.Month(), local.Day()+i, 12, 0, 0, 0, loc)
		key := day.Format(time.DateOnly)
		if _, ok := have[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
