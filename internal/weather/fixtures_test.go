package weather_test

import (
	"time"

	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/weather"
)

var (
	testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	yosemite = weather.LocationRef{ID: "loc-yosemite", Coordinate: geo.MustCoordinate(37.865101, -119.538329)}
	bigSur   = weather.LocationRef{ID: "loc-bigsur", Coordinate: geo.MustCoordinate(36.270581, -121.807896)}
	palouse  = weather.LocationRef{ID: "loc-palouse", Coordinate: geo.MustCoordinate(46.910416, -117.074036)}
)

func ptr[T any](v T) *T { return &v }

func dailyAt(date time.Time) weather.DailyForecast {
	return weather.DailyForecast{
		Date:           date,
		Sunrise:        date.Add(-7 * time.Hour),
		Sunset:         date.Add(8 * time.Hour),
		Temperature:    18,
		MinTemperature: 11.5,
		MaxTemperature: 23.2,
		Description:    "clear sky",
		Icon:           "01d",
		Wind:           weather.WindInfo{Speed: 3.456, Direction: 270.4},
		Humidity:       60,
		Pressure:       1013,
		Clouds:         10,
		UVIndex:        6.1,
		MoonPhase:      0.5,
	}
}

func hourlyAt(at time.Time) weather.HourlyForecast {
	return weather.HourlyForecast{
		Time:                       at,
		Temperature:                17.3,
		FeelsLike:                  16.8,
		Description:                "few clouds",
		Icon:                       "02d",
		Wind:                       weather.WindInfo{Speed: 2.1, Direction: 270, Gust: ptr(4.2)},
		Humidity:                   55,
		Pressure:                   1012,
		Clouds:                     20,
		UVIndex:                    3,
		Visibility:                 10000,
		DewPoint:                   8.4,
		ProbabilityOfPrecipitation: 0.1,
	}
}

// fetchResult builds a UTC result with one daily entry per day at noon
// starting on from's date, and hourly entries from the top of from's hour.
func fetchResult(from time.Time, days, hours int) *weather.FetchResult {
	from = from.UTC()
	noon := time.Date(from.Year(), from.Month(), from.Day(), 12, 0, 0, 0, time.UTC)
	hour := from.Truncate(time.Hour)

	res := &weather.FetchResult{Timezone: "UTC"}
	for i := 0; i < days; i++ {
		res.Daily = append(res.Daily, dailyAt(noon.AddDate(0, 0, i)))
	}
	for i := 0; i < hours; i++ {
		res.Hourly = append(res.Hourly, hourlyAt(hour.Add(time.Duration(i)*time.Hour)))
	}
	return res
}
