package weather_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shutterspot/shutterspot/internal/weather"
)

func TestNewWindInfo(t *testing.T) {
	t.Run("rounds valid input", func(t *testing.T) {
		w, err := weather.NewWindInfo(3.456, 270.4, ptr(7.891))
		require.NoError(t, err)
		assert.Equal(t, 3.46, w.Speed)
		assert.Equal(t, 270.0, w.Direction)
		require.NotNil(t, w.Gust)
		assert.Equal(t, 7.89, *w.Gust)
	})

	tests := []struct {
		name      string
		speed     float64
		direction float64
		gust      *float64
		field     string
		rule      string
	}{
		{"negative speed", -0.1, 90, nil, "speed", "gte"},
		{"direction above 360", 1, 360.5, nil, "direction", "lte"},
		{"negative direction", 1, -1, nil, "direction", "gte"},
		{"negative gust", 1, 90, ptr(-2.0), "gust", "gte"},
		{"NaN speed", math.NaN(), 90, nil, "speed", "gte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := weather.NewWindInfo(tt.speed, tt.direction, tt.gust)
			require.ErrorIs(t, err, weather.ErrValidation)

			var verr *weather.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.rule, verr.Rule)
		})
	}
}

func TestWindInfo_Flipped(t *testing.T) {
	tests := []struct {
		direction float64
		expected  float64
	}{
		{270, 90},
		{90, 270},
		{0, 180},
		{180, 0},
		{360, 180},
	}

	for _, tt := range tests {
		w := weather.WindInfo{Speed: 4, Direction: tt.direction}
		flipped := w.Flipped()
		assert.Equal(t, tt.expected, flipped.Direction, "direction %v", tt.direction)
		assert.Equal(t, 4.0, flipped.Speed)
	}
}

func TestNewDailyForecast(t *testing.T) {
	day := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid forecast is normalized", func(t *testing.T) {
		d, err := weather.NewDailyForecast(dailyAt(day))
		require.NoError(t, err)
		assert.Equal(t, 3.46, d.Wind.Speed)
		assert.Equal(t, 270.0, d.Wind.Direction)
	})

	tests := []struct {
		name   string
		mutate func(*weather.DailyForecast)
		field  string
		rule   string
	}{
		{"missing date", func(d *weather.DailyForecast) { d.Date = time.Time{} }, "date", "required"},
		{"below absolute zero", func(d *weather.DailyForecast) { d.Temperature = -300 }, "temperature", "gte"},
		{"min above max", func(d *weather.DailyForecast) { d.MinTemperature = 30 }, "minTemperature", "ltefield"},
		{"humidity above 100", func(d *weather.DailyForecast) { d.Humidity = 101 }, "humidity", "lte"},
		{"negative clouds", func(d *weather.DailyForecast) { d.Clouds = -1 }, "clouds", "gte"},
		{"zero pressure", func(d *weather.DailyForecast) { d.Pressure = 0 }, "pressure", "gt"},
		{"negative uv index", func(d *weather.DailyForecast) { d.UVIndex = -0.5 }, "uvIndex", "gte"},
		{"negative precipitation", func(d *weather.DailyForecast) { d.Precipitation = ptr(-1.0) }, "precipitation", "gte"},
		{"moon phase above 1", func(d *weather.DailyForecast) { d.MoonPhase = 1.2 }, "moonPhase", "lte"},
		{"invalid nested wind", func(d *weather.DailyForecast) { d.Wind.Speed = -3 }, "wind.speed", "gte"},
		{"NaN temperature", func(d *weather.DailyForecast) { d.Temperature = math.NaN() }, "temperature", "gte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dailyAt(day)
			tt.mutate(&d)

			_, err := weather.NewDailyForecast(d)
			require.ErrorIs(t, err, weather.ErrValidation)

			var verr *weather.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.rule, verr.Rule)
		})
	}
}

func TestNewHourlyForecast(t *testing.T) {
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("valid forecast", func(t *testing.T) {
		h, err := weather.NewHourlyForecast(hourlyAt(at))
		require.NoError(t, err)
		assert.True(t, h.Time.Equal(at))
		require.NotNil(t, h.Wind.Gust)
		assert.Equal(t, 4.2, *h.Wind.Gust)
	})

	tests := []struct {
		name   string
		mutate func(*weather.HourlyForecast)
		field  string
	}{
		{"missing time", func(h *weather.HourlyForecast) { h.Time = time.Time{} }, "time"},
		{"precipitation probability above 1", func(h *weather.HourlyForecast) { h.ProbabilityOfPrecipitation = 1.5 }, "probabilityOfPrecipitation"},
		{"negative visibility", func(h *weather.HourlyForecast) { h.Visibility = -1 }, "visibility"},
		{"feels like below absolute zero", func(h *weather.HourlyForecast) { h.FeelsLike = -274 }, "feelsLike"},
		{"direction out of range", func(h *weather.HourlyForecast) { h.Wind.Direction = 400 }, "wind.direction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hourlyAt(at)
			tt.mutate(&h)

			_, err := weather.NewHourlyForecast(h)
			var verr *weather.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
