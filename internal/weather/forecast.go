package weather

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AbsoluteZeroCelsius is the lowest physically meaningful temperature.
const AbsoluteZeroCelsius = -273.15

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError names the field that broke a forecast invariant.
type ValidationError struct {
	Field string
	Rule  string
	Param string
}

func (e *ValidationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("invalid %s: must satisfy %s=%s", e.Field, e.Rule, e.Param)
	}
	return fmt.Sprintf("invalid %s: must satisfy %s", e.Field, e.Rule)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// WindInfo is wind speed (m/s), meteorological direction (degrees the wind
// blows from) and optional gust speed.
type WindInfo struct {
	Speed     float64  `json:"speed" validate:"gte=0"`
	Direction float64  `json:"direction" validate:"gte=0,lte=360"`
	Gust      *float64 `json:"gust,omitempty" validate:"omitempty,gte=0"`
}

// NewWindInfo validates and rounds wind data: speed and gust to 2 decimals,
// direction to whole degrees.
func NewWindInfo(speed, direction float64, gust *float64) (WindInfo, error) {
	w := WindInfo{Speed: speed, Direction: direction, Gust: gust}
	if err := validateStruct(w); err != nil {
		return WindInfo{}, err
	}
	return w.normalized(), nil
}

func (w WindInfo) normalized() WindInfo {
	out := WindInfo{
		Speed:     round2(w.Speed),
		Direction: math.Round(w.Direction),
	}
	if w.Gust != nil {
		g := round2(*w.Gust)
		out.Gust = &g
	}
	return out
}

// Flipped returns the wind with its direction turned 180°.
func (w WindInfo) Flipped() WindInfo {
	w.Direction = math.Mod(w.Direction+180, 360)
	return w
}

// DailyForecast is one calendar day's summary.
type DailyForecast struct {
	Date           time.Time  `json:"date"`
	Sunrise        time.Time  `json:"sunrise"`
	Sunset         time.Time  `json:"sunset"`
	Temperature    float64    `json:"temperature" validate:"gte=-273.15"`
	MinTemperature float64    `json:"minTemperature" validate:"gte=-273.15,ltefield=MaxTemperature"`
	MaxTemperature float64    `json:"maxTemperature" validate:"gte=-273.15"`
	Description    string     `json:"description"`
	Icon           string     `json:"icon"`
	Wind           WindInfo   `json:"wind"`
	Humidity       int        `json:"humidity" validate:"gte=0,lte=100"`
	Pressure       int        `json:"pressure" validate:"gt=0"`
	Clouds         int        `json:"clouds" validate:"gte=0,lte=100"`
	UVIndex        float64    `json:"uvIndex" validate:"gte=0"`
	Precipitation  *float64   `json:"precipitation,omitempty" validate:"omitempty,gte=0"`
	MoonRise       *time.Time `json:"moonRise,omitempty"`
	MoonSet        *time.Time `json:"moonSet,omitempty"`
	MoonPhase      float64    `json:"moonPhase" validate:"gte=0,lte=1"`
}

// NewDailyForecast validates d and returns a normalized copy.
func NewDailyForecast(d DailyForecast) (DailyForecast, error) {
	if d.Date.IsZero() {
		return DailyForecast{}, &ValidationError{Field: "date", Rule: "required"}
	}
	if err := validateStruct(d); err != nil {
		return DailyForecast{}, err
	}

	d.Wind = d.Wind.normalized()
	if d.Precipitation != nil {
		p := *d.Precipitation
		d.Precipitation = &p
	}
	return d, nil
}

// HourlyForecast is one hour's forecast.
type HourlyForecast struct {
	Time                       time.Time `json:"time"`
	Temperature                float64   `json:"temperature" validate:"gte=-273.15"`
	FeelsLike                  float64   `json:"feelsLike" validate:"gte=-273.15"`
	Description                string    `json:"description"`
	Icon                       string    `json:"icon"`
	Wind                       WindInfo  `json:"wind"`
	Humidity                   int       `json:"humidity" validate:"gte=0,lte=100"`
	Pressure                   int       `json:"pressure" validate:"gt=0"`
	Clouds                     int       `json:"clouds" validate:"gte=0,lte=100"`
	UVIndex                    float64   `json:"uvIndex" validate:"gte=0"`
	Visibility                 int       `json:"visibility" validate:"gte=0"`
	DewPoint                   float64   `json:"dewPoint" validate:"gte=-273.15"`
	ProbabilityOfPrecipitation float64   `json:"probabilityOfPrecipitation" validate:"gte=0,lte=1"`
}

// NewHourlyForecast validates h and returns a normalized copy.
func NewHourlyForecast(h HourlyForecast) (HourlyForecast, error) {
	if h.Time.IsZero() {
		return HourlyForecast{}, &ValidationError{Field: "time", Rule: "required"}
	}
	if err := validateStruct(h); err != nil {
		return HourlyForecast{}, err
	}

	h.Wind = h.Wind.normalized()
	return h, nil
}

// validateStruct runs the struct tags and reports the first violation.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	return &ValidationError{Field: field, Rule: fe.Tag(), Param: fe.Param()}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
