// Package openweathermap implements weather.RemoteSource on the OpenWeatherMap
// One Call API.
package openweathermap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/provider/resilience"
	"github.com/shutterspot/shutterspot/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultOneCallURL is the OpenWeatherMap OneCall API 3.0 base URL.
	DefaultOneCallURL = "https://api.openweathermap.org/data/3.0/onecall"
)

// ErrUnauthorized is returned when the API key is rejected.
var ErrUnauthorized = errors.New("openweathermap: api key rejected")

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// OneCallURL is the OneCall API URL (optional, defaults to OneCall 3.0).
	OneCallURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Registry receives success and failure reports (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	oneCallURL string
	httpClient *resilience.Client
	registry   *resilience.Registry
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	oneCallURL := cfg.OneCallURL
	if oneCallURL == "" {
		oneCallURL = DefaultOneCallURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(ProviderName, httpClient)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		oneCallURL: oneCallURL,
		httpClient: httpClient,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch returns daily and hourly forecasts for a coordinate in metric units.
func (c *Client) Fetch(ctx context.Context, coord geo.Coordinate) (*weather.FetchResult, error) {
	res, err := c.fetch(ctx, coord)
	if c.registry != nil {
		if err != nil {
			c.registry.RecordFailure(ProviderName, err)
		} else {
			c.registry.RecordSuccess(ProviderName)
		}
	}
	return res, err
}

func (c *Client) fetch(ctx context.Context, coord geo.Coordinate) (*weather.FetchResult, error) {
	endpoint := fmt.Sprintf("%s?lat=%.6f&lon=%.6f&appid=%s&units=metric&exclude=current,minutely,alerts",
		c.oneCallURL, coord.Latitude, coord.Longitude, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", redactURL(err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", redactURL(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var owmResp oneCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&owmResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug().
		Str("coordinate", coord.String()).
		Int("daily", len(owmResp.Daily)).
		Int("hourly", len(owmResp.Hourly)).
		Msg("fetched forecast")

	return toFetchResult(&owmResp), nil
}

// redactURL strips the request URL, which carries the API key, from
// transport errors.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s onecall: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

// toFetchResult converts a OneCall response to the domain model.
func toFetchResult(resp *oneCallResponse) *weather.FetchResult {
	res := &weather.FetchResult{
		Timezone:              resp.Timezone,
		TimezoneOffsetSeconds: resp.TimezoneOffset,
		Daily:                 make([]weather.DailyForecast, 0, len(resp.Daily)),
		Hourly:                make([]weather.HourlyForecast, 0, len(resp.Hourly)),
	}

	for _, d := range resp.Daily {
		daily := weather.DailyForecast{
			Date:           unix(d.Dt),
			Sunrise:        unix(d.Sunrise),
			Sunset:         unix(d.Sunset),
			Temperature:    d.Temp.Day,
			MinTemperature: d.Temp.Min,
			MaxTemperature: d.Temp.Max,
			Wind: weather.WindInfo{
				Speed:     d.WindSpeed,
				Direction: d.WindDeg,
				Gust:      d.WindGust,
			},
			Humidity:  d.Humidity,
			Pressure:  d.Pressure,
			Clouds:    d.Clouds,
			UVIndex:   d.UVI,
			MoonRise:  optionalUnix(d.Moonrise),
			MoonSet:   optionalUnix(d.Moonset),
			MoonPhase: d.MoonPhase,
		}
		daily.Description, daily.Icon = summary(d.Weather)

		if d.Rain != nil || d.Snow != nil {
			var total float64
			if d.Rain != nil {
				total += *d.Rain
			}
			if d.Snow != nil {
				total += *d.Snow
			}
			daily.Precipitation = &total
		}

		res.Daily = append(res.Daily, daily)
	}

	for _, h := range resp.Hourly {
		hourly := weather.HourlyForecast{
			Time:        unix(h.Dt),
			Temperature: h.Temp,
			FeelsLike:   h.FeelsLike,
			Wind: weather.WindInfo{
				Speed:     h.WindSpeed,
				Direction: h.WindDeg,
				Gust:      h.WindGust,
			},
			Humidity:                   h.Humidity,
			Pressure:                   h.Pressure,
			Clouds:                     h.Clouds,
			UVIndex:                    h.UVI,
			Visibility:                 h.Visibility,
			DewPoint:                   h.DewPoint,
			ProbabilityOfPrecipitation: h.Pop,
		}
		hourly.Description, hourly.Icon = summary(h.Weather)

		res.Hourly = append(res.Hourly, hourly)
	}

	return res
}

func summary(conditions []condition) (description, icon string) {
	if len(conditions) == 0 {
		return "", ""
	}
	return conditions[0].Description, conditions[0].Icon
}

func unix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// optionalUnix maps OpenWeatherMap's 0 ("no event that day") to nil.
func optionalUnix(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := unix(sec)
	return &t
}

// OpenWeatherMap API response structures.

type condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type oneCallResponse struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Timezone       string  `json:"timezone"`
	TimezoneOffset int     `json:"timezone_offset"`
	Daily          []struct {
		Dt        int64   `json:"dt"`
		Sunrise   int64   `json:"sunrise"`
		Sunset    int64   `json:"sunset"`
		Moonrise  int64   `json:"moonrise"`
		Moonset   int64   `json:"moonset"`
		MoonPhase float64 `json:"moon_phase"`
		Temp      struct {
			Day float64 `json:"day"`
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Pressure  int         `json:"pressure"`
		Humidity  int         `json:"humidity"`
		DewPoint  float64     `json:"dew_point"`
		WindSpeed float64     `json:"wind_speed"`
		WindDeg   float64     `json:"wind_deg"`
		WindGust  *float64    `json:"wind_gust"`
		Weather   []condition `json:"weather"`
		Clouds    int         `json:"clouds"`
		Pop       float64     `json:"pop"`
		Rain      *float64    `json:"rain"`
		Snow      *float64    `json:"snow"`
		UVI       float64     `json:"uvi"`
	} `json:"daily"`
	Hourly []struct {
		Dt         int64       `json:"dt"`
		Temp       float64     `json:"temp"`
		FeelsLike  float64     `json:"feels_like"`
		Pressure   int         `json:"pressure"`
		Humidity   int         `json:"humidity"`
		DewPoint   float64     `json:"dew_point"`
		UVI        float64     `json:"uvi"`
		Clouds     int         `json:"clouds"`
		Visibility int         `json:"visibility"`
		WindSpeed  float64     `json:"wind_speed"`
		WindDeg    float64     `json:"wind_deg"`
		WindGust   *float64    `json:"wind_gust"`
		Weather    []condition `json:"weather"`
		Pop        float64     `json:"pop"` // Probability of precipitation
	} `json:"hourly"`
}
