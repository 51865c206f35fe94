package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	defaultTimeout = 10 * time.Second
)

// ErrNoAPIKey is returned by Current when no OpenWeather key is configured.
var ErrNoAPIKey = errors.New("OPENWEATHER_API_KEY not set (integrations.openweather_api_key)")

// Report is the current conditions for a location, in imperial units.
type Report struct {
	Location              string   `json:"location"`
	Temperature           *float64 `json:"temperature"`
	FeelsLike             *float64 `json:"feels_like"`
	Condition             string   `json:"condition"`
	Description           string   `json:"description"`
	Humidity              *float64 `json:"humidity"`
	WindSpeed             *float64 `json:"wind_speed"`
	Precipitation         float64  `json:"precipitation"`
	Clouds                float64  `json:"clouds"`
	Timestamp             string   `json:"timestamp"`
	Date                  string   `json:"date"`
	OutdoorSuitable       *bool    `json:"outdoor_suitable,omitempty"`
	OutdoorRecommendation string   `json:"outdoor_recommendation,omitempty"`
}

// Client queries the OpenWeather current weather endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client with the given API key. An empty key is
// allowed; Current then returns ErrNoAPIKey.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
}

// NewClientWithBaseURL creates a client pointing at a custom endpoint (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = baseURL
	return c
}

// owmResponse is the part of the OpenWeather payload we read.
type owmResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
}

// Current returns the weather for a city name or a "lat,lng" pair. date is
// echoed back and defaults to today.
func (c *Client) Current(ctx context.Context, location, date string) (*Report, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	params := url.Values{}
	if lat, lng, ok := ParseCoordinates(location); ok {
		params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	} else {
		params.Set("q", location)
	}
	params.Set("appid", c.apiKey)
	params.Set("units", "imperial")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching weather data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetching weather data: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding weather data: %w", err)
	}

	now := c.now()
	report := &Report{
		Location:      location,
		Temperature:   raw.Main.Temp,
		FeelsLike:     raw.Main.FeelsLike,
		Humidity:      raw.Main.Humidity,
		WindSpeed:     raw.Wind.Speed,
		Precipitation: raw.Rain.OneHour,
		Clouds:        raw.Clouds.All,
		Timestamp:     now.Format("2006-01-02T15:04:05.000000"),
		Date:          date,
	}
	if raw.Name != "" {
		report.Location = raw.Name
	}
	if len(raw.Weather) > 0 {
		report.Condition = strings.ToLower(raw.Weather[0].Main)
		report.Description = raw.Weather[0].Description
	}
	if report.Date == "" {
		report.Date = now.Format("2006-01-02")
	}
	Assess(report)
	return report, nil
}

// ParseCoordinates reports whether s is a "lat,lng" pair of numbers.
func ParseCoordinates(s string) (lat, lng float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
