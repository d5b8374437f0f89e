// Package weather drives the sky's scroll velocity.
// Wind can run on its own or follow real OpenWeatherMap conditions.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/talgya/hexsky/internal/world"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client fetches weather data from OpenWeatherMap.
type Client struct {
	apiKey   string
	location string
	baseURL  string
	client   *http.Client

	mu          sync.Mutex
	cached      *Conditions
	cachedAt    time.Time
	cacheTTL    time.Duration
	lastFailAt  time.Time
	failBackoff time.Duration
}

// NewClient creates a weather API client. Returns nil if apiKey is empty.
func NewClient(apiKey, location string) *Client {
	if apiKey == "" {
		return nil
	}
	if location == "" {
		location = "San Diego,US"
	}
	return &Client{
		apiKey:   apiKey,
		location: location,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		cacheTTL: 5 * time.Minute,
	}
}

// Conditions holds parsed weather data from the API.
type Conditions struct {
	Temp        float64 `json:"temp"` // Celsius
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"` // m/s
	WindDeg     float64 `json:"wind_deg"`   // Direction the wind blows from, clockwise from north
	WindGust    float64 `json:"wind_gust"`  // m/s, 0 when not reported
	IsStorm     bool    `json:"is_storm"`
}

// Fetch retrieves current weather conditions, using cache if fresh.
func (c *Client) Fetch(ctx context.Context) (*Conditions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.cachedAt) < c.cacheTTL {
		return c.cached, nil
	}

	// Backoff on repeated failures (up to 10 minutes).
	if c.failBackoff > 0 && time.Since(c.lastFailAt) < c.failBackoff {
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, fmt.Errorf("weather API backoff (%s remaining)", c.failBackoff-time.Since(c.lastFailAt))
	}

	conditions, err := c.fetchFromAPI(ctx)
	if err != nil {
		c.lastFailAt = time.Now()
		if c.failBackoff == 0 {
			c.failBackoff = 1 * time.Minute
		} else if c.failBackoff < 10*time.Minute {
			c.failBackoff *= 2
		}
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, err
	}

	c.cached = conditions
	c.cachedAt = time.Now()
	c.failBackoff = 0 // Reset backoff on success.
	return conditions, nil
}

func (c *Client) fetchFromAPI(ctx context.Context) (*Conditions, error) {
	apiURL := fmt.Sprintf("%s?q=%s&appid=%s&units=metric",
		c.baseURL, url.QueryEscape(c.location), c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather API call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read weather response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API error %d: %s", resp.StatusCode, string(body))
	}

	// Parse OpenWeatherMap response.
	var owm struct {
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
			Deg   float64 `json:"deg"`
			Gust  float64 `json:"gust"`
		} `json:"wind"`
	}

	if err := json.Unmarshal(body, &owm); err != nil {
		return nil, fmt.Errorf("parse weather: %w", err)
	}

	conditions := &Conditions{
		Temp:      owm.Main.Temp,
		WindSpeed: owm.Wind.Speed,
		WindDeg:   owm.Wind.Deg,
		WindGust:  owm.Wind.Gust,
	}

	if len(owm.Weather) > 0 {
		conditions.Description = owm.Weather[0].Description
		main := strings.ToLower(owm.Weather[0].Main)
		conditions.IsStorm = main == "thunderstorm" || conditions.WindSpeed > 15
	}

	slog.Debug("weather fetched", "wind", conditions.WindSpeed, "deg", conditions.WindDeg, "desc", conditions.Description)
	return conditions, nil
}

// MapToSky converts real wind to a sky velocity in hex units per second.
// Each m/s of wind moves the sky scale hexes per second, downwind.
func MapToSky(c *Conditions, scale float64) world.FracHex {
	if c == nil || c.WindSpeed <= 0 {
		return world.FracHex{}
	}
	// Compass bearing of travel, then to a counter-clockwise angle from east.
	travel := math.Mod(c.WindDeg+180, 360)
	theta := (90 - travel) * math.Pi / 180
	mag := c.WindSpeed * scale
	sin, cos := math.Sincos(theta)
	return world.UnitLayout().FromPixel(world.Point{X: mag * cos, Y: mag * sin})
}

// MapGustiness derives a gust amplitude (0..1) from reported gusts.
func MapGustiness(c *Conditions) float64 {
	if c == nil {
		return 0
	}
	g := 0.1
	if c.WindGust > c.WindSpeed && c.WindSpeed > 0 {
		g = (c.WindGust - c.WindSpeed) / c.WindSpeed
	}
	if c.IsStorm && g < 0.5 {
		g = 0.5
	}
	return clamp01(g)
}
