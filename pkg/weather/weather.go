// Package weather fetches historical hourly weather for an activity's
// location and start date, and formats the summary line appended to the
// description.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ifrog800/StravaAddon/pkg/cache"
	"github.com/ifrog800/StravaAddon/pkg/formatter"
)

// Condition is the textual weather condition for one hour.
type Condition struct {
	Text string `json:"text"`
}

// Hour is one hourly entry of a day record.
type Hour struct {
	Time       string    `json:"time"`
	TempC      float64   `json:"temp_c"`
	FeelsLikeC float64   `json:"feelslike_c"`
	Humidity   int       `json:"humidity"`
	WindKph    float64   `json:"wind_kph"`
	WindDegree float64   `json:"wind_degree"`
	GustKph    float64   `json:"gust_kph"`
	Cloud      int       `json:"cloud"`
	UV         float64   `json:"uv"`
	PrecipMM   float64   `json:"precip_mm"`
	SnowCM     float64   `json:"snow_cm"`
	Condition  Condition `json:"condition"`
}

// Day is the 24-entry hourly record for one location and date.
type Day struct {
	Hours []Hour `json:"hour"`
}

// Key derives the weather cache key from a location descriptor and a
// calendar date. The descriptor is sanitized for filesystem use.
func Key(location, date string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, location)
	return sanitized + "_" + date
}

// HourBucket maps a start time to the matching hourly index, rounding to the
// nearest hour: minutes >= 30 round up. Late-evening starts clamp to the last
// entry of the day record.
func HourBucket(t time.Time) int {
	h := t.Hour()
	if t.Minute() >= 30 {
		h++
	}
	if h > 23 {
		h = 23
	}
	return h
}

// SelectHour picks the hour entry for the given start time.
func (d *Day) SelectHour(start time.Time) (*Hour, error) {
	idx := HourBucket(start)
	if idx >= len(d.Hours) {
		return nil, fmt.Errorf("weather: day record has %d hours, need index %d", len(d.Hours), idx)
	}
	return &d.Hours[idx], nil
}

// Summary renders the description line for one hour of weather. Rain takes
// precedence over snow when both are present and nonzero.
func (h *Hour) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %.1f°C (feels like %.1f°C), Humidity %d%%",
		Icon(h.Condition.Text), h.Condition.Text, h.TempC, h.FeelsLikeC, h.Humidity)
	fmt.Fprintf(&b, ", Wind %.1f km/h %s (gusts %.1f)",
		h.WindKph, formatter.Compass(h.WindDegree), h.GustKph)
	fmt.Fprintf(&b, ", Cloud %d%%, UV %.1f", h.Cloud, h.UV)

	switch {
	case h.PrecipMM > 0:
		fmt.Fprintf(&b, ", Rain %.1f mm", h.PrecipMM)
	case h.SnowCM > 0:
		fmt.Fprintf(&b, ", Snow %.1f cm", h.SnowCM)
	}
	return b.String()
}

// Icon maps a condition text to the emoji prepended to the activity name.
func Icon(condition string) string {
	c := strings.ToLower(condition)
	switch {
	case strings.Contains(c, "thunder"):
		return "⛈️"
	case strings.Contains(c, "snow") || strings.Contains(c, "blizzard") || strings.Contains(c, "sleet"):
		return "🌨️"
	case strings.Contains(c, "rain") || strings.Contains(c, "drizzle") || strings.Contains(c, "shower"):
		return "🌧️"
	case strings.Contains(c, "fog") || strings.Contains(c, "mist"):
		return "🌫️"
	case strings.Contains(c, "overcast"):
		return "☁️"
	case strings.Contains(c, "cloud"):
		return "⛅"
	case strings.Contains(c, "clear") || strings.Contains(c, "sunny"):
		return "☀️"
	default:
		return "🌡️"
	}
}

// Client calls the hourly-history weather API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a weather client. baseURL is overridable for tests.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// History fetches the day record for a location descriptor and date
// (YYYY-MM-DD).
func (c *Client) History(ctx context.Context, location, date string) (*Day, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", location)
	q.Set("dt", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather: history returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw struct {
		Forecast struct {
			ForecastDay []Day `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("weather: decode history response: %w", err)
	}
	if len(raw.Forecast.ForecastDay) == 0 {
		return nil, errors.New("weather: history response carried no day record")
	}
	return &raw.Forecast.ForecastDay[0], nil
}

// Resolver resolves day records through the tiered cache.
type Resolver struct {
	cache  *cache.Tiered
	client *Client
}

// NewResolver ties the weather cache namespace to the remote client.
func NewResolver(c *cache.Tiered, client *Client) *Resolver {
	return &Resolver{cache: c, client: client}
}

// Resolve returns the day record for a location descriptor and date, cached
// by descriptor+date key.
func (r *Resolver) Resolve(ctx context.Context, location, date string) (*Day, error) {
	key := Key(location, date)
	payload, err := r.cache.Resolve(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		slog.Info("Fetching weather history", "location", location, "date", date, "key", key)
		day, err := r.client.History(ctx, location, date)
		if err != nil {
			return nil, err
		}
		return json.Marshal(day)
	})
	if err != nil {
		return nil, err
	}

	var day Day
	if err := json.Unmarshal(payload, &day); err != nil {
		return nil, fmt.Errorf("weather: corrupt cache entry %s: %w", key, err)
	}
	return &day, nil
}
