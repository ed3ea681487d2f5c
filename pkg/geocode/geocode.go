// Package geocode reverse-geocodes activity start coordinates and derives
// the location descriptors used as cache keys. Coordinates are rounded to a
// fixed precision so nearby activities share cache entries.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ifrog800/StravaAddon/pkg/cache"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// primaryCountry is the country whose postal codes key the weather cache.
const primaryCountry = "us"

// coordPrecision is the number of decimals kept when rounding coordinates
// for cache keys (~11 m at the equator).
const coordPrecision = 4

// Result is the projection of a reverse-geocode response the pipeline uses.
type Result struct {
	CountryCode string `json:"country_code"`
	Postcode    string `json:"postcode"`
	Locality    string `json:"locality"`
	Region      string `json:"region"`
}

// CoordKey derives the geocode cache key from a coordinate pair.
func CoordKey(lat, lon float64) string {
	return fmt.Sprintf("%.*f_%.*f", coordPrecision, lat, coordPrecision, lon)
}

// LocationDescriptor picks the weather-lookup descriptor for a geocoded
// point, in priority order: postal code when in the primary served country,
// locality+region composite when the postal code is missing there, raw
// rounded coordinate for any other country. The ordering maximizes cache
// hits for repeated routes.
func LocationDescriptor(r *Result, lat, lon float64) string {
	if strings.EqualFold(r.CountryCode, primaryCountry) {
		if r.Postcode != "" {
			return r.Postcode
		}
		if r.Locality != "" || r.Region != "" {
			return strings.Trim(r.Locality+","+r.Region, ",")
		}
	}
	return fmt.Sprintf("%.*f,%.*f", coordPrecision, lat, coordPrecision, lon)
}

// Client calls the reverse-geocode API. Requests are spaced at least one
// second apart per the Nominatim usage policy.
type Client struct {
	baseURL string
	http    *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a reverse-geocode client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Reverse geocodes a coordinate pair.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Result, error) {
	c.mu.Lock()
	if wait := time.Second - time.Since(c.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	url := fmt.Sprintf("%s/reverse?lat=%.6f&lon=%.6f&format=json&zoom=16", c.baseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// Required by the Nominatim usage policy.
	req.Header.Set("User-Agent", "StravaAddon/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: reverse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("geocode: reverse returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw struct {
		Address struct {
			CountryCode string `json:"country_code"`
			Postcode    string `json:"postcode"`
			City        string `json:"city"`
			Town        string `json:"town"`
			Village     string `json:"village"`
			State       string `json:"state"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}

	locality := raw.Address.City
	if locality == "" {
		locality = raw.Address.Town
	}
	if locality == "" {
		locality = raw.Address.Village
	}

	return &Result{
		CountryCode: raw.Address.CountryCode,
		Postcode:    raw.Address.Postcode,
		Locality:    locality,
		Region:      raw.Address.State,
	}, nil
}

// Resolver resolves coordinates through the tiered cache, falling back to
// the remote client on a miss.
type Resolver struct {
	cache  *cache.Tiered
	client *Client
}

// NewResolver ties the geocode cache namespace to the remote client.
func NewResolver(c *cache.Tiered, client *Client) *Resolver {
	return &Resolver{cache: c, client: client}
}

// Resolve returns the geocode result for a coordinate, cached by rounded
// coordinate key.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) (*Result, error) {
	key := CoordKey(lat, lon)
	payload, err := r.cache.Resolve(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		slog.Info("Reverse geocoding", "lat", lat, "lon", lon, "key", key)
		result, err := r.client.Reverse(ctx, lat, lon)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("geocode: corrupt cache entry %s: %w", key, err)
	}
	return &result, nil
}
