// Package strava is the authenticated client for the Strava v3 API surface
// the enrichment pipeline needs: activity by id, recent-activity listing and
// activity update.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://www.strava.com/api/v3"

var (
	// ErrWriteback signals that the remote rejected an activity update.
	ErrWriteback = errors.New("strava: writeback rejected")
	// ErrDecode signals malformed JSON from the remote.
	ErrDecode = errors.New("strava: malformed response")
)

// TokenSource supplies bearer tokens for one user.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Transport authenticates requests with the token source and retries once
// with a force-refreshed token on 401.
type Transport struct {
	Source TokenSource
	Base   http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	ctx := req.Context()
	token, err := t.Source.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("strava: cannot get token: %w", err)
	}

	req2 := cloneRequest(req)
	req2.Header.Set("Authorization", "Bearer "+token)

	resp, err := base.RoundTrip(req2)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		slog.Warn("Got 401 Unauthorized, attempting force refresh", "url", req.URL.Path)

		token, err = t.Source.ForceRefresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("strava: force refresh failed: %w", err)
		}
		req2.Header.Set("Authorization", "Bearer "+token)
		return base.RoundTrip(req2)
	}

	return resp, nil
}

// cloneRequest returns a shallow copy of r with a deep-copied Header.
func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = make(http.Header, len(r.Header))
	for k, s := range r.Header {
		r2.Header[k] = append([]string(nil), s...)
	}
	return r2
}

// Client is a per-user API client. Every call carries the client timeout; a
// hung remote call fails the stage instead of suspending the worker forever.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client authenticating through source. baseURL is
// overridable for tests; pass DefaultBaseURL in production.
func NewClient(baseURL string, source TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: &Transport{Source: source},
			Timeout:   timeout,
		},
	}
}

// GetActivity fetches one activity. Heavy sub-resources (segment efforts)
// are excluded.
func (c *Client) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	url := fmt.Sprintf("%s/activities/%s?include_all_efforts=false", c.baseURL, activityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava: get activity %s: %w", activityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("strava: get activity %s: status %d: %s", activityID, resp.StatusCode, string(body))
	}

	var activity Activity
	if err := json.NewDecoder(resp.Body).Decode(&activity); err != nil {
		return nil, fmt.Errorf("%w: activity %s: %v", ErrDecode, activityID, err)
	}
	return &activity, nil
}

// ListActivities returns the athlete's most recent activities.
func (c *Client) ListActivities(ctx context.Context, perPage int) ([]Summary, error) {
	url := fmt.Sprintf("%s/athlete/activities?per_page=%d", c.baseURL, perPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava: list activities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("strava: list activities: status %d: %s", resp.StatusCode, string(body))
	}

	var summaries []Summary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return nil, fmt.Errorf("%w: activity list: %v", ErrDecode, err)
	}
	return summaries, nil
}

// UpdateActivity issues the writeback PUT and returns the updated record as
// the remote sees it.
func (c *Client) UpdateActivity(ctx context.Context, activityID string, update *UpdateRequest) (*Activity, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/activities/%s", c.baseURL, activityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: activity %s: %v", ErrWriteback, activityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: activity %s: status %d: %s", ErrWriteback, activityID, resp.StatusCode, string(body))
	}

	var updated Activity
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return nil, fmt.Errorf("%w: updated activity %s: %v", ErrDecode, activityID, err)
	}
	return &updated, nil
}
