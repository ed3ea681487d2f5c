// Package credentials manages the per-user OAuth token lifecycle: memory
// cache, disk persistence under strava_oauth/, and proactive refresh when a
// token approaches expiry.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ifrog800/StravaAddon/pkg/observability"
	"github.com/ifrog800/StravaAddon/pkg/storage"
)

// credentialDir is the on-disk partition for credential records, one file
// per user keyed by athlete id.
const credentialDir = "strava_oauth"

// ErrNoCredentials is returned when a user has no stored record. Initial
// issuance only happens through the OAuth consent flow.
var ErrNoCredentials = errors.New("credentials: no stored record for user")

// Record is the authoritative token state for one user. ExpiresAt is epoch
// seconds, matching the token endpoint's wire format.
type Record struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Config carries the token-endpoint parameters and the refresh policy.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string

	// RefreshWindow is one safety-window unit; a refresh is triggered when
	// the token expires within two units of now.
	RefreshWindow time.Duration

	HTTPClient *http.Client
}

// Store resolves, refreshes and persists credential records.
type Store struct {
	disk *storage.Store
	cfg  Config

	mu      sync.RWMutex
	records map[string]*Record

	// flight serializes refreshes per user so two concurrent callers can
	// never invalidate each other's refresh token.
	flight singleflight.Group

	now func() time.Time
}

// NewStore creates a credential store backed by disk.
func NewStore(disk *storage.Store, cfg Config) *Store {
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = 30 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Store{
		disk:    disk,
		cfg:     cfg,
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Users enumerates the user ids with a stored credential record.
func (s *Store) Users() ([]string, error) {
	return s.disk.List(credentialDir)
}

// Put persists a record to disk and updates the memory cache. It is the
// entry point used by the OAuth exchange handler.
func (s *Store) Put(rec *Record) error {
	if rec.UserID == "" {
		return errors.New("credentials: record has no user id")
	}
	if err := s.disk.Write(credentialDir, rec.UserID, rec); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.UserID] = rec
	s.mu.Unlock()
	return nil
}

// Token returns a valid record for the user, resolving memory first, disk
// second. A record expiring within two refresh-window units of now is
// refreshed synchronously before being returned; refresh failures propagate
// to the caller and are not retried here.
func (s *Store) Token(ctx context.Context, userID string) (*Record, error) {
	rec, err := s.lookup(userID)
	if err != nil {
		return nil, err
	}

	if !s.needsRefresh(rec) {
		return rec, nil
	}
	return s.refresh(ctx, userID, rec)
}

func (s *Store) lookup(userID string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	if ok {
		return rec, nil
	}

	var fromDisk Record
	if err := s.disk.Read(credentialDir, userID, &fromDisk); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoCredentials, userID)
		}
		return nil, err
	}
	if fromDisk.UserID == "" {
		fromDisk.UserID = userID
	}

	s.mu.Lock()
	// Another goroutine may have loaded or refreshed meanwhile; the
	// in-memory record stays authoritative once present.
	if existing, ok := s.records[userID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.records[userID] = &fromDisk
	s.mu.Unlock()
	return &fromDisk, nil
}

func (s *Store) needsRefresh(rec *Record) bool {
	if rec.ExpiresAt == 0 {
		return false
	}
	return s.now().Add(2*s.cfg.RefreshWindow).Unix() >= rec.ExpiresAt
}

func (s *Store) refresh(ctx context.Context, userID string, stale *Record) (*Record, error) {
	v, err, _ := s.flight.Do(userID, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have already
		// refreshed this user.
		s.mu.RLock()
		current := s.records[userID]
		s.mu.RUnlock()
		if current != nil && !s.needsRefresh(current) {
			return current, nil
		}
		if current == nil {
			current = stale
		}

		fresh, err := s.exchange(ctx, url.Values{
			"client_id":     {s.cfg.ClientID},
			"client_secret": {s.cfg.ClientSecret},
			"grant_type":    {"refresh_token"},
			"refresh_token": {current.RefreshToken},
		})
		if err != nil {
			observability.RecordTokenRefresh("error")
			return nil, fmt.Errorf("credentials: refresh for %s: %w", userID, err)
		}
		fresh.UserID = userID
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = current.RefreshToken
		}
		if err := s.Put(fresh); err != nil {
			observability.RecordTokenRefresh("error")
			return nil, err
		}
		observability.RecordTokenRefresh("ok")
		slog.Info("Refreshed access token", "user_id", userID, "expires_at", fresh.ExpiresAt)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// ExchangeCode performs the authorization-code grant and persists the
// resulting record keyed by the athlete id from the token response.
func (s *Store) ExchangeCode(ctx context.Context, code string) (*Record, error) {
	rec, err := s.exchange(ctx, url.Values{
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	})
	if err != nil {
		return nil, fmt.Errorf("credentials: code exchange: %w", err)
	}
	if rec.UserID == "" {
		return nil, errors.New("credentials: token response carried no athlete id")
	}
	if err := s.Put(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// exchange posts a grant to the token endpoint and parses the response.
// An errors field in the body short-circuits processing.
func (s *Store) exchange(ctx context.Context, form url.Values) (*Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken  string          `json:"access_token"`
		RefreshToken string          `json:"refresh_token"`
		ExpiresAt    int64           `json:"expires_at"`
		ExpiresIn    int64           `json:"expires_in"`
		Athlete      *struct {
			ID int64 `json:"id"`
		} `json:"athlete"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if len(result.Errors) > 0 && string(result.Errors) != "null" {
		return nil, fmt.Errorf("token endpoint reported errors: %s", string(result.Errors))
	}
	if result.AccessToken == "" {
		return nil, errors.New("token response carried no access token")
	}

	expiresAt := result.ExpiresAt
	if expiresAt == 0 && result.ExpiresIn > 0 {
		expiresAt = s.now().Add(time.Duration(result.ExpiresIn) * time.Second).Unix()
	}

	rec := &Record{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	if result.Athlete != nil {
		rec.UserID = strconv.FormatInt(result.Athlete.ID, 10)
	}
	return rec, nil
}

// UserSource adapts the store to a per-user token source for HTTP transports.
type UserSource struct {
	store  *Store
	userID string
}

// Source returns a token source bound to one user.
func (s *Store) Source(userID string) *UserSource {
	return &UserSource{store: s, userID: userID}
}

// Token returns a valid bearer token for the bound user.
func (u *UserSource) Token(ctx context.Context) (string, error) {
	rec, err := u.store.Token(ctx, u.userID)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// ForceRefresh refreshes regardless of expiry, for reactive 401 handling.
func (u *UserSource) ForceRefresh(ctx context.Context) (string, error) {
	rec, err := u.store.lookup(u.userID)
	if err != nil {
		return "", err
	}
	// Mark the record as due so the singleflight path performs the exchange.
	expired := *rec
	expired.ExpiresAt = 1
	u.store.mu.Lock()
	u.store.records[u.userID] = &expired
	u.store.mu.Unlock()

	fresh, err := u.store.refresh(ctx, u.userID, &expired)
	if err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}
