package enricher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifrog800/StravaAddon/pkg/cache"
	"github.com/ifrog800/StravaAddon/pkg/geocode"
	"github.com/ifrog800/StravaAddon/pkg/queue"
	"github.com/ifrog800/StravaAddon/pkg/storage"
	"github.com/ifrog800/StravaAddon/pkg/strava"
	"github.com/ifrog800/StravaAddon/pkg/weather"
)

type fakeAPI struct {
	mu        sync.Mutex
	activity  *strava.Activity
	getErr    error
	updateErr error
	gets      []string
	updates   []*strava.UpdateRequest
}

func (f *fakeAPI) GetActivity(ctx context.Context, id string) (*strava.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	if f.getErr != nil {
		return nil, f.getErr
	}
	copied := *f.activity
	return &copied, nil
}

func (f *fakeAPI) UpdateActivity(ctx context.Context, id string, u *strava.UpdateRequest) (*strava.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, u)
	updated := *f.activity
	updated.Description = u.Description
	updated.Name = u.Name
	return &updated, nil
}

func (f *fakeAPI) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.gets...)
}

// geocodeServer answers every reverse lookup with a US postal-code address.
func geocodeServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"address":{"country_code":"us","postcode":"90210","city":"Beverly Hills","state":"California"}}`)
	}))
}

// weatherServer records requested locations and serves a full day where each
// hour's temperature equals its index, so tests can assert hour selection.
func weatherServer(t *testing.T, locations *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if locations != nil {
			*locations = append(*locations, r.URL.Query().Get("q"))
		}
		hours := make([]map[string]any, 24)
		for i := range hours {
			hours[i] = map[string]any{
				"time":      fmt.Sprintf("2024-03-01 %02d:00", i),
				"temp_c":    float64(i),
				"condition": map[string]any{"text": "Sunny"},
			}
		}
		payload := map[string]any{"forecast": map[string]any{"forecastday": []any{map[string]any{"hour": hours}}}}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
}

func testActivity() *strava.Activity {
	return &strava.Activity{
		ID:          123,
		Name:        "Morning Run",
		Description: "felt good",
		Type:        "Run",
		StartDate:   "2024-03-01T14:35:00Z",
		StartLatLng: []float64{34.09, -118.41},
		EndLatLng:   []float64{34.10, -118.40},
		GearID:      "g123",
		Commute:     true,
		Laps: []strava.Lap{
			{LapIndex: 1, Distance: 1000, ElapsedTime: 275, MovingTime: 270, AverageSpeed: 3.7},
		},
	}
}

func newTestOrchestrator(t *testing.T, api ActivityAPI, geoURL, wxURL string) (*Orchestrator, *storage.Store) {
	t.Helper()
	disk := storage.New(t.TempDir(), false)
	return NewOrchestrator(
		func(userID string) ActivityAPI { return api },
		disk,
		geocode.NewResolver(cache.New("geocode", disk), geocode.NewClient(geoURL, 0)),
		weather.NewResolver(cache.New("weather", disk), weather.NewClient(wxURL, "k", 0)),
	), disk
}

func TestProcessFullPipeline(t *testing.T) {
	geo := geocodeServer(t)
	defer geo.Close()
	var locations []string
	wx := weatherServer(t, &locations)
	defer wx.Close()

	api := &fakeAPI{activity: testActivity()}
	o, disk := newTestOrchestrator(t, api, geo.URL, wx.URL)

	outcome, err := o.Process(context.Background(), slog.Default(), queue.Job{UserID: "u1", ActivityID: "123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)

	require.Len(t, api.updates, 1)
	update := api.updates[0]

	// Original description preserved, sections appended, marker last.
	assert.Contains(t, update.Description, "felt good")
	assert.Contains(t, update.Description, "Lap 01")
	assert.Contains(t, update.Description, "📍 Beverly Hills, California")
	assert.Contains(t, update.Description, "15.0°C") // 14:35 rounds up to hour 15
	assert.True(t, strings.HasSuffix(update.Description, Marker))

	// Weather icon prefixes the name; pass-through fields survive.
	assert.Equal(t, "☀️ Morning Run", update.Name)
	assert.True(t, update.Commute)
	assert.Equal(t, "g123", update.GearID)
	assert.Equal(t, "Run", update.Type)

	// US postal code keyed the weather lookup.
	require.NotEmpty(t, locations)
	assert.Equal(t, "90210", locations[0])

	// Audit snapshot reflects the written-back record.
	var snapshot strava.Activity
	require.NoError(t, disk.Read("activities/u1", "123", &snapshot))
	assert.Contains(t, snapshot.Description, Marker)
}

func TestProcessIdempotentSecondRun(t *testing.T) {
	geo := geocodeServer(t)
	defer geo.Close()
	wx := weatherServer(t, nil)
	defer wx.Close()

	api := &fakeAPI{activity: testActivity()}
	o, _ := newTestOrchestrator(t, api, geo.URL, wx.URL)

	job := queue.Job{UserID: "u1", ActivityID: "123"}
	outcome, err := o.Process(context.Background(), slog.Default(), job)
	require.NoError(t, err)
	require.Equal(t, OutcomeEnriched, outcome)
	require.Len(t, api.updates, 1)

	// Second run sees the marker in the fetched description and never
	// issues a second writeback.
	api.activity.Description = api.updates[0].Description
	outcome, err = o.Process(context.Background(), slog.Default(), job)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Len(t, api.updates, 1)
}

func TestProcessNoCoordinates(t *testing.T) {
	activity := testActivity()
	activity.StartLatLng = nil
	activity.EndLatLng = nil

	api := &fakeAPI{activity: activity}
	o, _ := newTestOrchestrator(t, api, "http://unused.invalid", "http://unused.invalid")

	outcome, err := o.Process(context.Background(), slog.Default(), queue.Job{UserID: "u1", ActivityID: "123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)

	require.Len(t, api.updates, 1)
	update := api.updates[0]
	assert.Contains(t, update.Description, "Lap 01")
	assert.NotContains(t, update.Description, "📍")
	assert.Contains(t, update.Description, Marker)
	// No weather, so no icon prefix.
	assert.Equal(t, "Morning Run", update.Name)
}

func TestProcessGeocodeFailureDegrades(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer geo.Close()
	wx := weatherServer(t, nil)
	defer wx.Close()

	api := &fakeAPI{activity: testActivity()}
	o, _ := newTestOrchestrator(t, api, geo.URL, wx.URL)

	outcome, err := o.Process(context.Background(), slog.Default(), queue.Job{UserID: "u1", ActivityID: "123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)

	require.Len(t, api.updates, 1)
	update := api.updates[0]
	assert.Contains(t, update.Description, "Lap 01")
	assert.NotContains(t, update.Description, "📍")
	assert.Equal(t, "Morning Run", update.Name)
}

func TestProcessFetchFailure(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("remote down")}
	o, _ := newTestOrchestrator(t, api, "http://unused.invalid", "http://unused.invalid")

	outcome, err := o.Process(context.Background(), slog.Default(), queue.Job{UserID: "u1", ActivityID: "123"})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorContains(t, err, "fetch")
	assert.Empty(t, api.updates)
}

func TestProcessWritebackFailureKeepsRawSnapshot(t *testing.T) {
	geo := geocodeServer(t)
	defer geo.Close()
	wx := weatherServer(t, nil)
	defer wx.Close()

	api := &fakeAPI{activity: testActivity(), updateErr: errors.New("rejected")}
	o, disk := newTestOrchestrator(t, api, geo.URL, wx.URL)

	outcome, err := o.Process(context.Background(), slog.Default(), queue.Job{UserID: "u1", ActivityID: "123"})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorContains(t, err, "writeback")

	// The raw fetch snapshot is retained for inspection.
	var snapshot strava.Activity
	require.NoError(t, disk.Read("activities/u1", "123", &snapshot))
	assert.Equal(t, "felt good", snapshot.Description)
}
