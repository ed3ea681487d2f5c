package poller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifrog800/StravaAddon/pkg/credentials"
	"github.com/ifrog800/StravaAddon/pkg/enricher"
	"github.com/ifrog800/StravaAddon/pkg/queue"
	"github.com/ifrog800/StravaAddon/pkg/storage"
	"github.com/ifrog800/StravaAddon/pkg/strava"
)

type fakeLister struct {
	mu        sync.Mutex
	summaries map[string][]strava.Summary
	errs      map[string]error
	calls     []string
}

func (f *fakeLister) factory(userID string) ActivityLister {
	return listerFunc(func(ctx context.Context, perPage int) ([]strava.Summary, error) {
		f.mu.Lock()
		f.calls = append(f.calls, userID)
		f.mu.Unlock()
		if err := f.errs[userID]; err != nil {
			return nil, err
		}
		return f.summaries[userID], nil
	})
}

type listerFunc func(ctx context.Context, perPage int) ([]strava.Summary, error)

func (f listerFunc) ListActivities(ctx context.Context, perPage int) ([]strava.Summary, error) {
	return f(ctx, perPage)
}

func setupCreds(t *testing.T, disk *storage.Store, users ...string) *credentials.Store {
	t.Helper()
	creds := credentials.NewStore(disk, credentials.Config{TokenURL: "http://unused.invalid"})
	for _, u := range users {
		require.NoError(t, creds.Put(&credentials.Record{
			UserID: u, AccessToken: "tok", RefreshToken: "rt",
		}))
	}
	return creds
}

func TestPollOnceEnqueuesUnseen(t *testing.T) {
	disk := storage.New(t.TempDir(), false)
	creds := setupCreds(t, disk, "u1")

	lister := &fakeLister{summaries: map[string][]strava.Summary{
		"u1": {{ID: 1}, {ID: 2}, {ID: 3}},
	}}

	// Activity 2 already has an audit snapshot; it must not be re-enqueued.
	require.NoError(t, disk.Write(enricher.AuditDir("u1"), "2", strava.Activity{ID: 2}))

	q := queue.New[queue.Job]()
	p := New(creds, lister.factory, disk, q, 30, 2, nil)
	require.NoError(t, p.PollOnce(context.Background()))

	assert.Equal(t, 2, q.Size())
	j1, _ := q.Next()
	j2, _ := q.Next()
	assert.Equal(t, queue.Job{UserID: "u1", ActivityID: "1"}, j1)
	assert.Equal(t, queue.Job{UserID: "u1", ActivityID: "3"}, j2)
}

func TestPollOnceMultipleUsers(t *testing.T) {
	disk := storage.New(t.TempDir(), false)
	creds := setupCreds(t, disk, "u1", "u2", "u3")

	lister := &fakeLister{summaries: map[string][]strava.Summary{
		"u1": {{ID: 10}},
		"u2": {{ID: 20}},
		"u3": {{ID: 30}},
	}}

	q := queue.New[queue.Job]()
	p := New(creds, lister.factory, disk, q, 30, 3, nil)
	require.NoError(t, p.PollOnce(context.Background()))

	assert.Equal(t, 3, q.Size())
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, lister.calls)
}

func TestPollOnceUserFailureDoesNotAbortSweep(t *testing.T) {
	disk := storage.New(t.TempDir(), false)
	creds := setupCreds(t, disk, "u1", "u2")

	lister := &fakeLister{
		summaries: map[string][]strava.Summary{"u2": {{ID: 20}}},
		errs:      map[string]error{"u1": errors.New("token revoked")},
	}

	q := queue.New[queue.Job]()
	p := New(creds, lister.factory, disk, q, 30, 2, nil)
	require.NoError(t, p.PollOnce(context.Background()))

	// u2's work still arrives despite u1 failing.
	assert.Equal(t, 1, q.Size())
	j, _ := q.Next()
	assert.Equal(t, "u2", j.UserID)
}

func TestPollOnceNoUsers(t *testing.T) {
	disk := storage.New(t.TempDir(), false)
	creds := credentials.NewStore(disk, credentials.Config{TokenURL: "http://unused.invalid"})

	q := queue.New[queue.Job]()
	p := New(creds, (&fakeLister{}).factory, disk, q, 30, 2, nil)
	require.NoError(t, p.PollOnce(context.Background()))
	assert.Equal(t, 0, q.Size())
}
