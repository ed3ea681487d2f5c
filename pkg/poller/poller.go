// Package poller discovers new activities for every registered user and
// feeds them to the work queue. Users are polled concurrently; the queue
// serializes the actual enrichment.
package poller

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ifrog800/StravaAddon/pkg/credentials"
	"github.com/ifrog800/StravaAddon/pkg/enricher"
	"github.com/ifrog800/StravaAddon/pkg/queue"
	"github.com/ifrog800/StravaAddon/pkg/storage"
	"github.com/ifrog800/StravaAddon/pkg/strava"
)

// ActivityLister is the slice of the Strava client the poller needs.
type ActivityLister interface {
	ListActivities(ctx context.Context, perPage int) ([]strava.Summary, error)
}

// ListerFactory builds an authenticated lister for one user.
type ListerFactory func(userID string) ActivityLister

// Poller enumerates credentialed users and enqueues unseen activities.
type Poller struct {
	creds       *credentials.Store
	clients     ListerFactory
	audit       *storage.Store
	queue       *queue.Queue[queue.Job]
	perPage     int
	concurrency int
	logger      *slog.Logger
}

// New creates a poller. perPage bounds the listing window; concurrency
// bounds how many users are polled at once.
func New(creds *credentials.Store, clients ListerFactory, audit *storage.Store, q *queue.Queue[queue.Job], perPage, concurrency int, logger *slog.Logger) *Poller {
	if perPage <= 0 {
		perPage = 30
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		creds:       creds,
		clients:     clients,
		audit:       audit,
		queue:       q,
		perPage:     perPage,
		concurrency: concurrency,
		logger:      logger,
	}
}

// PollOnce lists recent activities for every known user and enqueues those
// without an audit snapshot. The snapshot check is the deduplication guard:
// the queue itself never deduplicates. Per-user failures are logged and do
// not fail the sweep.
func (p *Poller) PollOnce(ctx context.Context) error {
	users, err := p.creds.Users()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			p.pollUser(ctx, userID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) pollUser(ctx context.Context, userID string) {
	summaries, err := p.clients(userID).ListActivities(ctx, p.perPage)
	if err != nil {
		p.logger.Error("Failed to list activities", "user_id", userID, "error", err)
		return
	}

	enqueued := 0
	for _, s := range summaries {
		activityID := strconv.FormatInt(s.ID, 10)
		if p.audit.Exists(enricher.AuditDir(userID), activityID) {
			continue
		}
		p.queue.Add(queue.Job{UserID: userID, ActivityID: activityID})
		enqueued++
	}
	if enqueued > 0 {
		p.logger.Info("Enqueued new activities", "user_id", userID, "count", enqueued)
	}
}

// Run polls on a fixed interval until the context is cancelled. The first
// sweep fires immediately.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil {
			p.logger.Error("Polling sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
