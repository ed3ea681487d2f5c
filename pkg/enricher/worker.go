package enricher

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/ifrog800/StravaAddon/pkg/observability"
	"github.com/ifrog800/StravaAddon/pkg/queue"
)

// Worker is the single sequential drain loop: it pulls jobs from the queue
// one at a time and hands them to the orchestrator. There is deliberately no
// parallelism here; only one job's external-call chain is in flight at once.
type Worker struct {
	queue *queue.Queue[queue.Job]
	orch  *Orchestrator

	// delay spaces consecutive jobs to respect remote API rate limits.
	delay time.Duration

	logger *slog.Logger
}

// NewWorker creates the drain loop for the given queue and orchestrator.
func NewWorker(q *queue.Queue[queue.Job], orch *Orchestrator, delay time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: q, orch: orch, delay: delay, logger: logger}
}

// Run drains the queue until the context is cancelled. When the queue is
// empty the worker idles on the queue's wakeup signal. Job failures are
// logged and counted; they never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, ok := w.queue.Next()
		observability.SetQueueDepth(w.queue.Size())
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.queue.Wakeup():
				continue
			}
		}

		w.runJob(ctx, job)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.delay):
		}
	}
}

// runJob executes one job and records its outcome. Errors stop at the job
// boundary.
func (w *Worker) runJob(ctx context.Context, job queue.Job) {
	logger := w.logger.With(
		"execution_id", uuid.NewString(),
		"user_id", job.UserID,
		"activity_id", job.ActivityID,
	)
	logger.Info("Starting enrichment job")

	outcome, err := w.orch.Process(ctx, logger, job)
	switch outcome {
	case OutcomeEnriched:
		observability.RecordJob(observability.OutcomeEnriched)
	case OutcomeSkipped:
		observability.RecordJob(observability.OutcomeSkipped)
	default:
		observability.RecordJob(observability.OutcomeFailed)
	}

	if err != nil {
		logger.Error("Enrichment job abandoned", "error", err, "outcome", string(outcome))
		sentry.CaptureException(err)
	}
}
