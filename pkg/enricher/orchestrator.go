// Package enricher runs the multi-stage pipeline that turns a queued job
// into an enriched activity description: fetch, idempotency check, splits,
// geolocation, weather, writeback. Stage failures abandon the job, never the
// queue.
package enricher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ifrog800/StravaAddon/pkg/geocode"
	"github.com/ifrog800/StravaAddon/pkg/queue"
	"github.com/ifrog800/StravaAddon/pkg/storage"
	"github.com/ifrog800/StravaAddon/pkg/strava"
	"github.com/ifrog800/StravaAddon/pkg/weather"
)

// Marker is the idempotency sentinel appended to every written-back
// description. Its presence means the activity was already enriched.
const Marker = "⚡ Enhanced by StravaAddon"

// AuditDir returns the per-user partition for raw activity snapshots.
func AuditDir(userID string) string {
	return "activities/" + userID
}

// ActivityAPI is the per-user slice of the Strava client the pipeline uses.
type ActivityAPI interface {
	GetActivity(ctx context.Context, activityID string) (*strava.Activity, error)
	UpdateActivity(ctx context.Context, activityID string, update *strava.UpdateRequest) (*strava.Activity, error)
}

// ClientFactory builds an authenticated ActivityAPI for one user.
type ClientFactory func(userID string) ActivityAPI

// Outcome classifies a finished job.
type Outcome string

const (
	OutcomeEnriched Outcome = "enriched"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Orchestrator executes the pipeline stages for one job at a time.
type Orchestrator struct {
	clients ClientFactory
	audit   *storage.Store
	geo     *geocode.Resolver
	wx      *weather.Resolver
}

// NewOrchestrator wires the pipeline's collaborators. The audit store holds
// raw and written-back activity snapshots.
func NewOrchestrator(clients ClientFactory, audit *storage.Store, geo *geocode.Resolver, wx *weather.Resolver) *Orchestrator {
	return &Orchestrator{clients: clients, audit: audit, geo: geo, wx: wx}
}

// Process runs all stages for one job. The returned error describes the
// failing stage; the caller logs it and moves on — failed jobs are not
// re-enqueued.
func (o *Orchestrator) Process(ctx context.Context, logger *slog.Logger, job queue.Job) (Outcome, error) {
	client := o.clients(job.UserID)

	// Stage 1: fetch, and snapshot the raw record regardless of later outcome.
	activity, err := client.GetActivity(ctx, job.ActivityID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetch: %w", err)
	}
	if err := o.audit.Write(AuditDir(job.UserID), job.ActivityID, activity); err != nil {
		return OutcomeFailed, fmt.Errorf("audit snapshot: %w", err)
	}

	// Stage 2: idempotency. Already-enriched activities are a no-op, not an
	// error.
	if strings.Contains(activity.Description, Marker) {
		logger.Info("Activity already enriched, skipping")
		return OutcomeSkipped, nil
	}

	// Stage 3: splits.
	sections := []string{}
	if splits := BuildSplits(activity.Laps); splits != "" {
		sections = append(sections, splits)
	}

	// Stages 4 and 5: geolocation and weather. Missing coordinates degrade
	// gracefully to a splits-only writeback.
	var icon string
	if activity.HasCoordinates() {
		locationLine, weatherLine, wxIcon := o.resolveConditions(ctx, logger, activity)
		if locationLine != "" {
			sections = append(sections, locationLine)
		}
		if weatherLine != "" {
			sections = append(sections, weatherLine)
			icon = wxIcon
		}
	} else {
		logger.Info("Activity has no coordinates, skipping location and weather")
	}

	// Stage 6: writeback with the marker suffix. Pass-through fields carry
	// the fetched values unchanged.
	update := &strava.UpdateRequest{
		Commute:      activity.Commute,
		Trainer:      activity.Trainer,
		HideFromHome: activity.HideFromHome,
		Description:  composeDescription(activity.Description, sections),
		Name:         activity.Name,
		Type:         activity.Type,
		GearID:       activity.GearID,
	}
	if icon != "" {
		update.Name = icon + " " + activity.Name
	}

	updated, err := client.UpdateActivity(ctx, job.ActivityID, update)
	if err != nil {
		// Keep the attempted payload in the log for manual inspection; the
		// pre-writeback snapshot stays on disk.
		logger.Error("Writeback rejected", "error", err, "attempted_description", update.Description)
		return OutcomeFailed, fmt.Errorf("writeback: %w", err)
	}
	if err := o.audit.Write(AuditDir(job.UserID), job.ActivityID, updated); err != nil {
		return OutcomeFailed, fmt.Errorf("audit snapshot after writeback: %w", err)
	}

	logger.Info("Activity enriched", "sections", len(sections))
	return OutcomeEnriched, nil
}

// resolveConditions runs the geolocation and weather stages. Lookup failures
// skip the affected section instead of failing the job.
func (o *Orchestrator) resolveConditions(ctx context.Context, logger *slog.Logger, activity *strava.Activity) (locationLine, weatherLine, icon string) {
	lat, lon := activity.StartLatLng[0], activity.StartLatLng[1]

	geoResult, err := o.geo.Resolve(ctx, lat, lon)
	if err != nil {
		logger.Warn("Geocode lookup failed, skipping location and weather", "error", err)
		return "", "", ""
	}
	locationLine = formatLocation(geoResult)

	start, err := time.Parse(time.RFC3339, activity.StartDate)
	if err != nil {
		logger.Warn("Unparseable start date, skipping weather", "start_date", activity.StartDate, "error", err)
		return locationLine, "", ""
	}

	descriptor := geocode.LocationDescriptor(geoResult, lat, lon)
	day, err := o.wx.Resolve(ctx, descriptor, start.Format("2006-01-02"))
	if err != nil {
		logger.Warn("Weather lookup failed, skipping weather section", "error", err, "descriptor", descriptor)
		return locationLine, "", ""
	}

	hour, err := day.SelectHour(start)
	if err != nil {
		logger.Warn("No weather entry for activity hour", "error", err)
		return locationLine, "", ""
	}
	return locationLine, hour.Summary(), weather.Icon(hour.Condition.Text)
}

// formatLocation renders the location line from a geocode result.
func formatLocation(r *geocode.Result) string {
	parts := []string{}
	if r.Locality != "" {
		parts = append(parts, r.Locality)
	}
	if r.Region != "" {
		parts = append(parts, r.Region)
	}
	if len(parts) == 0 {
		return ""
	}
	return "📍 " + strings.Join(parts, ", ")
}

// composeDescription appends the enrichment sections and the marker to the
// original description.
func composeDescription(original string, sections []string) string {
	parts := []string{}
	if trimmed := strings.TrimSpace(original); trimmed != "" {
		parts = append(parts, trimmed)
	}
	parts = append(parts, sections...)
	parts = append(parts, Marker)
	return strings.Join(parts, "\n\n")
}
