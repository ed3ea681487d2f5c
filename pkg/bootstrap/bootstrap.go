// Package bootstrap wires the application's dependencies: persistence,
// credential store, resolvers, the enrichment pipeline, and the consent
// server, all from a loaded configuration.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/ifrog800/StravaAddon/config"
	"github.com/ifrog800/StravaAddon/pkg/cache"
	"github.com/ifrog800/StravaAddon/pkg/credentials"
	"github.com/ifrog800/StravaAddon/pkg/enricher"
	"github.com/ifrog800/StravaAddon/pkg/geocode"
	"github.com/ifrog800/StravaAddon/pkg/poller"
	"github.com/ifrog800/StravaAddon/pkg/queue"
	"github.com/ifrog800/StravaAddon/pkg/server"
	"github.com/ifrog800/StravaAddon/pkg/storage"
	"github.com/ifrog800/StravaAddon/pkg/strava"
	"github.com/ifrog800/StravaAddon/pkg/weather"
)

// Service holds the initialized dependencies of the daemon.
type Service struct {
	Config *config.Config

	Creds  *credentials.Store
	Queue  *queue.Queue[queue.Job]
	Worker *enricher.Worker
	Poller *poller.Poller
	Server *server.Server
}

// NewService initializes all standard dependencies from cfg.
func NewService(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := initSentry(cfg.SentryDSN, logger); err != nil {
		return nil, err
	}

	disk := storage.New(cfg.DataDir, cfg.Compress)

	creds := credentials.NewStore(disk, credentials.Config{
		TokenURL:      cfg.Strava.TokenURL,
		ClientID:      cfg.Strava.ClientID,
		ClientSecret:  cfg.Strava.ClientSecret,
		RefreshWindow: cfg.Strava.RefreshWindow,
	})

	geo := geocode.NewResolver(
		cache.New("geocode", disk),
		geocode.NewClient(geocode.DefaultBaseURL, cfg.Strava.HTTPTimeout),
	)
	wx := weather.NewResolver(
		cache.New("weather", disk),
		weather.NewClient(cfg.Weather.APIURL, cfg.Weather.APIKey, cfg.Strava.HTTPTimeout),
	)

	apiClient := func(userID string) *strava.Client {
		return strava.NewClient(cfg.Strava.APIURL, creds.Source(userID), cfg.Strava.HTTPTimeout)
	}

	orch := enricher.NewOrchestrator(
		func(userID string) enricher.ActivityAPI { return apiClient(userID) },
		disk, geo, wx,
	)

	q := queue.New[queue.Job]()
	w := enricher.NewWorker(q, orch, cfg.JobDelay, logger)
	p := poller.New(
		creds,
		func(userID string) poller.ActivityLister { return apiClient(userID) },
		disk, q, 30, cfg.Concurrency, logger,
	)

	srv := server.New(creds, server.Config{
		ClientID:    cfg.Strava.ClientID,
		RedirectURL: cfg.Strava.RedirectURL,
	}, logger)

	return &Service{
		Config: cfg,
		Creds:  creds,
		Queue:  q,
		Worker: w,
		Poller: p,
		Server: srv,
	}, nil
}

func initSentry(dsn string, logger *slog.Logger) error {
	if dsn == "" {
		logger.Warn("sentry DSN not configured, error tracking disabled")
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn: dsn,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	logger.Info("sentry initialized")
	return nil
}
