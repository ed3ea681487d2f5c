// Package server hosts the OAuth consent flow. It serves a landing page
// with an authorize link, handles the Strava redirect, exchanges the
// authorization code for tokens, and exposes health and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/ifrog800/StravaAddon/pkg/credentials"
)

// DefaultAuthURL is Strava's authorization endpoint.
const DefaultAuthURL = "https://www.strava.com/oauth/authorize"

// requiredScopes must all be granted for the pipeline to read laps and
// write descriptions back.
var requiredScopes = []string{"read", "activity:read_all", "activity:write"}

// Config carries the settings needed to build the authorize URL.
type Config struct {
	ClientID    string
	RedirectURL string
	AuthURL     string // defaults to DefaultAuthURL
}

// CodeExchanger exchanges an authorization code for a persisted credential
// record. Satisfied by credentials.Store.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*credentials.Record, error)
}

// Server is the HTTP front for granting and storing Strava access.
type Server struct {
	creds  CodeExchanger
	logger *slog.Logger

	authURL string
}

// New builds a Server. logger may be nil.
func New(creds CodeExchanger, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	authEndpoint := cfg.AuthURL
	if authEndpoint == "" {
		authEndpoint = DefaultAuthURL
	}
	oc := &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURL,
		Scopes:      []string{strings.Join(requiredScopes, ",")},
		Endpoint:    oauth2.Endpoint{AuthURL: authEndpoint},
	}
	return &Server{
		creds:   creds,
		logger:  logger,
		authURL: oc.AuthCodeURL("", oauth2.SetAuthURLParam("approval_prompt", "force")),
	}
}

// AuthorizeURL returns the fully-formed Strava authorize link, useful for
// printing at startup.
func (s *Server) AuthorizeURL() string {
	return s.authURL
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLog)
	r.Use(gateRequests)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		s.consentPage(w, "Click here to grant access to your Strava account.")
	})
	r.Get("/strava/oauth", s.handleCallback)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "500")
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.logger.Info("http request", "method", req.Method, "path", req.URL.Path)
		next.ServeHTTP(w, req)
	})
}

// gateRequests rejects anything that is not a plain GET, and the favicon
// probe browsers send alongside every page load.
func gateRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet || req.URL.Path == "/favicon.ico" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "403")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (s *Server) consentPage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, consentHTML, s.authURL, msg)
}

func (s *Server) handleCallback(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	if q.Get("error") == "access_denied" {
		s.consentPage(w, "Cancel was pressed. Not authorized.")
		return
	}
	if !q.Has("scope") || !q.Has("code") {
		s.consentPage(w, "Epic error on Strava's end. Please try again.")
		return
	}
	if !scopesGranted(q.Get("scope")) {
		s.consentPage(w, "Not all permissions were given. Please make sure all the requested permissions are selected.")
		return
	}

	rec, err := s.creds.ExchangeCode(req.Context(), q.Get("code"))
	if err != nil {
		s.logger.Error("code exchange failed", "error", err)
		s.consentPage(w, "An unexpected error has occurred. Please try again.")
		return
	}
	s.logger.Info("authorization granted", "user_id", rec.UserID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, grantedHTML)
}

// scopesGranted reports whether every required scope appears in the
// comma-separated scope list from the redirect.
func scopesGranted(scope string) bool {
	granted := make(map[string]bool)
	for _, sc := range strings.Split(scope, ",") {
		granted[strings.ToLower(strings.TrimSpace(sc))] = true
	}
	for _, want := range requiredScopes {
		if !granted[want] {
			return false
		}
	}
	return true
}

const consentHTML = `<!DOCTYPE html>
<html>
<head><title>Grant OAUTH</title></head>
<body>
<a href="%s"><h1>%s</h1></a>
</body>
</html>
`

const grantedHTML = `<!DOCTYPE html>
<html>
<head><title>OAUTH Granted</title></head>
<body>
<h1>Very Cool.</h1>
</body>
</html>
`
