// Package relay is the local HTTP relay: a passthrough to the Anthropic
// messages API that carries the user's key, and a server-side fetch for
// the web_fetch tool. It keeps no state between requests.
package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hermitcrab/config"
	"hermitcrab/tools"
)

const (
	DefaultUpstreamURL = "https://api.anthropic.com"
	DefaultModel       = "claude-sonnet-4-20250514"
	DefaultMaxTokens   = 4096

	AnthropicVersion = "2023-06-01"
	AnthropicBeta    = "web-fetch-2025-09-10,code-execution-2025-08-25,context-management-2025-06-27"

	FetchUserAgent = "XstreamSeed/0.2 (hermitcrab kernel)"
	FetchAccept    = "text/html,application/xhtml+xml,text/plain,*/*"

	maxRequestBody = 32 << 20
	maxFetchBody   = 16 << 20
)

// Options configure a relay. Zero values take the defaults.
type Options struct {
	UpstreamURL    string
	AllowedOrigins []string
	FetchTimeout   time.Duration
	FetchLimit     int
	RateLimit      float64
	RateBurst      int

	// Client carries upstream completion requests
	Client *http.Client
	Logger *log.Logger
}

// OptionsFromConfig maps the [relay] section onto Options.
func OptionsFromConfig(cfg config.RelayConfig) Options {
	return Options{
		UpstreamURL:    cfg.UpstreamURL,
		AllowedOrigins: cfg.AllowedOrigins,
		FetchTimeout:   cfg.FetchTimeout.Duration,
		FetchLimit:     cfg.FetchLimit,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
	}
}

// Server is the relay's HTTP surface.
type Server struct {
	opts        Options
	router      chi.Router
	limiter     *ipLimiter
	metrics     *metrics
	registry    *prometheus.Registry
	client      *http.Client
	fetchClient *http.Client
	logger      *log.Logger
}

// New builds a relay with its own metrics registry.
func New(opts Options) *Server {
	if opts.UpstreamURL == "" {
		opts.UpstreamURL = DefaultUpstreamURL
	}
	opts.UpstreamURL = strings.TrimRight(opts.UpstreamURL, "/")
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = config.DefaultAllowedOrigins
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = tools.DefaultFetchTimeout
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = tools.DefaultFetchLimit
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = config.DebugLog
	}
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		opts:        opts,
		limiter:     newIPLimiter(opts.RateLimit, opts.RateBurst),
		metrics:     newMetrics(registry),
		registry:    registry,
		client:      opts.Client,
		fetchClient: &http.Client{Timeout: opts.FetchTimeout},
		logger:      logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		for _, path := range []string{"/relay/completion", "/api/claude", "/v1/messages"} {
			r.HandleFunc(path, s.handleCompletion)
		}
		for _, path := range []string{"/relay/fetch", "/api/fetch"} {
			r.HandleFunc(path, s.handleFetch)
		}
	})
	return r
}

// Handler returns the relay's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Printf("[Relay] listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
