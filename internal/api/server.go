// Package api serves the daemon's loopback HTTP interface to the browser host
// and the CLI.
package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

// Route paths.
const (
	PathMessages    = "/api/messages"
	PathNavigation  = "/api/navigation"
	PathTabCommands = "/api/tabs/commands"
	PathTabs        = "/api/tabs"
	PathHealth      = "/healthz"
	PathMetrics     = "/metrics"
)

const defaultMaxBodyBytes = 1 << 20

// Dispatcher answers named requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req usecase.Request) usecase.Response
}

// Navigator is the navigation gate as seen by the host.
type Navigator interface {
	HandleNavigation(ctx context.Context, ev domain.NavigationEvent) (domain.Verdict, error)
	TabClosed(tabID int)
	DrainCommands() []domain.TabCommand
}

// Config holds server configuration.
type Config struct {
	Version      string
	MaxBodyBytes int64
}

// Health is the body of GET /healthz.
type Health struct {
	OK        bool   `json:"ok"`
	Version   string `json:"version"`
	PID       int    `json:"pid"`
	UptimeSec int64  `json:"uptimeSec"`
}

// Server routes HTTP requests to the dispatcher and the gate.
type Server struct {
	config     Config
	router     chi.Router
	dispatcher Dispatcher
	navigator  Navigator
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	startedAt  time.Time
}

// NewServer creates a server. A nil gatherer disables /metrics.
func NewServer(config Config, d Dispatcher, n Navigator, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		config:     config,
		router:     chi.NewRouter(),
		dispatcher: d,
		navigator:  n,
		gatherer:   gatherer,
		logger:     logger,
		startedAt:  time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.Get(PathHealth, s.healthz)
	if s.gatherer != nil {
		s.router.Method(http.MethodGet, PathMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	apiRouter := chi.NewRouter()
	apiRouter.Use(s.jsonMiddleware)
	apiRouter.Post("/messages", s.handleMessage)
	apiRouter.Post("/navigation", s.handleNavigation)
	apiRouter.Route("/tabs", func(tabs chi.Router) {
		tabs.Get("/commands", s.handleTabCommands)
		tabs.Delete("/{tabId}", s.handleTabClosed)
	})
	s.router.Mount("/api", apiRouter)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		OK:        true,
		Version:   s.config.Version,
		PID:       os.Getpid(),
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	})
}
