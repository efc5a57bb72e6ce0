/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/speakergroups/internal/activeplayer"
	"github.com/friendsincode/speakergroups/internal/api"
	"github.com/friendsincode/speakergroups/internal/audit"
	"github.com/friendsincode/speakergroups/internal/config"
	"github.com/friendsincode/speakergroups/internal/control"
	"github.com/friendsincode/speakergroups/internal/db"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/groupconfig"
	"github.com/friendsincode/speakergroups/internal/grouping"
	"github.com/friendsincode/speakergroups/internal/hub"
	"github.com/friendsincode/speakergroups/internal/leadership"
	"github.com/friendsincode/speakergroups/internal/store"
	"github.com/friendsincode/speakergroups/internal/telemetry"
)

const (
	retention           = 30 * 24 * time.Hour
	pruneInterval       = time.Hour
	dbMetricsInterval   = 30 * time.Second
	requestTimeout      = 60 * time.Second
	initialLoadDeadline = 10 * time.Second
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db          *gorm.DB
	bus         events.Broker
	store       *store.Store
	hubClient   *hub.Client
	control     *control.Service
	coordinator *activeplayer.Coordinator
	groupSource groupconfig.Source
	registry    *groupconfig.Registry
	history     *grouping.HistoryStore
	audit       *audit.Service
	maintenance leadership.Gate
	reconciler  *grouping.Reconciler
	api         *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("speakergroups-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(requestTimeout)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(ctx); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           corsHandler(cfg.CORSOrigins).Handler(srv.router),
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout set to 0 for the events websocket; the middleware
		// timeout covers everything else.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv, nil
}

func corsHandler(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies(ctx context.Context) error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.history = grouping.NewHistoryStore(database)

	broker, closeBroker := NewBroker(s.cfg, events.NewBus(), s.logger)
	if closeBroker != nil {
		s.DeferClose(closeBroker)
	}
	s.bus = broker
	s.logger.Info().Str("event_bus", string(s.cfg.EventBus)).Msg("event bus ready")

	s.audit = audit.NewService(s.db, s.bus, s.logger)
	s.store = store.New(s.bus, s.logger)

	s.hubClient, err = NewHubClient(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.control = control.NewService(s.hubClient, s.logger)

	s.coordinator = activeplayer.NewCoordinator(s.bus, s.logger)
	s.DeferClose(func() error {
		s.coordinator.Close()
		return nil
	})

	s.groupSource, err = OpenGroupSource(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.registry = groupconfig.NewRegistry(s.groupSource, s.bus, s.logger)
	if err := s.registry.Reload(ctx); err != nil {
		// A broken or missing document leaves the dashboard usable without presets.
		s.logger.Warn().Err(err).Str("source", s.groupSource.String()).Msg("starting without predefined groups")
	}

	s.reconciler = grouping.NewReconciler(s.control, s.coordinator, s.history, s.bus, s.logger)

	var secret []byte
	if s.cfg.AuthEnabled() {
		secret = []byte(s.cfg.JWTSigningKey)
	} else {
		s.logger.Warn().Msg("SPEAKERGROUPS_JWT_SIGNING_KEY not set, API auth disabled")
	}
	s.api = api.New(api.Deps{
		Store:       s.store,
		Control:     s.control,
		Registry:    s.registry,
		Reconciler:  s.reconciler,
		History:     s.history,
		Coordinator: s.coordinator,
		Audit:       s.audit,
		Bus:         s.bus,
		JWTSecret:   secret,
	}, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus listener.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Seed the store before the feed connects so the first requests see players.
	loadCtx, loadCancel := context.WithTimeout(ctx, initialLoadDeadline)
	if snap, err := s.hubClient.States(loadCtx); err != nil {
		s.logger.Warn().Err(err).Msg("initial hub state load failed, waiting for feed")
	} else {
		s.store.Replace(snap)
	}
	loadCancel()

	feed := hub.NewFeed(s.hubClient, s.store, s.logger)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("hub state feed stopped")
		}
	}()

	if fileSrc, ok := s.groupSource.(groupconfig.FileSource); ok && s.cfg.GroupsWatch {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := groupconfig.Watch(ctx, fileSrc.Path, s.registry, s.cfg.GroupsDebounce); err != nil {
				s.logger.Error().Err(err).Str("path", fileSrc.Path).Msg("group config watcher exited")
			}
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.audit.Start(ctx)
	}()

	gate, closeGate := NewMaintenanceGate(ctx, s.cfg, s.logger)
	s.maintenance = gate
	if closeGate != nil {
		s.DeferClose(closeGate)
	}
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runMaintenance(ctx)
	}()
}

// runMaintenance refreshes pool metrics and, on the leading instance, prunes
// old reconcile runs and audit entries.
func (s *Server) runMaintenance(ctx context.Context) {
	metricsTicker := time.NewTicker(dbMetricsInterval)
	defer metricsTicker.Stop()
	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-metricsTicker.C:
			db.UpdateConnectionMetrics(s.db)
		case <-pruneTicker.C:
			if !s.maintenance.Leader() {
				continue
			}
			s.prune(ctx)
		}
	}
}

func (s *Server) prune(ctx context.Context) {
	cutoff := time.Now().Add(-retention)

	runs, err := db.PruneReconcileRuns(s.db.WithContext(ctx), cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("prune reconcile runs failed")
	} else if runs > 0 {
		s.logger.Info().Int64("runs", runs).Msg("pruned old reconcile runs")
	}

	entries, err := s.audit.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("prune audit log failed")
	} else if entries > 0 {
		s.logger.Info().Int64("entries", entries).Msg("pruned old audit entries")
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.api.Routes(s.router)
}
