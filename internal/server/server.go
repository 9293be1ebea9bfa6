/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, the playback engine and
// the HTTP surface into one runnable process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storybeam/radio/internal/api"
	"github.com/storybeam/radio/internal/audio"
	"github.com/storybeam/radio/internal/cache"
	"github.com/storybeam/radio/internal/config"
	"github.com/storybeam/radio/internal/db"
	"github.com/storybeam/radio/internal/eventbus"
	"github.com/storybeam/radio/internal/events"
	"github.com/storybeam/radio/internal/hostbreak"
	"github.com/storybeam/radio/internal/library"
	"github.com/storybeam/radio/internal/media"
	"github.com/storybeam/radio/internal/models"
	"github.com/storybeam/radio/internal/playback"
	"github.com/storybeam/radio/internal/telemetry"
	"github.com/storybeam/radio/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db      *gorm.DB
	cache   *cache.Cache
	bus     *events.Bus
	library *library.Service
	engine  *playback.Engine
	api     *api.API
	tracer  *telemetry.TracerProvider

	fsMedia bool

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// engineSource adapts the library service for the engine. Host breaks
// are suppressed entirely when no generation service is configured.
type engineSource struct {
	lib           *library.Service
	breaksEnabled bool
}

func (s *engineSource) Library(ctx context.Context) ([]models.Track, error) {
	return s.lib.Library(ctx)
}

func (s *engineSource) HostsAvailable(ctx context.Context) (bool, error) {
	if !s.breaksEnabled {
		return false, nil
	}
	return s.lib.HostsAvailable(ctx)
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("storybeam-radio-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Websocket event streams outlive any sane request timeout.
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
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 so websocket streams are never cut; the
		// middleware timeout covers plain routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.EnsureAdmin(database, s.cfg.AdminEmail, s.cfg.AdminPassword, s.logger); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := os.MkdirAll(s.cfg.MediaRoot, 0o755); err != nil {
		return fmt.Errorf("create media directory %s: %w", s.cfg.MediaRoot, err)
	}

	tracer, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "storybeam-radio",
		ServiceVersion: version.Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.tracer = tracer
	s.DeferClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.tracer.Shutdown(ctx)
	})

	if s.cfg.RedisAddr != "" {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		entityCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = entityCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	s.library = library.NewService(s.db, s.cache, s.bus, s.logger)

	station, err := s.library.Station(context.Background())
	if errors.Is(err, library.ErrNoStation) {
		return fmt.Errorf("no station configured; run 'storybeamradio seed' first")
	}
	if err != nil {
		return fmt.Errorf("load station: %w", err)
	}

	var store media.Storage
	if s.cfg.S3Enabled() {
		s3Store, err := media.NewS3Storage(context.Background(), media.S3Config{
			Region:          s.cfg.S3Region,
			Bucket:          s.cfg.S3Bucket,
			Endpoint:        s.cfg.S3Endpoint,
			AccessKeyID:     s.cfg.S3AccessKeyID,
			SecretAccessKey: s.cfg.S3SecretAccessKey,
			PublicBaseURL:   s.cfg.S3PublicBaseURL,
			UsePathStyle:    s.cfg.S3UsePathStyle,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("init S3 storage: %w", err)
		}
		store = s3Store
	} else {
		store = media.NewFilesystemStorage(s.cfg.MediaRoot, s.cfg.BaseURL+"/media", s.logger)
		s.fsMedia = true
	}

	var resolver playback.Resolver
	if s.cfg.HostBreakURL != "" {
		var mirror media.Storage
		if s.cfg.HostBreakMirror {
			mirror = store
		}
		client, err := hostbreak.NewClient(s.cfg.HostBreakURL, s.cfg.HostBreakTimeout, s.cfg.HostBreakTargetDuration, mirror, s.logger)
		if err != nil {
			return fmt.Errorf("init host break client: %w", err)
		}
		resolver = client
	}

	s.engine = playback.New(playback.Options{
		Station:        station.Config(),
		Source:         &engineSource{lib: s.library, breaksEnabled: resolver != nil},
		Resolver:       resolver,
		History:        s.library,
		Outputs:        audio.SpeakerFactory(s.logger),
		Bus:            s.bus,
		Logger:         s.logger,
		PollInterval:   s.cfg.PollInterval,
		FadeTick:       s.cfg.FadeTickInterval,
		ResumeDeferral: s.cfg.ResumeDeferral,
	})

	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	if s.cfg.RedisAddr != "" {
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		bridge, err := eventbus.NewRedisBridge(redisCfg, s.bus, nodeID, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("redis event bridge unavailable")
		} else {
			bridge.Start(eventbus.BridgedEvents())
			s.DeferClose(bridge.Close)
		}
	}
	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		bridge, err := eventbus.NewNATSBridge(natsCfg, s.bus, nodeID, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("NATS event bridge unavailable")
		} else {
			if err := bridge.Start(eventbus.BridgedEvents()); err != nil {
				s.logger.Warn().Err(err).Msg("NATS event bridge subscribe failed")
			}
			s.DeferClose(bridge.Close)
		}
	}

	s.api = api.New(s.db, []byte(s.cfg.JWTSigningKey), s.engine, s.library, s.bus, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Engine exposes the playback engine.
func (s *Server) Engine() *playback.Engine {
	return s.engine
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

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("playback engine exited")
		}
	}()

	if s.cfg.MetricsBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", telemetry.Handler())
		metricsSrv := &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Str("bind", s.cfg.MetricsBind).Msg("metrics server exited")
			}
		}()
		s.DeferClose(func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
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
		_, _ = w.Write([]byte(`{"status":"ok","version":"` + version.Version + `"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	// Media files are served directly when backed by the local filesystem;
	// S3 locators are already public URLs.
	if s.fsMedia {
		fileServer := http.StripPrefix("/media/", http.FileServer(http.Dir(s.cfg.MediaRoot)))
		s.router.Handle("/media/*", fileServer)
	}

	s.api.Routes(s.router)
}
