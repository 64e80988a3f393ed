package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/comunidad/backend/internal/config"
	"github.com/comunidad/backend/internal/handlers"
	"github.com/comunidad/backend/internal/logging"
	appMiddleware "github.com/comunidad/backend/internal/middleware"
	"github.com/comunidad/backend/internal/services"
)

const (
	backendInitTimeout = 15 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg, "comunidad-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	provider := services.NewBackendProvider(cfg, logger, nil)

	initCtx, cancelInit := context.WithTimeout(context.Background(), backendInitTimeout)
	backends, err := provider.Get(initCtx)
	cancelInit()
	if err != nil {
		logger.WithError(err).Error("backend initialization error")
		fmt.Fprintf(os.Stderr, "backend initialization error: %v\n", err)
		os.Exit(1)
	}

	authCfg := appMiddleware.AuthConfig{InternalSecret: cfg.InternalJWTSecret}
	if backends.Auth != nil {
		authCfg.Verifier = backends.Auth
	}
	if authCfg.Verifier == nil && authCfg.InternalSecret == "" {
		entry := logger.WithField("event", "auth_disabled")
		if cfg.IsDevelopment() {
			entry.Info("no token verifier configured; requests are not authenticated")
		} else {
			entry.Warn("no token verifier configured in production; requests are not authenticated")
		}
	}

	gamification := services.NewGamificationService(backends.Ledger, backends.Guard, logger)
	notifications := services.NewNotificationService(backends.Directory, backends.Mailer, cfg.AdminBaseURL, logger)

	r := newRouter(cfg, logger, routes{
		auth:         authCfg,
		health:       backends,
		gamification: handlers.NewGamificationHandler(gamification, logger),
		ledger:       handlers.NewLedgerHandler(gamification, logger),
		notify:       handlers.NewNotifyHandler(notifications, logger),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logging.Fields{
			"event":   "startup",
			"addr":    srv.Addr,
			"backend": cfg.LedgerBackend,
		}).Info("comunidad API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	if err := provider.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("backend close error")
	}
	logger.WithField("event", "shutdown").Info("server stopped")
}

type routes struct {
	auth         appMiddleware.AuthConfig
	health       handlers.HealthChecker
	gamification *handlers.GamificationHandler
	ledger       *handlers.LedgerHandler
	notify       *handlers.NotifyHandler
}

func newRouter(cfg config.Config, logger *logrus.Entry, rt routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: !cfg.IsDevelopment()}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handlers.Health(rt.health))

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Authenticate(rt.auth))

		r.Post("/gamification", rt.gamification.Apply)
		r.Get("/ledger/{userId}", rt.ledger.Get)
		r.Post("/notify-admins", rt.notify.NotifyAdmins)
	})

	return r
}
