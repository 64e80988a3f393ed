// Command notify-worker receives content-created events (Eventarc CloudEvents or plain
// JSON pushes) and alerts the admins responsible for the content's province.
// Invocation is restricted by the platform (Cloud Run IAM), so no token check runs here.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/comunidad/backend/internal/config"
	"github.com/comunidad/backend/internal/handlers"
	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg, "notify-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	provider := services.NewBackendProvider(cfg, logger, nil)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 15*time.Second)
	backends, err := provider.Get(initCtx)
	cancelInit()
	if err != nil {
		logger.WithError(err).Error("backend initialization error")
		os.Exit(1)
	}

	notifications := services.NewNotificationService(backends.Directory, backends.Mailer, cfg.AdminBaseURL, logger)
	events := handlers.NewContentEventHandler(notifications, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/healthz", handlers.Health(backends))
	r.Post("/events", events.Handle)

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithFields(logging.Fields{"event": "startup", "addr": srv.Addr}).Info("notify-worker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("worker server failed")
			stop()
		}
	}()

	<-signalCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	if err := provider.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("backend close error")
	}
}
