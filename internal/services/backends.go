package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/sirupsen/logrus"

	"github.com/comunidad/backend/internal/config"
	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/store"
)

// Backends holds the process-wide handles shared by every request.
type Backends struct {
	Ledger    LedgerStore
	Directory AdminDirectory
	Mailer    Mailer
	// Guard is nil when Redis is not configured.
	Guard IdempotencyGuard
	// Auth verifies Firebase ID tokens. It shares the Firestore app and is nil without a
	// Firebase project.
	Auth *fbauth.Client

	checks  map[string]func(context.Context) error
	closers []func(context.Context) error
}

// AddCheck registers a named dependency probe reported by Health.
func (b *Backends) AddCheck(name string, check func(context.Context) error) {
	if b.checks == nil {
		b.checks = make(map[string]func(context.Context) error)
	}
	b.checks[name] = check
}

// OnClose registers a release hook. Hooks run in reverse registration order.
func (b *Backends) OnClose(fn func(context.Context) error) {
	b.closers = append(b.closers, fn)
}

// Health probes every registered dependency and returns "ok" or "error" per name.
func (b *Backends) Health(ctx context.Context) (map[string]string, bool) {
	names := make([]string, 0, len(b.checks))
	for name := range b.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := b.checks[name](ctx); err != nil {
			out[name] = "error"
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}

func (b *Backends) close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildFunc constructs a fresh set of backends.
type BuildFunc func(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Backends, error)

// BackendProvider builds the backends on first use and hands out the same instance
// afterwards. A failed build is not cached; the next Get tries again.
type BackendProvider struct {
	cfg    config.Config
	logger *logrus.Entry
	build  BuildFunc

	mu       sync.Mutex
	backends *Backends
}

// NewBackendProvider returns a provider using build, or BuildBackends when build is nil.
func NewBackendProvider(cfg config.Config, logger *logrus.Entry, build BuildFunc) *BackendProvider {
	if logger == nil {
		logger = logging.Logger()
	}
	if build == nil {
		build = BuildBackends
	}
	return &BackendProvider{cfg: cfg, logger: logger, build: build}
}

func (p *BackendProvider) Get(ctx context.Context) (*Backends, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backends != nil {
		return p.backends, nil
	}

	b, err := p.build(ctx, p.cfg, p.logger)
	if err != nil {
		return nil, err
	}
	p.backends = b
	return b, nil
}

// Close releases the backends if they were built. Get after Close builds a new set.
func (p *BackendProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backends == nil {
		return nil
	}
	err := p.backends.close(ctx)
	p.backends = nil
	return err
}

// newFirebaseApp is overridable for tests.
var newFirebaseApp = store.NewFirebaseApp

// BuildBackends wires the storage backend selected by LEDGER_BACKEND together with the
// mailer and the optional Redis idempotency guard.
func BuildBackends(ctx context.Context, cfg config.Config, logger *logrus.Entry) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			_ = b.close(context.WithoutCancel(ctx))
		}
	}()

	// One Firebase app serves both Firestore and Auth.
	var app *firebase.App
	if cfg.FirebaseProjectID != "" {
		fbApp, appErr := newFirebaseApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsJSON)
		switch {
		case appErr == nil:
			app = fbApp
		case cfg.LedgerBackend == config.BackendFirestore:
			return nil, appErr
		default:
			logger.WithError(appErr).Warn("firebase app unavailable; ID token verification disabled")
		}
	}

	switch cfg.LedgerBackend {
	case config.BackendMongo:
		manager, err := store.NewManager(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.OnClose(manager.Close)
		if err := manager.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("ensure mongo indexes failed")
		}
		b.Ledger = NewMongoLedgerStore(manager.Users())
		b.Directory = NewMongoAdminDirectory(manager.Users())
		b.AddCheck("store", manager.Ping)

	case config.BackendFirestore:
		client, err := store.NewFirestoreClient(ctx, app)
		if err != nil {
			return nil, err
		}
		b.OnClose(func(context.Context) error { return client.Close() })
		fs := NewFirestoreStore(client, cfg.UsersCollection)
		b.Ledger = fs
		b.Directory = fs
		b.AddCheck("store", fs.Ping)

	case config.BackendFile:
		fs, err := NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		b.Ledger = fs
		b.Directory = fs
		b.AddCheck("store", fs.Ping)

	default:
		return nil, fmt.Errorf("unsupported ledger backend %q", cfg.LedgerBackend)
	}

	if app != nil {
		authClient, err := app.Auth(ctx)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize Firebase Auth client")
		} else {
			b.Auth = authClient
		}
	}

	switch {
	case cfg.SendGridAPIKey != "":
		b.Mailer = NewSendGridMailer(cfg.SendGridAPIKey, cfg.NotifyFromEmail, cfg.NotifyFromName)
	case cfg.IsDevelopment():
		b.Mailer = NewLogMailer(logger)
	default:
		logger.Warn("SENDGRID_API_KEY is not set; admin notifications will fail")
		b.Mailer = NewSendGridMailer("", cfg.NotifyFromEmail, cfg.NotifyFromName)
	}

	if cfg.RedisURL != "" {
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.OnClose(func(context.Context) error { return client.Close() })
		b.Guard = NewRedisIdempotencyGuard(client, cfg.IdempotencyTTL)
		b.AddCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	logger.WithFields(logging.Fields{
		"backend":       cfg.LedgerBackend,
		"idempotency":   b.Guard != nil,
		"firebase_auth": b.Auth != nil,
	}).Info("backends initialized")

	return b, nil
}
