// Package daemon composes the chatd process: configuration, logging,
// the single-process lock, the store, the in-memory registries, and the
// HTTP surface, wired together with fx.
package daemon

import (
	"context"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/config"
	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/httpapi"
	"github.com/matheus3301/chatd/internal/lock"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/room"
	"github.com/matheus3301/chatd/internal/store"
	"github.com/matheus3301/chatd/internal/ws"
)

// Params holds the daemon's launch options.
type Params struct {
	ConfigPath string
	ListenAddr string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLock,
			provideStore,
			providePresence,
			provideRegistry,
			provideEngine,
			provideVerifier,
			provideLiveHandler,
			provideAPI,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.ListenAddr != "" {
		cfg.ListenAddr = p.ListenAddr
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath())
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func providePresence(cfg *config.Config) *presence.Tracker {
	return presence.NewTracker(cfg.PresenceWindow.Std())
}

func provideRegistry(logger *zap.Logger) *room.Registry {
	return room.NewRegistry(logger)
}

func provideEngine(db *store.DB, rooms *room.Registry, logger *zap.Logger) *delivery.Engine {
	return delivery.NewEngine(db, rooms, logger)
}

func provideVerifier(cfg *config.Config) *auth.Verifier {
	return auth.NewVerifier(cfg.AuthSecret)
}

func provideLiveHandler(cfg *config.Config, db *store.DB, rooms *room.Registry, tracker *presence.Tracker, verifier *auth.Verifier, logger *zap.Logger) *ws.Handler {
	return ws.NewHandler(db, rooms, tracker, verifier, cfg.AllowedOrigins, logger)
}

func provideAPI(cfg *config.Config, db *store.DB, engine *delivery.Engine, tracker *presence.Tracker, verifier *auth.Verifier, live *ws.Handler, logger *zap.Logger) http.Handler {
	api := httpapi.NewServer(db, engine, tracker, verifier, live, cfg.WebhookSecret, cfg.PageSize, cfg.AllowedOrigins, logger)
	return api.Router()
}

func provideServer(cfg *config.Config, handler http.Handler, logger *zap.Logger) (*Server, error) {
	return NewServer(cfg.ListenAddr, handler, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, live *ws.Handler, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			// Shutdown above does not reach hijacked WebSocket
			// connections; drain them explicitly.
			live.Shutdown()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
