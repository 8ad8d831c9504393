package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/matheus3301/chatd/internal/account"
	"github.com/matheus3301/chatd/internal/active"
	"github.com/matheus3301/chatd/internal/api"
	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/config"
	"github.com/matheus3301/chatd/internal/friends"
	"github.com/matheus3301/chatd/internal/live"
	"github.com/matheus3301/chatd/internal/lock"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/metrics"
	"github.com/matheus3301/chatd/internal/outbox"
	"github.com/matheus3301/chatd/internal/projector"
	"github.com/matheus3301/chatd/internal/session"
	"github.com/matheus3301/chatd/internal/status"
	"github.com/matheus3301/chatd/internal/store"
	intsync "github.com/matheus3301/chatd/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = resolve from config.toml and environment
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMetrics,
			provideAuthAPI,
			provideAuth,
			provideBackend,
			provideTracker,
			provideProjector,
			provideEngine,
			provideCheckpoints,
			provideCatchUp,
			provideDirectory,
			provideLive,
			provideSender,
			provideAccount,
			provideSessionService,
			provideChatService,
			provideMessageService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		p.Config.ApplyDefaults()
		return p.Config, nil
	}
	cfg, err := config.Resolve(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    session.LogPath(p.SessionName),
		Session: p.SessionName,
		Level:   cfg.LogLevel,
		Console: os.Stderr,
	})
}

func provideBus(m *metrics.Metrics) *bus.Bus {
	return bus.New(bus.WithDropHook(func(kind string) {
		m.EventDropped(bus.Namespace(kind))
	}))
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore opens the database. Schema setup runs in the start hook; until
// it finishes every store call waits.
func provideStore(p Params, logger *zap.Logger, _ *lock.Lock) (*store.DB, error) {
	return store.Open(session.DBPath(p.SessionName), store.WithLogger(logger.Named("store")))
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func backendOptions(cfg *config.Config) backend.Options {
	return backend.Options{BaseURL: cfg.APIURL, Timeout: cfg.RequestTimeout}
}

func provideAuthAPI(cfg *config.Config) *backend.AuthAPI {
	return backend.NewAuthAPI(backendOptions(cfg))
}

func provideAuth(p Params, a *backend.AuthAPI, b *bus.Bus, logger *zap.Logger) (*auth.Manager, error) {
	return auth.NewManager(session.CredentialsPath(p.SessionName), a, b, logger)
}

func provideBackend(cfg *config.Config, tokens *auth.Manager, logger *zap.Logger) *backend.Client {
	return backend.NewClient(backendOptions(cfg), tokens, logger)
}

func provideTracker(b *bus.Bus) *active.Tracker {
	return active.NewTracker(b)
}

func provideProjector(db *store.DB, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *projector.Projector {
	return projector.New(db, b, m, logger)
}

func provideEngine(db *store.DB, tracker *active.Tracker, proj *projector.Projector, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, tracker, proj, b, m, logger)
}

func provideCheckpoints(db *store.DB) *intsync.Checkpoints {
	return intsync.NewCheckpoints(db)
}

func provideCatchUp(client *backend.Client, engine *intsync.Engine, cp *intsync.Checkpoints, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *intsync.CatchUp {
	return intsync.NewCatchUp(client, engine, cp, b, m, logger)
}

func provideDirectory(client *backend.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *friends.Directory {
	return friends.NewDirectory(client, db, b, logger)
}

func provideLive(cfg *config.Config, tokens *auth.Manager, engine *intsync.Engine, dir *friends.Directory, machine *status.Machine, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *live.Client {
	return live.New(live.Config{
		URL:               cfg.WSURL,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectMin:      cfg.ReconnectMin,
		ReconnectMax:      cfg.ReconnectMax,
	}, tokens, engine, dir, machine, b, m, logger)
}

func provideSender(db *store.DB, client *backend.Client, tracker *active.Tracker, proj *projector.Projector, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, tracker, proj, b, m, logger)
}

func provideAccount(mgr *auth.Manager, authAPI *backend.AuthAPI, client *backend.Client, db *store.DB, tracker *active.Tracker, proj *projector.Projector, cu *intsync.CatchUp, lc *live.Client, dir *friends.Directory, sender *outbox.Sender, b *bus.Bus, logger *zap.Logger) *account.Coordinator {
	return account.New(account.Deps{
		Auth:      mgr,
		DB:        db,
		Tracker:   tracker,
		Projector: proj,
		CatchUp:   cu,
		Live:      lc,
		Directory: dir,
		Sender:    sender,
		Registrar: authAPI,
		Profile:   client,
		Bus:       b,
		Logger:    logger,
	})
}

func provideSessionService(p Params, m *status.Machine, acct *account.Coordinator, db *store.DB, cp *intsync.Checkpoints) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, acct, db, cp)
}

func provideChatService(p Params, acct *account.Coordinator, b *bus.Bus) *api.ChatService {
	return api.NewChatService(acct, b, p.SessionName)
}

func provideMessageService(acct *account.Coordinator) *api.MessageService {
	return api.NewMessageService(acct)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, lk *lock.Lock, db *store.DB, acct *account.Coordinator, m *metrics.Metrics, logger *zap.Logger) {
	var (
		metricsSrv *metrics.Server
		startCtx   context.Context
		cancel     context.CancelFunc
		started    = make(chan struct{})
	)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start gRPC server in background. Calls that touch the store
			// wait until the schema is ready.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if cfg.MetricsAddr != "" {
				metricsSrv = metrics.NewServer(cfg.MetricsAddr, m)
				go func() {
					if err := metricsSrv.Start(); err != nil {
						logger.Error("metrics server error", zap.Error(err))
					}
				}()
				logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			}

			startCtx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(started)
				result, err := db.Init(startCtx)
				if err != nil {
					logger.Error("store init failed", zap.Error(err))
					return
				}
				logger.Info("store ready", zap.Uint("schema_version", result.Version), zap.Bool("migrated", result.Changed))
				if err := acct.Start(startCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("session resume failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-started:
			case <-ctx.Done():
			}
			acct.Stop()
			srv.Stop(ctx)
			if metricsSrv != nil {
				if err := metricsSrv.Stop(ctx); err != nil {
					logger.Warn("error stopping metrics server", zap.Error(err))
				}
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
