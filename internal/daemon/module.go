package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"chatsyncd/internal/api"
	"chatsyncd/internal/bus"
	"chatsyncd/internal/channel"
	"chatsyncd/internal/config"
	"chatsyncd/internal/lock"
	"chatsyncd/internal/logging"
	"chatsyncd/internal/merge"
	"chatsyncd/internal/netmon"
	"chatsyncd/internal/orchestrator"
	"chatsyncd/internal/outbox"
	"chatsyncd/internal/session"
	"chatsyncd/internal/store"
	intsync "chatsyncd/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideMergeEngine,
			provideChannelManager,
			provideAPIClient,
			provideReconciler,
			provideSender,
			provideMonitor,
			provideOrchestrator,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
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

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
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

func provideMergeEngine(p Params, db *store.DB, b *bus.Bus, logger *zap.Logger) *merge.Engine {
	return merge.NewEngine(db, b, p.Config.UserID, logger)
}

func provideChannelManager(p Params, b *bus.Bus, logger *zap.Logger) *channel.Manager {
	return channel.NewManager(p.Config.ChannelURL, p.Config.Token, b, logger)
}

func provideAPIClient(p Params) *api.Client {
	return api.NewClient(p.Config.ServerURL, p.Config.Token, nil)
}

func provideReconciler(db *store.DB, client *api.Client, engine *merge.Engine, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, client, engine, logger)
}

func provideSender(db *store.DB, engine *merge.Engine, mgr *channel.Manager, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, engine, mgr, logger)
}

func provideMonitor(p Params, b *bus.Bus, logger *zap.Logger) *netmon.Monitor {
	return netmon.New(p.Config.ServerURL, b, logger)
}

func provideOrchestrator(mgr *channel.Manager, sender *outbox.Sender, rec *intsync.Reconciler, b *bus.Bus, logger *zap.Logger) *orchestrator.Orchestrator {
	return orchestrator.New(mgr, sender, rec, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, mgr *channel.Manager, engine *merge.Engine, sender *outbox.Sender, orch *orchestrator.Orchestrator, mon *netmon.Monitor, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Wire inbound frames to the merge engine.
			handler := channel.NewEventHandler(engine, logger)
			handler.Register(mgr)

			// Orchestrator first: it must see the monitor's initial net event.
			orch.Start(context.Background())
			sender.Start(context.Background())
			mon.Start(context.Background())

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			mon.Stop()
			sender.Stop()
			orch.Stop()
			mgr.Disconnect()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
