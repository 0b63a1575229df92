package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"labjobs/common/cache"
	"labjobs/common/cache/redis"
	"labjobs/common/database"
	"labjobs/common/database/schema"
	"labjobs/common/database/schema/migrations"
	"labjobs/common/telemetry"
	"labjobs/internal/api"
	"labjobs/internal/config"
	"labjobs/internal/messaging"
	"labjobs/internal/query"
	"labjobs/internal/reconcile"
	"labjobs/internal/scheduler"
	"labjobs/internal/sources"
	"labjobs/internal/store"
	"labjobs/internal/trends"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const serviceName = "labjobs"

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newDatabase opens the store and applies pending migrations. The service
// cannot run without it, so any failure aborts startup.
func newDatabase(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*database.Database, error) {
	ctx := context.Background()
	db, err := database.New(ctx, database.Options{Path: cfg.DatabasePath}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := schema.NewMigrator(db.Conn(), logger).Up(ctx, migrations.All())
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database ready", zap.Int("migrations_applied", applied))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

func newStore(db *database.Database, logger *zap.Logger) *store.Store {
	return store.New(db.Conn(), logger)
}

// newCache returns nil when REDIS_ADDR is unset; adapters then always fetch.
func newCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, payload cache disabled")
		return nil
	}

	c := redis.New(cache.Options{
		DefaultTTL:    cfg.CacheTTL,
		RedisURL:      cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := c.Ping(ctx); err != nil {
				logger.Warn("redis unreachable, payload cache will miss", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return c.Close()
		},
	})
	return c
}

func newNATSConnection(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	conn, err := messaging.Connect(logger, cfg)
	if err != nil || conn == nil {
		return conn, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func newEngine(st *store.Store, registry *sources.Registry, publisher messaging.Publisher, logger *zap.Logger, cfg *config.Config) *reconcile.Engine {
	return reconcile.NewEngine(st, registry, publisher, logger, cfg)
}

func newCalculator(st *store.Store) *trends.Calculator {
	return trends.NewCalculator(st)
}

func newQueryService(st *store.Store, calc *trends.Calculator) *query.Service {
	return query.NewService(st, calc)
}

func newServer(cfg *config.Config, queries *query.Service, engine *reconcile.Engine, logger *zap.Logger) *api.Server {
	return api.NewServer(cfg, queries, engine, logger)
}

func newScheduler(engine *reconcile.Engine, logger *zap.Logger, cfg *config.Config) *scheduler.JobScheduler {
	return scheduler.NewJobScheduler(engine, logger, cfg)
}

func registerTracing(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) {
	if cfg.OTELCollectorURL == "" {
		return
	}
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = telemetry.InitTracer(ctx, serviceName, cfg.OTELCollectorURL)
			if err != nil {
				return err
			}
			logger.Info("tracing enabled", zap.String("collector", cfg.OTELCollectorURL))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func registerSources(lc fx.Lifecycle, st *store.Store, registry *sources.Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return st.EnsureSources(ctx, registry.Sources())
		},
	})
}

func registerSyncRequests(lc fx.Lifecycle, conn *nats.Conn, engine *reconcile.Engine, logger *zap.Logger) {
	handler := messaging.NewSyncRequestHandler(conn, engine, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return handler.Subscribe()
		},
		OnStop: func(ctx context.Context) error {
			return handler.Close()
		},
	})
}

func registerServer(lc fx.Lifecycle, server *api.Server) {
	lc.Append(fx.Hook{
		OnStart: server.Start,
		OnStop:  server.Stop,
	})
}

func registerScheduler(lc fx.Lifecycle, s *scheduler.JobScheduler) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		fx.Provide(
			config.LoadConfig,
			newLogger,
			newDatabase,
			newStore,
			newCache,
			sources.NewRegistryFromConfig,
			newNATSConnection,
			messaging.NewPublisher,
			newEngine,
			newCalculator,
			newQueryService,
			newServer,
			newScheduler,
		),
		fx.Invoke(
			registerTracing,
			registerSources,
			registerSyncRequests,
			registerServer,
			registerScheduler,
		),
	)

	startCtx := context.Background()
	if err := app.Start(startCtx); err != nil {
		log.Fatal(err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Fatal(err)
	}
}
