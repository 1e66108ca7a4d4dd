package dispatchservice

import (
	"context"
	"fmt"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/memory"
	"ride-dispatch/internal/general/postgres"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/handler"
)

// storage bundles the repositories of the selected backend.
type storage struct {
	uow       ports.UnitOfWork
	rides     ports.RideRepository
	instances ports.SagaInstanceRepository
	history   ports.SagaHistoryRepository
	check     handler.HealthCheck
	close     func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		store := memory.NewStore()
		log.Warn(ctx, "storage_memory", "Using in-memory storage; state is lost on restart", nil)
		return &storage{
			uow:       memory.NewUnitOfWork(store),
			rides:     memory.NewRideRepo(store),
			instances: memory.NewSagaRepo(store),
			history:   memory.NewSagaHistoryRepo(store),
			close:     func() {},
		}, nil

	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &storage{
			uow:       postgres.NewUnitOfWork(pool),
			rides:     postgres.NewRideRepo(),
			instances: postgres.NewSagaRepo(),
			history:   postgres.NewSagaHistoryRepo(),
			check:     func(ctx context.Context) error { return pool.Ping(ctx) },
			close:     pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// Migrate applies the embedded schema and returns.
func Migrate(ctx context.Context, configPath string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Service.Name).WithLevel(logger.ParseLevel(cfg.Service.LogLevel))
	ctx = logger.WithRequestID(ctx, "migrate-001")

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Error(ctx, "migration_failed", "Failed to apply schema", err, nil)
		return err
	}
	log.Info(ctx, "migration_applied", "Schema is up to date", map[string]any{"database": cfg.Database.Name})
	return nil
}
