package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/repository"
)

// Stores holds the repositories for the configured backend along with the
// handles that need closing and probing.
type Stores struct {
	Backend string
	Tickets repository.TicketRepository
	Users   repository.UserRepository

	postgres *Postgres
	sqlite   *SQLite
}

// OpenStores connects the backend selected by cfg.Store.Backend.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	stores := &Stores{Backend: cfg.Store.Backend}

	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		stores.postgres = pg
		stores.Tickets = repository.NewTicketRepository(pg.Pool)
		stores.Users = repository.NewUserRepository(pg.Pool)
	case config.StoreBackendSQLite:
		sq, err := NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		stores.sqlite = sq
		stores.Tickets = repository.NewSQLiteTicketRepository(sq.DB)
		stores.Users = repository.NewSQLiteUserRepository(sq.DB)
	case config.StoreBackendMemory:
		logger.Warn("using in-memory store; tickets are lost on restart")
		stores.Tickets = repository.NewMemoryTicketRepository()
		stores.Users = repository.NewMemoryUserRepository()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return stores, nil
}

// Ping probes the backing database. The memory backend is always ready.
func (s *Stores) Ping(ctx context.Context) error {
	switch {
	case s.postgres != nil:
		return s.postgres.Ping(ctx)
	case s.sqlite != nil:
		return s.sqlite.Ping(ctx)
	}
	return nil
}

// Close releases database handles.
func (s *Stores) Close() {
	s.postgres.Close()
	s.sqlite.Close()
}
