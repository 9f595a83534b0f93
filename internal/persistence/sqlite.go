package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/repository"
)

// SQLite wraps the embedded database handle.
type SQLite struct {
	DB *sql.DB
}

// NewSQLite opens the database file, creating its directory when needed, and
// bootstraps the schema.
func NewSQLite(ctx context.Context, cfg config.SQLiteConfig, logger *zap.Logger) (*SQLite, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer keeps merge transactions from failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := repository.InitSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	logger.Info("opened sqlite store", zap.String("path", cfg.Path))
	return &SQLite{DB: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() {
	if s != nil && s.DB != nil {
		_ = s.DB.Close()
	}
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("sqlite not configured")
	}
	return s.DB.PingContext(ctx)
}
