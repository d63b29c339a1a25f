package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const seedFile = "migrations/seed.sql"

// Open connects to postgres and pings it.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	logger.L().Info("connecting to database",
		logger.String("db_host", cfg.Database.Host),
		logger.String("db_name", cfg.Database.Name),
	)

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	logger.L().Info("connected to database")
	return db, nil
}

// Migrate applies every embedded schema file in name order. Files are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		if name == seedFile {
			continue
		}
		if err := execFile(ctx, db, name); err != nil {
			return err
		}
		logger.L().Info("migration applied", logger.String("file", name))
	}
	return nil
}

// Seed loads demo rows.
func Seed(ctx context.Context, db *sql.DB) error {
	return execFile(ctx, db, seedFile)
}

func execFile(ctx context.Context, db *sql.DB, name string) error {
	content, err := migrationsFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil
	}
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("exec %s: %w", name, err)
	}
	return nil
}
