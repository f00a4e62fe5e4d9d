package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"github.com/alimgiray/personhub/pkg/config"
	"github.com/alimgiray/personhub/pkg/logger"
)

//go:embed migrations
var migrations embed.FS

// Connect opens the Postgres pool, checks it with a ping and applies the schema.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.WithComponent("database").Info("Postgres connected")

	if err := RunPostgresScripts(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// OpenSQLite opens (or creates) the SQLite database used for local runs and applies the schema.
// An in-memory database is pinned to a single connection so every caller sees the same data.
func OpenSQLite(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, err
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithComponent("database").WithField("path", dbPath).Info("SQLite opened")

	if err := RunSQLiteScripts(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// RunPostgresScripts executes the embedded Postgres scripts in file name order
func RunPostgresScripts(ctx context.Context, pool *pgxpool.Pool) error {
	return runScripts("migrations/postgres", func(name, script string) error {
		_, err := pool.Exec(ctx, script)
		return err
	})
}

// RunSQLiteScripts executes the embedded SQLite scripts in file name order
func RunSQLiteScripts(ctx context.Context, db *sql.DB) error {
	return runScripts("migrations/sqlite", func(name, script string) error {
		_, err := db.ExecContext(ctx, script)
		return err
	})
}

func runScripts(dir string, exec func(name, script string) error) error {
	names, err := scriptNames(dir)
	if err != nil {
		return err
	}

	for _, name := range names {
		content, err := migrations.ReadFile(path.Join(dir, name))
		if err != nil {
			return err
		}
		if err := exec(name, string(content)); err != nil {
			return fmt.Errorf("execute %s: %w", name, err)
		}
		logger.WithComponent("database").WithField("script", name).Debugf("Executed SQL script")
	}

	logger.WithComponent("database").Infof("Executed %d SQL scripts", len(names))
	return nil
}

func scriptNames(dir string) ([]string, error) {
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && path.Ext(entry.Name()) == ".sql" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
