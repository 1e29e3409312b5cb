package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tokopaya-be/internal/config"
	"tokopaya-be/internal/db"
	"tokopaya-be/internal/logger"

	"go.uber.org/zap"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

type migration struct {
	name string
	up   string
	down string
}

func main() {
	dir := flag.String("dir", "migrations", "migrations directory")
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	database := db.InitDB(cfg)
	defer database.Close()

	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		log.Fatal("failed to ensure migrations table", zap.Error(err))
	}

	migrations, err := loadMigrations(*dir)
	if err != nil {
		log.Fatal("failed to load migrations", zap.Error(err))
	}

	if *down {
		if err := rollbackLast(database, migrations); err != nil {
			log.Fatal("rollback failed", zap.Error(err))
		}
		return
	}

	for _, m := range migrations {
		applied, err := isApplied(database, m.name)
		if err != nil {
			log.Fatal("failed to check migration state", zap.Error(err))
		}
		if applied {
			continue
		}
		if err := apply(database, m.name, m.up, true); err != nil {
			log.Fatal("migration failed", zap.String("migration", m.name), zap.Error(err))
		}
		log.Info("applied migration", zap.String("migration", m.name))
	}
}

func loadMigrations(dir string) ([]migration, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var migrations []migration
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		up, down, err := split(string(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		migrations = append(migrations, migration{
			name: filepath.Base(path),
			up:   up,
			down: down,
		})
	}
	return migrations, nil
}

func split(raw string) (up, down string, err error) {
	upIdx := strings.Index(raw, upMarker)
	if upIdx < 0 {
		return "", "", fmt.Errorf("missing %q marker", upMarker)
	}
	rest := raw[upIdx+len(upMarker):]

	if downIdx := strings.Index(rest, downMarker); downIdx >= 0 {
		return strings.TrimSpace(rest[:downIdx]), strings.TrimSpace(rest[downIdx+len(downMarker):]), nil
	}
	return strings.TrimSpace(rest), "", nil
}

func isApplied(database *sql.DB, name string) (bool, error) {
	var exists bool
	err := database.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func apply(database *sql.DB, name, stmt string, up bool) error {
	tx, err := database.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return err
	}
	if up {
		_, err = tx.Exec(`INSERT INTO schema_migrations (name) VALUES ($1)`, name)
	} else {
		_, err = tx.Exec(`DELETE FROM schema_migrations WHERE name = $1`, name)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func rollbackLast(database *sql.DB, migrations []migration) error {
	var last string
	err := database.QueryRow(`SELECT name FROM schema_migrations ORDER BY applied_at DESC, name DESC LIMIT 1`).Scan(&last)
	if err == sql.ErrNoRows {
		logger.L().Info("nothing to roll back")
		return nil
	}
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.name != last {
			continue
		}
		if m.down == "" {
			return fmt.Errorf("migration %s has no down section", last)
		}
		if err := apply(database, m.name, m.down, false); err != nil {
			return err
		}
		logger.L().Info("rolled back migration", zap.String("migration", m.name))
		return nil
	}
	return fmt.Errorf("applied migration %s not found on disk", last)
}
