// Command migrate applies or rolls back the embedded schema migrations.
//
//	migrate up|down|status
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/logging"
	"example.com/healthsync/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New("healthsync-migrate", cfg.LogLevel)

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|status")
		os.Exit(2)
	}
	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL is required")
		os.Exit(1)
	}

	m, err := postgres.NewMigrator(cfg.PostgresURL)
	if err != nil {
		logger.Error("init migrator failed", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	switch cmd := os.Args[1]; cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "status":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return
		}
		if verr != nil {
			logger.Error("read version failed", "error", verr)
			os.Exit(1)
		}
		logger.Info("schema version", "version", version, "dirty", dirty)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("schema already up to date")
		return
	}
	if err != nil {
		logger.Error("migration failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
	logger.Info("migration complete", "command", os.Args[1])
}
