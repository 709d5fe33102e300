// migrate applies, rolls back or inspects the database schema.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/fintrellis/ledgercore/internal/config"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	source := flag.String("source", "file://migrations", "migration source URL")
	command := flag.String("command", "up", "up | down | version | force")
	steps := flag.Int("steps", 0, "number of steps for down (0 = all)")
	forceVersion := flag.Int("force", -1, "version for the force command")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Name, cfg.Database.SSLMode)

	m, err := migrate.New(*source, dsn)
	if err != nil {
		slog.Error("open migrator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer m.Close()

	switch *command {
	case "up":
		err = m.Up()
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			err = verr
			break
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
	case "force":
		if *forceVersion < 0 {
			err = errors.New("force requires -force=<version>")
			break
		}
		err = m.Force(*forceVersion)
	default:
		err = fmt.Errorf("unknown command %q", *command)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		slog.Error("migration failed", slog.String("command", *command), slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("migration complete", slog.String("command", *command))
}
