package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// runMigrateCommand handles `migrate [up|down|version]`. down rolls back a
// single step.
func runMigrateCommand(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if !strings.EqualFold(cfg.Store.Driver, storeDriverPostgres) {
		return errors.New("migrations require store.driver=postgres")
	}

	action := "up"
	if len(args) > 0 {
		action = strings.ToLower(strings.TrimSpace(args[0]))
	}

	migrator, err := migrate.New(migrationSource(), strings.TrimSpace(cfg.Database.URL))
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer migrator.Close() //nolint:errcheck

	switch action {
	case "up":
		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations failed: %w", err)
		}
		fmt.Println("migrations applied successfully")
	case "down":
		if err := migrator.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("rollback migration failed: %w", err)
		}
		fmt.Println("rolled back one migration")
	case "version":
		version, dirty, err := migrator.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read migration version failed: %w", err)
		}
		fmt.Printf("version %d (dirty=%v)\n", version, dirty)
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return nil
}

func migrationSource() string {
	migrationDir := "/migrations"
	if _, statErr := os.Stat(migrationDir); statErr != nil {
		migrationDir = "./migrations"
	}
	return "file://" + migrationDir
}
