package cmd

import (
	"fmt"
	"log/slog"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/logging"
	"github.com/tinyagi/tinyagi/internal/statehome"
	"github.com/tinyagi/tinyagi/internal/store"
	"github.com/tinyagi/tinyagi/internal/store/pg"
)

func stateHome() (*statehome.Home, error) {
	return statehome.Resolve()
}

func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func setupLogger() (*slog.Logger, error) {
	home, err := stateHome()
	if err != nil {
		return nil, err
	}
	return logging.Setup(home.Logs(), verbose)
}

// openRepo opens the Postgres-backed repository every CLI command
// composes against (spec §4.A).
func openRepo(cfg *config.Config) (store.Repository, error) {
	cfg.RLock()
	dsn := cfg.Database.PostgresDSN
	cfg.RUnlock()
	if dsn == "" {
		return nil, fmt.Errorf("database.postgres_dsn is not configured (set TINYAGI_POSTGRES_DSN or settings.json)")
	}
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return pg.New(db), nil
}
