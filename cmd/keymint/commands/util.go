package commands

import (
	"fmt"

	"github.com/keymint/keymint/internal/logger"
	"github.com/keymint/keymint/pkg/config"
	"github.com/keymint/keymint/pkg/journal"
	"github.com/keymint/keymint/pkg/kerberos"
	"github.com/keymint/keymint/pkg/keycache"
	"github.com/keymint/keymint/pkg/materialize"
	"github.com/keymint/keymint/pkg/registry"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// openRegistry opens the principal registry store from configuration.
func openRegistry(cfg *config.Config) (registry.Store, error) {
	store, err := registry.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open the principal registry: %w", err)
	}
	return store, nil
}

// openJournal opens the run journal from configuration.
func openJournal(cfg *config.Config) (*journal.Journal, error) {
	jnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open the run journal: %w", err)
	}
	return jnl, nil
}

// engineConfig assembles the materialization engine wiring from
// configuration and the opened registry.
func engineConfig(cfg *config.Config, store registry.Store, metrics *materialize.Metrics) (materialize.Config, error) {
	provider, err := kerberos.NewLocalProvider(&cfg.Kerberos)
	if err != nil {
		return materialize.Config{}, fmt.Errorf("failed to configure keytab generation: %w", err)
	}

	return materialize.Config{
		DataDir:  cfg.Engine.DataDir,
		Registry: store,
		Cache:    keycache.NewWithDir(cfg.Engine.CacheDir),
		Provider: provider,
		Metrics:  metrics,
	}, nil
}
