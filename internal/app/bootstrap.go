package app

import (
	"context"
	"fmt"
	"time"

	"procbot/internal/catalog"
	"procbot/internal/config"
	"procbot/internal/storage"
	logx "procbot/pkg/logx"
)

// Options locate the configuration sources. Both paths are optional.
type Options struct {
	ConfigPath string
	EnvFile    string
}

// Bootstrap loads the env file, the config file and the environment overlay
// and resolves them into validated settings.
func Bootstrap(opts Options) (*config.ConfigManager, *config.Settings, error) {
	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, nil, err
	}
	env, err := config.ReadEnv()
	if err != nil {
		return nil, nil, err
	}
	cfgm := config.NewConfigManager(opts.ConfigPath, env)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, err
	}
	settings, err := config.Resolve(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfgm, settings, nil
}

func storageConfig(s *config.Settings) storage.Config {
	return storage.Config{
		Driver:      s.StorageDriver,
		Path:        s.StoragePath,
		BusyTimeout: s.BusyTimeout,
	}
}

// seedCatalog fills an empty process table from the catalog file, or the
// built-in defaults when no file is configured.
func seedCatalog(ctx context.Context, s *config.Settings, store storage.Store, log logx.Logger) error {
	procs := catalog.Defaults()
	if s.CatalogFile != "" {
		loaded, err := catalog.Load(s.CatalogFile)
		if err != nil {
			return err
		}
		procs = loaded
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := catalog.Seed(ctx, store, procs)
	if err != nil {
		return fmt.Errorf("seed processes: %w", err)
	}
	if n > 0 {
		log.Info("process catalog seeded", logx.Int("count", n), logx.String("source", catalogSource(s)))
	}
	return nil
}

func catalogSource(s *config.Settings) string {
	if s.CatalogFile != "" {
		return s.CatalogFile
	}
	return "defaults"
}
