package app

import (
	"context"
	"fmt"

	"procbot/internal/catalog"
	"procbot/internal/config"
	"procbot/internal/export"
	"procbot/internal/storage"
	logx "procbot/pkg/logx"
)

// ImportCatalog appends every process of a catalog file to the configured
// store. Existing processes are kept.
func ImportCatalog(ctx context.Context, opts Options, path string) (int, error) {
	_, settings, err := Bootstrap(opts)
	if err != nil {
		return 0, err
	}
	procs, err := catalog.Load(path)
	if err != nil {
		return 0, err
	}
	log := toolLogger(settings, "import")
	store, err := storage.Open(storageConfig(settings), log)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	n, err := catalog.Import(ctx, store, procs)
	if err != nil {
		return 0, err
	}
	log.Info("processes imported", logx.String("file", path), logx.Int("count", n))
	return n, nil
}

// ExportProcesses writes every stored process to the configured spreadsheet.
// It fails with export.ErrNotConfigured before opening the store when the
// spreadsheet settings are missing.
func ExportProcesses(ctx context.Context, opts Options) (int, error) {
	_, settings, err := Bootstrap(opts)
	if err != nil {
		return 0, err
	}
	if settings.SheetID == "" || settings.CredentialsFile == "" {
		return 0, export.ErrNotConfigured
	}
	log := toolLogger(settings, "export")
	store, err := storage.Open(storageConfig(settings), log)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	procs, err := store.AllProcesses(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	ex, err := export.New(ctx, export.Config{
		SheetID:         settings.SheetID,
		CredentialsFile: settings.CredentialsFile,
		Worksheet:       settings.Worksheet,
	}, log)
	if err != nil {
		return 0, err
	}
	return ex.Export(ctx, procs)
}

func toolLogger(s *config.Settings, comp string) logx.Logger {
	level := "INFO"
	if s.LogLevel != "" {
		level = s.LogLevel
	}
	return logx.NewConsole(level).With(logx.String("comp", comp))
}
