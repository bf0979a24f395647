package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/arutha/lexhost/bundle"
	"github.com/arutha/lexhost/internal/bridge"
	"github.com/arutha/lexhost/internal/infrastructure/config"
	"github.com/arutha/lexhost/internal/infrastructure/database"
	"github.com/arutha/lexhost/internal/infrastructure/logging"
	"github.com/arutha/lexhost/internal/prefs"
	"github.com/arutha/lexhost/internal/provision"
	"github.com/arutha/lexhost/internal/startup"
	"github.com/arutha/lexhost/migrations"
)

// stateStore is the preference store plus whatever must be closed with it.
type stateStore struct {
	prefs.Store
	db *database.DB
}

// Close releases the state database, if any.
func (s *stateStore) Close() error {
	return s.db.Close()
}

// openStateStore opens and migrates the state database. With ephemeral set
// the marker lives in memory and every launch provisions.
func openStateStore(ctx context.Context, cfg *config.Config, ephemeral bool, log *logging.Logger) (*stateStore, error) {
	if ephemeral {
		log.Warn("using in-memory preference store; databases are provisioned on every launch")
		return &stateStore{Store: prefs.NewMemoryStore()}, nil
	}

	db, err := openStateDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	applied, err := db.Migrate(ctx, migrations.FS())
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	for _, m := range applied {
		log.Info("migration applied", "version", m.Version, "name", m.Name)
	}

	store, err := prefs.NewSQLiteStore(db.DB)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("creating preference store: %w", err)
	}
	log.Info("state database ready", "path", cfg.Storage.StatePath)
	return &stateStore{Store: store, db: db}, nil
}

// openStateDB opens the state database without migrating it.
func openStateDB(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Storage.StatePath,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	return db, nil
}

// openBundle resolves the asset bundle from config.
func openBundle(cfg *config.Config, log *logging.Logger) (fs.FS, error) {
	assets, err := bundle.Open(cfg.Bundle.Path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	source := cfg.Bundle.Path
	if source == "" {
		source = "embedded"
	}
	log.Debug("bundle opened", "source", source)
	return assets, nil
}

// newGate builds the provisioner and the version gate around it.
func newGate(cfg *config.Config, assets fs.FS, store prefs.Store, versionCode int, log *logging.Logger) (*startup.VersionGate, error) {
	p := provision.New(assets, provision.Options{
		Folder:        cfg.Bundle.DatabaseFolder,
		DestDir:       cfg.Storage.DatabaseDir,
		BufferSize:    cfg.Provisioning.BufferSize,
		AtomicReplace: cfg.Provisioning.AtomicReplace,
	})
	p.SetLogger(log.Component("provision"))

	gate, err := startup.NewVersionGate(store, p, versionCode)
	if err != nil {
		return nil, fmt.Errorf("creating version gate: %w", err)
	}
	gate.SetLogger(log.Component("startup"))
	return gate, nil
}

// newBridge builds the query bridge over the provisioned directory.
func newBridge(cfg *config.Config, assets fs.FS, log *logging.Logger) *bridge.Bridge {
	b := bridge.New(bridge.Options{
		DatabaseDir: cfg.Storage.DatabaseDir,
		Assets:      assets,
	})
	b.SetLogger(log.Component("bridge"))
	return b
}

// uiFS returns the bundle's UI folder, or nil when the bundle has none.
func uiFS(cfg *config.Config, assets fs.FS, log *logging.Logger) fs.FS {
	if cfg.Bundle.UIFolder == "" {
		return nil
	}
	if _, err := fs.Stat(assets, cfg.Bundle.UIFolder); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("web UI unavailable", "folder", cfg.Bundle.UIFolder, "error", err)
		}
		return nil
	}
	ui, err := fs.Sub(assets, cfg.Bundle.UIFolder)
	if err != nil {
		log.Warn("web UI unavailable", "folder", cfg.Bundle.UIFolder, "error", err)
		return nil
	}
	return ui
}
