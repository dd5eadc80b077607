package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/me/workprep/internal/catalog"
	"github.com/me/workprep/internal/config"
	"github.com/me/workprep/internal/store"
	"github.com/me/workprep/internal/workitem"
)

func loadCatalog() (*catalog.Catalog, error) {
	if err := requireFlag("genomes", flagGenomes); err != nil {
		return nil, err
	}
	cat, err := catalog.LoadFile(flagGenomes)
	if err != nil {
		return nil, err
	}
	logger.Debug("catalog loaded", "path", flagGenomes, "builds", cat.Builds())
	return cat, nil
}

func loadSystem() (config.SystemConfig, workitem.System, error) {
	if err := requireFlag("system", flagSystem); err != nil {
		return config.SystemConfig{}, workitem.System{}, err
	}
	cfg, err := config.LoadSystem(flagSystem)
	if err != nil {
		return config.SystemConfig{}, workitem.System{}, err
	}
	sys, err := workitem.NewSystem(cfg)
	if err != nil {
		return config.SystemConfig{}, workitem.System{}, err
	}
	logger.Debug("system config loaded", "path", cfg.Path, "tools", len(sys.Resources.Tools))
	return cfg, sys, nil
}

func openLedger(ctx context.Context, path string) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return st, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
