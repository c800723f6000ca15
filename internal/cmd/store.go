package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/contextlens/contextlens/internal/config"
	"github.com/contextlens/contextlens/internal/core/store"
)

var errStoreDisabled = errors.New("store is disabled (store.disabled=true)")

// openStore opens and migrates the configured store. It returns
// errStoreDisabled when persistence is switched off.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg == nil {
		loaded, err := config.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if cfg.Store.Disabled {
		return nil, errStoreDisabled
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
