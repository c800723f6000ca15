// Package appid resolves the application identity from .fulmen/app.yaml,
// falling back to the copy embedded at build time.
package appid

import (
	"context"
	_ "embed"

	"github.com/fulmenhq/gofulmen/appidentity"
)

// embeddedYAML mirrors .fulmen/app.yaml so a standalone binary still knows
// its name, env prefix and config directory.
//
//go:embed app.yaml
var embeddedYAML []byte

func init() {
	// Explicit paths (FULMEN_APP_IDENTITY_PATH) stay authoritative.
	_ = appidentity.RegisterEmbeddedIdentityYAML(embeddedYAML)
}

// Get returns the process-wide identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// EnvPrefix returns the configured env prefix, or CONTEXTLENS_ when the
// identity cannot be loaded.
func EnvPrefix(ctx context.Context) string {
	identity, err := Get(ctx)
	if err != nil || identity == nil || identity.EnvPrefix == "" {
		return "CONTEXTLENS_"
	}
	return identity.EnvPrefix
}
