//go:build !windows && !darwin

package pahkat

import (
	"context"
	"log/slog"

	"github.com/divvun/pahkat/internal/config"
	"github.com/divvun/pahkat/internal/store"
	"github.com/divvun/pahkat/internal/store/prefix"
)

// newPlatformStore falls back to the prefix store on every GOOS without a
// native backend in this module (original_source's package_store only ever
// shipped windows/macos/prefix — there is no native Linux distro driver).
func newPlatformStore(cfg *config.Config, logger *slog.Logger) (store.PackageStore, error) {
	return prefix.Open(context.Background(), defaultPrefixPath(cfg), logger)
}
