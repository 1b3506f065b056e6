//go:build darwin

package pahkat

import (
	"log/slog"

	"github.com/divvun/pahkat/internal/config"
	"github.com/divvun/pahkat/internal/store"
	macstore "github.com/divvun/pahkat/internal/store/macos"
)

func newPlatformStore(cfg *config.Config, logger *slog.Logger) (store.PackageStore, error) {
	return macstore.New(cfg, logger), nil
}
