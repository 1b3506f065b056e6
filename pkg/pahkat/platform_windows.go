//go:build windows

package pahkat

import (
	"log/slog"

	"github.com/divvun/pahkat/internal/config"
	"github.com/divvun/pahkat/internal/store"
	winstore "github.com/divvun/pahkat/internal/store/windows"
)

func newPlatformStore(cfg *config.Config, logger *slog.Logger) (store.PackageStore, error) {
	return winstore.New(cfg, logger), nil
}
