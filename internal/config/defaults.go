package config

import (
	"os"
	"path/filepath"
)

// Platform-rooted defaults, following the GOOS-aware-default-then-env-override
// shape of the teacher's pkg/backend/types.go DefaultConfig (there keyed off
// UPKG_INSTALL_PATH; here PAHKAT_CACHE_DIR / PAHKAT_CONFIG_PATH).

// DefaultCacheDir returns the platform cache root for Pahkat's on-disk
// caches, honoring PAHKAT_CACHE_DIR if set.
func DefaultCacheDir() Path {
	if v := os.Getenv("PAHKAT_CACHE_DIR"); v != "" {
		return File(v)
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return File(filepath.Join(base, "pahkat"))
}

// DefaultTmpDir returns the platform temp root used for in-flight work.
func DefaultTmpDir() Path {
	return File(filepath.Join(os.TempDir(), "pahkat"))
}

// DefaultConfigPath returns the default location of config.toml, honoring
// PAHKAT_CONFIG_PATH if set.
func DefaultConfigPath() string {
	if v := os.Getenv("PAHKAT_CONFIG_PATH"); v != "" {
		return v
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "pahkat", "config.toml")
}
