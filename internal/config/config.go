// Package config implements Pahkat's persisted Config document (spec §4.1):
// cache roots, the configured repository list, and download concurrency,
// read from and written to a TOML document on disk. Grounded on
// original_source/pahkat-client-core/src/config/settings.rs for the
// operation set and on the teacher's pkg/registry/registry.go for the TOML
// library choice and file-not-found-creates-default loading pattern.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/divvun/pahkat/internal/repoindex"
	"github.com/divvun/pahkat/pkg/model"
)

// Permission governs whether mutating operations on a Config are allowed.
type Permission int

const (
	ReadOnly Permission = iota
	ReadWrite
)

// repoRecordDoc is the TOML-serializable shape of a model.RepoRecord.
type repoRecordDoc struct {
	URL     string `toml:"url"`
	Channel string `toml:"channel"`
}

// doc is the on-disk TOML document shape.
type doc struct {
	Repos                  []repoRecordDoc   `toml:"repos"`
	CacheDir               Path              `toml:"cache_dir"`
	TmpDir                 Path              `toml:"tmp_dir"`
	MaxConcurrentDownloads uint8             `toml:"max_concurrent_downloads"`
	SkippedPackages        map[string]string `toml:"skipped_packages"`
}

func defaultDoc() doc {
	return doc{
		CacheDir:               DefaultCacheDir(),
		TmpDir:                 DefaultTmpDir(),
		MaxConcurrentDownloads: 0,
		SkippedPackages:        map[string]string{},
	}
}

// Config is Pahkat's in-memory, optionally-writable view of config.toml.
type Config struct {
	mu         sync.RWMutex
	path       string
	data       doc
	permission Permission
	logger     *slog.Logger
}

// ReadOnlyDefault constructs an in-memory Config with default values, backed
// by no file at all — used by callers (tests, CLI dry-runs) that never
// intend to persist.
func ReadOnlyDefault(logger *slog.Logger) *Config {
	return &Config{
		data:       defaultDoc(),
		permission: ReadOnly,
		logger:     orDefaultLogger(logger),
	}
}

// Load reads path's TOML document. If the file is absent and permission is
// ReadWrite, a default document is created and saved; if permission is
// ReadOnly and the file is absent, Load returns an error (spec §4.1 "missing
// file with ReadWrite permission creates defaults").
func Load(path string, permission Permission, logger *slog.Logger) (*Config, error) {
	logger = orDefaultLogger(logger)

	c := &Config{path: path, permission: permission, logger: logger}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var d doc
		if _, err := toml.Decode(string(raw), &d); err != nil {
			return nil, fmt.Errorf("config: decoding %s: %w", path, err)
		}
		if d.SkippedPackages == nil {
			d.SkippedPackages = map[string]string{}
		}
		c.data = d
	case os.IsNotExist(err) && permission == ReadWrite:
		c.data = defaultDoc()
		if err := c.saveLocked(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := c.ensureCacheDirs(); err != nil {
		return nil, err
	}

	return c, nil
}

func orDefaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func (c *Config) ensureCacheDirs() error {
	if c.permission != ReadWrite {
		return nil
	}
	for _, dir := range []string{
		c.packageCacheDirLocked(),
		c.repoCacheDirLocked(),
		c.downloadCacheDirLocked(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: creating cache dir %s: %w", dir, err)
		}
	}
	return nil
}

// saveLocked writes the whole document to disk; no partial-update protocol
// exists (spec §4.1 "Saves are whole-file rewrites").
func (c *Config) saveLocked() error {
	if c.permission == ReadOnly || c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("config: creating parent dir: %w", err)
	}
	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", c.path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c.data); err != nil {
		return fmt.Errorf("config: encoding %s: %w", c.path, err)
	}
	return nil
}

// mutate runs fn under the write lock, persisting afterward, and returns a
// "read_only" config error without running fn if the Config is not writable.
func (c *Config) mutate(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.permission == ReadOnly {
		return &pahkatError{op: "config_mutate", reason: "read_only"}
	}
	fn()
	return c.saveLocked()
}

type pahkatError struct {
	op     string
	reason string
}

func (e *pahkatError) Error() string { return fmt.Sprintf("%s: %s", e.op, e.reason) }

// Repos returns a snapshot of the configured repository records.
func (c *Config) Repos() []model.RepoRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.RepoRecord, len(c.data.Repos))
	for i, r := range c.data.Repos {
		out[i] = model.RepoRecord{URL: model.RepoURL(r.URL), Channel: r.Channel}
	}
	return out
}

// SetRepos replaces the whole repository list.
func (c *Config) SetRepos(repos []model.RepoRecord) error {
	return c.mutate(func() {
		docs := make([]repoRecordDoc, len(repos))
		for i, r := range repos {
			docs[i] = repoRecordDoc{URL: string(r.URL), Channel: r.Channel}
		}
		c.data.Repos = docs
	})
}

// AddRepo appends a repository record if not already present.
func (c *Config) AddRepo(rec model.RepoRecord) error {
	return c.mutate(func() {
		for _, r := range c.data.Repos {
			if r.URL == string(rec.URL) && r.Channel == rec.Channel {
				return
			}
		}
		c.data.Repos = append(c.data.Repos, repoRecordDoc{URL: string(rec.URL), Channel: rec.Channel})
	})
}

// RemoveRepo removes a repository record and best-effort deletes its
// on-disk cache directory (spec §4.1: "io errors are logged, not returned").
func (c *Config) RemoveRepo(rec model.RepoRecord) error {
	var removed bool
	err := c.mutate(func() {
		out := c.data.Repos[:0]
		for _, r := range c.data.Repos {
			if r.URL == string(rec.URL) && r.Channel == rec.Channel {
				removed = true
				continue
			}
			out = append(out, r)
		}
		c.data.Repos = out
	})
	if err != nil {
		return err
	}
	if removed {
		dir := c.RepoCacheDirFor(rec)
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			c.logger.Warn("failed to remove repo cache directory", slog.String("dir", dir), slog.Any("err", rmErr))
		}
	}
	return nil
}

// SetCacheDir updates cache_dir.
func (c *Config) SetCacheDir(p Path) error {
	return c.mutate(func() { c.data.CacheDir = p })
}

// SetTmpDir updates tmp_dir.
func (c *Config) SetTmpDir(p Path) error {
	return c.mutate(func() { c.data.TmpDir = p })
}

// SetMaxConcurrentDownloads updates max_concurrent_downloads.
func (c *Config) SetMaxConcurrentDownloads(n uint8) error {
	return c.mutate(func() { c.data.MaxConcurrentDownloads = n })
}

// MaxConcurrentDownloads returns the configured download concurrency.
func (c *Config) MaxConcurrentDownloads() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.MaxConcurrentDownloads
}

// SkippedPackage returns the pinned version string for a package key, if
// one is set (spec §4.1 "deprecated version-pinning hook").
func (c *Config) SkippedPackage(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data.SkippedPackages[key]
	return v, ok
}

func (c *Config) packageCacheDirLocked() string {
	return c.data.CacheDir.Join("packages").ToFilePath()
}

func (c *Config) repoCacheDirLocked() string {
	return c.data.CacheDir.Join("repos").ToFilePath()
}

func (c *Config) downloadCacheDirLocked() string {
	return c.data.CacheDir.Join("downloads").ToFilePath()
}

// PackageCacheDir returns <cache_dir>/packages.
func (c *Config) PackageCacheDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.packageCacheDirLocked()
}

// RepoCacheDir returns <cache_dir>/repos.
func (c *Config) RepoCacheDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repoCacheDirLocked()
}

// DownloadCacheDir returns <cache_dir>/downloads (spec §6: "intentionally
// unused; reserved" — the download manager's temp dir lives directly under
// cache_dir, not here; see internal/download).
func (c *Config) DownloadCacheDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.downloadCacheDirLocked()
}

// CacheDir returns the raw configured cache root.
func (c *Config) CacheDir() Path {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.CacheDir
}

// RepoCacheDirFor returns <repo_cache_dir>/<hash_id> for one repository
// record (spec §4.2 step 1's hash_id).
func (c *Config) RepoCacheDirFor(rec model.RepoRecord) string {
	return filepath.Join(c.RepoCacheDir(), repoindex.HashID(rec))
}
