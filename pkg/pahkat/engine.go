// Package pahkat is the top-level facade wiring config, repo loading,
// resolution, downloads, platform stores, and transactions into a single
// entry point, grounded on the teacher's upkg.go Manager facade: construct
// by platform, re-export subpackage types under one import.
package pahkat

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/divvun/pahkat/internal/config"
	"github.com/divvun/pahkat/internal/download"
	"github.com/divvun/pahkat/internal/store"
	"github.com/divvun/pahkat/internal/store/prefix"
	"github.com/divvun/pahkat/internal/transaction"
	"github.com/divvun/pahkat/pkg/event"
	"github.com/divvun/pahkat/pkg/model"
	"github.com/divvun/pahkat/pkg/pkgkey"
	"github.com/divvun/pahkat/pkg/version"
)

// Re-exported subpackage types, so a consumer only imports pkg/pahkat for
// the common path (teacher upkg.go's re-export block).
type (
	Scope         = store.Scope
	StatusResult  = store.StatusResult
	PackageAction = transaction.PackageAction
	ActionType    = transaction.ActionType
	Event         = event.Event
	EventKind     = event.Kind
	Sink          = event.Sink
	Package       = model.Package
	RepoRecord    = model.RepoRecord
	PackageKey    = pkgkey.Key
	VersionResult = version.Result
	ProgressFunc  = download.ProgressFunc
)

const (
	ScopeSystem = store.ScopeSystem
	ScopeUser   = store.ScopeUser

	ActionInstall   = transaction.ActionInstall
	ActionUninstall = transaction.ActionUninstall
)

// Engine is the universal Pahkat client: one platform PackageStore plus the
// config it was constructed from.
type Engine struct {
	store  store.PackageStore
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs an Engine using the platform-native store for the current
// GOOS (Windows registry/msiexec, macOS pkgutil/installer; everywhere else
// falls back to a prefix store rooted under the config's cache directory,
// since original_source's package_store module itself only ever shipped
// windows/macos/prefix — there never was a native Linux distro backend).
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := newPlatformStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{store: s, cfg: cfg, logger: logger}, nil
}

// OpenPrefix constructs an Engine explicitly backed by the prefix/tarball
// store rooted at prefixPath, regardless of host platform (spec §4.7: the
// prefix backend is a portable install-directory mode selectable on any
// OS, not only a Linux default).
func OpenPrefix(ctx context.Context, prefixPath string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := prefix.Open(ctx, prefixPath, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{store: s, logger: logger}, nil
}

func defaultPrefixPath(cfg *config.Config) string {
	return filepath.Join(cfg.CacheDir().ToFilePath(), "prefix")
}

// Store exposes the underlying PackageStore for callers that need the raw
// capability interface (e.g. to build a Transaction directly).
func (e *Engine) Store() store.PackageStore { return e.store }

func (e *Engine) Status(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	return e.store.Status(key, scope)
}

func (e *Engine) Install(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	return e.store.Install(key, scope)
}

func (e *Engine) Uninstall(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	return e.store.Uninstall(key, scope)
}

func (e *Engine) Download(ctx context.Context, key pkgkey.Key, progress download.ProgressFunc) (string, error) {
	return e.store.Download(ctx, key, progress)
}

func (e *Engine) Import(key pkgkey.Key, localInstallerPath string) (string, error) {
	return e.store.Import(key, localInstallerPath)
}

func (e *Engine) FindPackageByKey(key pkgkey.Key) (*model.Package, bool) {
	return e.store.FindPackageByKey(key)
}

func (e *Engine) FindPackageByID(id string) (pkgkey.Key, *model.Package, bool) {
	return e.store.FindPackageByID(id)
}

func (e *Engine) AllStatuses(repoURL model.RepoURL, scope store.Scope) map[string]store.StatusResult {
	return e.store.AllStatuses(repoURL, scope)
}

func (e *Engine) RefreshRepos() map[model.RepoURL]error {
	return e.store.RefreshRepos()
}

// ConfiguredRepos lists the repositories named in config (empty for an
// Engine opened via OpenPrefix, which has no config.Repos of its own).
func (e *Engine) ConfiguredRepos() []model.RepoRecord {
	if e.cfg == nil {
		return nil
	}
	return e.cfg.Repos()
}

// installedLister is implemented only by the prefix store, which can
// enumerate its own install state without consulting a loaded repo.
type installedLister interface {
	InstalledPackages(ctx context.Context) (map[string]string, error)
}

// InstalledPackages lists every package url and installed version the
// engine's store can enumerate directly; it returns (nil, false) for the
// Windows/macOS backends, which have no such enumeration and must be asked
// about one package id at a time via Status.
func (e *Engine) InstalledPackages(ctx context.Context) (map[string]string, bool, error) {
	lister, ok := e.store.(installedLister)
	if !ok {
		return nil, false, nil
	}
	installed, err := lister.InstalledPackages(ctx)
	return installed, true, err
}

// PlanTransaction expands and filters actions into a runnable Transaction
// (spec §4.8 "plan").
func (e *Engine) PlanTransaction(actions []transaction.PackageAction) (*transaction.Transaction, error) {
	return transaction.New(e.store, actions, e.logger)
}

// RunTransaction plans and immediately processes a transaction, forwarding
// every event to sink.
func (e *Engine) RunTransaction(actions []transaction.PackageAction, sink event.Sink) error {
	tx, err := e.PlanTransaction(actions)
	if err != nil {
		return fmt.Errorf("pahkat: planning transaction: %w", err)
	}
	return tx.Process(sink)
}
