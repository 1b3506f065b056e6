// Package store defines PackageStore, the single capability interface
// implemented three times — once per platform (spec §4.7, §9 "Platform
// stores as a capability") — and the shared-repos map every implementation
// consults through internal/resolve rather than by holding its own copy.
//
// Grounded on the teacher's pkg/core/interface.go PackageManager interface:
// the same one-capability-many-implementations shape, generalized from
// Name/Install/Remove/Search/List/Info/IsAvailable/Update to the operations
// spec §4.7's table actually names.
package store

import (
	"context"
	"sync"

	"github.com/divvun/pahkat/internal/download"
	"github.com/divvun/pahkat/internal/resolve"
	"github.com/divvun/pahkat/pkg/model"
	"github.com/divvun/pahkat/pkg/pkgkey"
	"github.com/divvun/pahkat/pkg/version"
)

// Scope is the install-location granularity: System, or User where the
// platform backend supports it (spec GLOSSARY "Scope (target)"). The prefix
// backend ignores Scope entirely (its scope is always "unit").
type Scope int

const (
	ScopeSystem Scope = iota
	ScopeUser
)

func (s Scope) String() string {
	if s == ScopeUser {
		return "User"
	}
	return "System"
}

// StatusResult pairs a package id with either its resolved status or the
// error resolving it (spec §4.7 all_statuses: "id -> status-or-error").
type StatusResult struct {
	Status version.Result
	Err    error
}

// PackageStore is the single capability every platform backend implements
// (spec §4.7 table).
type PackageStore interface {
	Status(key pkgkey.Key, scope Scope) (version.Result, error)
	Install(key pkgkey.Key, scope Scope) (version.Result, error)
	Uninstall(key pkgkey.Key, scope Scope) (version.Result, error)
	Download(ctx context.Context, key pkgkey.Key, progress download.ProgressFunc) (string, error)
	Import(key pkgkey.Key, localInstallerPath string) (string, error)
	FindPackageByKey(key pkgkey.Key) (*model.Package, bool)
	FindPackageByID(id string) (pkgkey.Key, *model.Package, bool)
	AllStatuses(repoURL model.RepoURL, scope Scope) map[string]StatusResult
	RefreshRepos() map[model.RepoURL]error

	// Repos returns a snapshot of the currently loaded repositories, for
	// callers (the transaction planner) that need to resolve a package's
	// full transitive dependency graph rather than a single payload.
	Repos() resolve.Repos
}

// SharedRepos is the reader-writer-locked loaded-repos map every backend is
// constructed with (spec §5 "Shared resources": "LoadedRepositories — shared
// behind a reader-writer lock; writers only replace the whole map").
type SharedRepos struct {
	mu    sync.RWMutex
	repos resolve.Repos
}

// NewSharedRepos constructs an empty SharedRepos.
func NewSharedRepos() *SharedRepos {
	return &SharedRepos{repos: resolve.Repos{}}
}

// Snapshot returns the current repos map. Since Replace always substitutes
// the whole map rather than mutating it, a snapshot taken once is safe to
// read without holding the lock further (spec §8 "Refresh atomicity").
func (s *SharedRepos) Snapshot() resolve.Repos {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repos
}

// Replace atomically swaps in a new repos map.
func (s *SharedRepos) Replace(repos resolve.Repos) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos = repos
}

// CommonFind implements FindPackageByKey/ByID identically for every backend
// via internal/resolve, so each platform package only needs to supply the
// SharedRepos it was constructed with.
func CommonFind(shared *SharedRepos) (byKey func(pkgkey.Key) (*model.Package, bool), byID func(string) (pkgkey.Key, *model.Package, bool)) {
	byKey = func(key pkgkey.Key) (*model.Package, bool) {
		return resolve.FindPackageByKey(shared.Snapshot(), key)
	}
	byID = func(id string) (pkgkey.Key, *model.Package, bool) {
		return resolve.FindPackageByID(shared.Snapshot(), id)
	}
	return
}
