//go:build darwin

// Package macos implements Pahkat's macOS platform store: pkgutil-based
// status detection and installer(8)-driven install/uninstall (spec §4.7
// "macOS backend"), ported from
// original_source/pahkat-client-core/src/package_store/macos.rs.
package macos

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"time"

	"github.com/divvun/pahkat/internal/config"
	"github.com/divvun/pahkat/internal/download"
	"github.com/divvun/pahkat/internal/repoindex"
	"github.com/divvun/pahkat/internal/resolve"
	"github.com/divvun/pahkat/internal/store"
	"github.com/divvun/pahkat/pkg/model"
	"github.com/divvun/pahkat/pkg/pkgkey"
	"github.com/divvun/pahkat/pkg/query"
	"github.com/divvun/pahkat/pkg/version"
)

const globalUninstallPath = "/Library/Application Support/Pahkat/uninstall"

// Store is the macOS PackageStore implementation.
type Store struct {
	shared      *store.SharedRepos
	cfg         *config.Config
	loader      *repoindex.Loader
	downloadMgr *download.Manager
	logger      *slog.Logger
}

// New constructs a macOS Store and performs an initial RefreshRepos.
func New(cfg *config.Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		shared:      store.NewSharedRepos(),
		cfg:         cfg,
		loader:      repoindex.NewLoader(60*time.Second, logger),
		downloadMgr: download.New(cfg.PackageCacheDir(), int(cfg.MaxConcurrentDownloads()), logger),
		logger:      logger,
	}
	s.RefreshRepos()
	return s
}

func (s *Store) RefreshRepos() map[model.RepoURL]error {
	result := s.loader.Refresh(s.cfg.Repos(), s.cfg.RepoCacheDir())
	s.shared.Replace(result.Loaded)
	return result.Errors
}

func (s *Store) FindPackageByKey(key pkgkey.Key) (*model.Package, bool) {
	byKey, _ := store.CommonFind(s.shared)
	return byKey(key)
}

func (s *Store) FindPackageByID(id string) (pkgkey.Key, *model.Package, bool) {
	_, byID := store.CommonFind(s.shared)
	return byID(id)
}

func (s *Store) Repos() resolve.Repos {
	return s.shared.Snapshot()
}

func (s *Store) resolvePayload(key pkgkey.Key) (*model.Target, *model.Release, *model.Descriptor, error) {
	pkg, ok := s.FindPackageByKey(key)
	if !ok || pkg.Concrete == nil {
		return nil, nil, nil, fmt.Errorf("no package for %s", key.String())
	}
	match, ok := query.Resolve(query.FromKey(key), pkg.Concrete)
	if !ok {
		return nil, nil, nil, fmt.Errorf("no payload found for %s", key.String())
	}
	if match.Target.Payload.Kind != model.PayloadMacOSPackage {
		return nil, nil, nil, fmt.Errorf("wrong payload type for %s", key.String())
	}
	return match.Target, match.Release, pkg.Concrete, nil
}

func cachedFilePath(packageCacheDir, rawURL string) (string, error) {
	dir, err := download.PackageCachePath(packageCacheDir, rawURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(u.Path)), nil
}

// Status implements spec §4.7's macOS status check: pkgutil --export-plist
// the bundle id (adding --volume $HOME for User scope), diff pkg-version
// against the resolved release.
func (s *Store) Status(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	target, release, _, err := s.resolvePayload(key)
	if err != nil {
		return version.NotInstalled, &storeError{op: "status", err: err}
	}
	return s.statusFor(key, target.Payload.MacOS, release.Version, scope)
}

func (s *Store) statusFor(key pkgkey.Key, pkg *model.MacOSPackage, candidate version.Version, scope store.Scope) (version.Result, error) {
	info, found, err := getPackageInfo(pkg.PkgID, scope)
	if err != nil {
		s.logger.Error("pkgutil failed", slog.String("key", key.String()), slog.Any("err", err))
		return version.NotInstalled, nil
	}
	if !found {
		return version.NotInstalled, nil
	}
	if skipped, ok := s.cfg.SkippedPackage(key.String()); ok && skipped == info.PkgVersion {
		return version.UpToDate, nil
	}
	installed := version.Parse(info.PkgVersion)
	return version.CompareInstalled(installed, candidate), nil
}

func getPackageInfo(pkgID string, scope store.Scope) (*exportPlist, bool, error) {
	args := []string{"--export-plist", pkgID}
	if scope == store.ScopeUser {
		u, err := user.Current()
		if err == nil {
			args = append(args, "--volume", u.HomeDir)
		}
	}

	cmd := exec.Command("pkgutil", args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("macos store: pkgutil: %w", err)
	}

	plist, err := parseExportPlist(output)
	if err != nil {
		return nil, false, err
	}
	return plist, true, nil
}

// Install implements spec §4.7's macOS install: resolve the payload, verify
// the cached file exists, and run installer(8) with -target set by scope.
func (s *Store) Install(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	target, release, _, err := s.resolvePayload(key)
	if err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}
	pkg := target.Payload.MacOS

	pkgPath, err := cachedFilePath(s.cfg.PackageCacheDir(), target.Payload.URL)
	if err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}
	if _, statErr := os.Stat(pkgPath); statErr != nil {
		return version.NotInstalled, &storeError{op: "install", err: fmt.Errorf("package not in cache: %s", pkgPath)}
	}

	if err := installMacOSPackage(pkgPath, scope); err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}

	return s.statusFor(key, pkg, release.Version, scope)
}

func installerTargetArg(scope store.Scope) string {
	if scope == store.ScopeUser {
		return "CurrentUserHomeDirectory"
	}
	return "LocalSystem"
}

func installMacOSPackage(pkgPath string, scope store.Scope) error {
	cmd := exec.Command("installer", "-pkg", pkgPath, "-target", installerTargetArg(scope))
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("macos store: installer failed: %w: %s", err, output)
	}
	return nil
}

// Uninstall implements spec §4.7's macOS uninstall: run the pre-uninstall
// hook script if present, uninstall via pkgutil --forget plus removal of the
// receipt's recorded paths (deepest-first), then the post-uninstall hook.
func (s *Store) Uninstall(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	target, release, _, err := s.resolvePayload(key)
	if err != nil {
		return version.NotInstalled, &storeError{op: "uninstall", err: err}
	}
	pkg := target.Payload.MacOS

	_ = runUninstallScript("pre-uninstall", pkg.PkgID, scope)

	info, found, err := getPackageInfo(pkg.PkgID, scope)
	if err != nil {
		return version.NotInstalled, &storeError{op: "uninstall", err: err}
	}
	if found {
		if err := removeExportedPaths(info); err != nil {
			s.logger.Warn("macos store: removing package files", slog.String("key", key.String()), slog.Any("err", err))
		}
		if err := exec.Command("pkgutil", "--forget", pkg.PkgID).Run(); err != nil {
			s.logger.Warn("macos store: pkgutil --forget failed", slog.String("key", key.String()), slog.Any("err", err))
		}
	}

	_ = runUninstallScript("post-uninstall", pkg.PkgID, scope)

	return s.statusFor(key, pkg, release.Version, scope)
}

// removeExportedPaths removes the files/directories pkgutil's receipt lists,
// deepest path first so directories empty out before their parents are
// attempted.
func removeExportedPaths(info *exportPlist) error {
	base := filepath.Join(info.Volume, info.InstallLocation)
	paths := make([]string, len(info.Paths))
	for i, p := range info.Paths {
		paths[i] = filepath.Join(base, p)
	}
	sortDeepestFirst(paths)

	var firstErr error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && firstErr == nil && !os.IsNotExist(err) {
			firstErr = err
		}
	}
	return firstErr
}

func sortDeepestFirst(paths []string) {
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && depth(paths[j]) > depth(paths[j-1]); j-- {
			paths[j], paths[j-1] = paths[j-1], paths[j]
		}
	}
}

func depth(p string) int {
	n := 0
	for _, r := range p {
		if r == filepath.Separator {
			n++
		}
	}
	return n
}

func runUninstallScript(name, pkgID string, scope store.Scope) error {
	base := globalUninstallPath
	if scope == store.ScopeUser {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, "Library", "Application Support", "Pahkat", "uninstall")
		}
	}
	scriptPath := filepath.Join(base, pkgID, name)

	info, err := os.Stat(scriptPath)
	if err != nil || info.Mode()&0o111 == 0 {
		return nil
	}

	cmd := exec.Command(scriptPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("macos store: %s script failed: %w: %s", name, err, output)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, key pkgkey.Key, progress download.ProgressFunc) (string, error) {
	target, _, _, err := s.resolvePayload(key)
	if err != nil {
		return "", &storeError{op: "download", err: err}
	}
	destDir, err := download.PackageCachePath(s.cfg.PackageCacheDir(), target.Payload.URL)
	if err != nil {
		return "", err
	}
	return s.downloadMgr.Download(ctx, target.Payload.URL, destDir, progress)
}

func (s *Store) Import(key pkgkey.Key, localInstallerPath string) (string, error) {
	target, _, _, err := s.resolvePayload(key)
	if err != nil {
		return "", &storeError{op: "import", err: err}
	}
	dest, err := cachedFilePath(s.cfg.PackageCacheDir(), target.Payload.URL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("macos store: creating cache dir: %w", err)
	}
	src, err := os.Open(localInstallerPath)
	if err != nil {
		return "", fmt.Errorf("macos store: opening import source: %w", err)
	}
	defer src.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("macos store: creating import destination: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("macos store: copying import: %w", err)
	}
	return dest, nil
}

func (s *Store) AllStatuses(repoURL model.RepoURL, scope store.Scope) map[string]store.StatusResult {
	out := make(map[string]store.StatusResult)
	repos := s.shared.Snapshot()
	repo, ok := repos[repoURL]
	if !ok {
		return out
	}
	for id := range repo.Packages {
		key := pkgkey.Key{RepositoryURL: string(repoURL), ID: id}
		st, err := s.Status(key, scope)
		out[id] = store.StatusResult{Status: st, Err: err}
	}
	return out
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string { return fmt.Sprintf("macos store: %s: %v", e.op, e.err) }
func (e *storeError) Unwrap() error { return e.err }
