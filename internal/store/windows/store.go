//go:build windows

// Package windows implements Pahkat's Windows platform store: registry-based
// status detection and msiexec/Inno/NSIS install/uninstall driving (spec
// §4.7 "Windows backend"), ported from
// original_source/pahkat-client-core/src/package_store/windows.rs.
package windows

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/windows/registry"

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

const uninstallKeyPath = `Software\Microsoft\Windows\CurrentVersion\Uninstall\`

// Store is the Windows PackageStore implementation.
type Store struct {
	shared   *store.SharedRepos
	cfg      *config.Config
	loader   *repoindex.Loader
	downloadMgr *download.Manager
	logger   *slog.Logger
}

// New constructs a Windows Store and performs an initial RefreshRepos.
func New(cfg *config.Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		shared: store.NewSharedRepos(),
		cfg:    cfg,
		loader: repoindex.NewLoader(60*time.Second, logger),
		downloadMgr: download.New(cfg.PackageCacheDir(), int(cfg.MaxConcurrentDownloads()), logger),
		logger: logger,
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

// cachedFilePath resolves the full local path a payload URL downloads to,
// joining download.PackageCachePath's sharded directory with the URL's
// filename segment.
func cachedFilePath(packageCacheDir, rawURL string) (string, error) {
	dir, err := download.PackageCachePath(packageCacheDir, rawURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := filepath.Base(u.Path)
	return filepath.Join(dir, name), nil
}

func copyFile(srcPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("windows store: creating cache dir: %w", err)
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("windows store: opening import source: %w", err)
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("windows store: creating import destination: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return fmt.Errorf("windows store: copying import: %w", err)
	}
	return nil
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
	if match.Target.Payload.Kind != model.PayloadWindowsExecutable {
		return nil, nil, nil, fmt.Errorf("wrong payload type for %s", key.String())
	}
	return match.Target, match.Release, pkg.Concrete, nil
}

// Status implements spec §4.7's Windows status check: compare the
// DisplayVersion value under HKLM\...\Uninstall\<product_code>, probing both
// WOW views, against the resolved release version.
func (s *Store) Status(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	target, release, _, err := s.resolvePayload(key)
	if err != nil {
		return version.NotInstalled, &storeError{op: "status", err: err}
	}
	return s.statusFor(target.Payload.Windows, release.Version)
}

func (s *Store) statusFor(installer *model.WindowsExecutable, candidate version.Version) (version.Result, error) {
	displayVersion, found := readDisplayVersion(installer.ProductCode)
	if !found {
		return version.NotInstalled, nil
	}
	installed := version.Parse(displayVersion)
	return version.CompareInstalled(installed, candidate), nil
}

func readDisplayVersion(productCode string) (string, bool) {
	for _, view := range []uint32{registry.WOW64_64KEY, registry.WOW64_32KEY} {
		k, err := registry.OpenKey(registry.LOCAL_MACHINE, uninstallKeyPath+productCode, registry.QUERY_VALUE|view)
		if err != nil {
			continue
		}
		v, _, err := k.GetStringValue("DisplayVersion")
		k.Close()
		if err == nil {
			return v, true
		}
	}
	return "", false
}

func readQuietUninstallString(productCode string) (string, bool) {
	for _, view := range []uint32{registry.WOW64_64KEY, registry.WOW64_32KEY} {
		k, err := registry.OpenKey(registry.LOCAL_MACHINE, uninstallKeyPath+productCode, registry.QUERY_VALUE|view)
		if err != nil {
			continue
		}
		v, _, err := k.GetStringValue("QuietUninstallString")
		k.Close()
		if err == nil {
			return v, true
		}
	}
	return "", false
}

// installArgs selects command-line arguments per spec §4.7's table: explicit
// args override; else a template keyed by installer kind.
func installArgs(installer *model.WindowsExecutable, path string) []string {
	if installer.Args != "" {
		return tokenize(installer.Args)
	}
	switch installer.InstallerKind {
	case model.InstallerInno:
		return []string{path, "/VERYSILENT", "/SP-", "/SUPPRESSMSGBOXES", "/NORESTART"}
	case model.InstallerMSI:
		return []string{"/i", path, "/qn", "/norestart"}
	case model.InstallerNSIS:
		return []string{path, "/S"}
	default:
		return []string{path}
	}
}

func uninstallArgs(installer *model.WindowsExecutable, quietUninstallString string) []string {
	if installer.UninstallArgs != "" {
		return tokenize(installer.UninstallArgs)
	}
	if quietUninstallString != "" {
		return tokenize(quietUninstallString)
	}
	switch installer.InstallerKind {
	case model.InstallerInno:
		return []string{"/VERYSILENT", "/SP-", "/SUPPRESSMSGBOXES", "/NORESTART"}
	case model.InstallerMSI:
		return []string{"/x", installer.ProductCode, "/qn", "/norestart"}
	case model.InstallerNSIS:
		return []string{"/S"}
	default:
		return nil
	}
}

// tokenize implements Win32 command-line tokenization rules well enough for
// the argument strings Pahkat itself constructs and the QuietUninstallString
// values real installers publish: whitespace-separated, double-quoted
// segments kept intact.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// Install implements spec §4.7's Windows install: resolve the payload,
// verify the cached file exists, run the installer with templated or
// explicit args, and re-check status.
func (s *Store) Install(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	target, release, _, err := s.resolvePayload(key)
	if err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}
	installer := target.Payload.Windows

	path, err := cachedFilePath(s.cfg.PackageCacheDir(), target.Payload.URL)
	if err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return version.NotInstalled, &storeError{op: "install", err: fmt.Errorf("package not in cache: %s", path)}
	}

	prog, args := installerProgram(installer, path)
	cmd := exec.Command(prog, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		s.logger.Error("windows installer failed", slog.String("key", key.String()), slog.String("output", string(output)))
		return version.NotInstalled, &storeError{op: "install", err: fmt.Errorf("installer failed: %w", err)}
	}

	return s.statusFor(installer, release.Version)
}

func installerProgram(installer *model.WindowsExecutable, path string) (string, []string) {
	if installer.InstallerKind == model.InstallerMSI {
		return "msiexec", installArgs(installer, path)
	}
	return path, installArgs(installer, path)[1:]
}

// Uninstall implements spec §4.7's Windows uninstall: read
// QuietUninstallString, apply explicit or templated args, run, and re-check
// status.
func (s *Store) Uninstall(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	target, release, _, err := s.resolvePayload(key)
	if err != nil {
		return version.NotInstalled, &storeError{op: "uninstall", err: err}
	}
	installer := target.Payload.Windows

	quiet, _ := readQuietUninstallString(installer.ProductCode)
	args := uninstallArgs(installer, quiet)

	var prog string
	if installer.InstallerKind == model.InstallerMSI {
		prog = "msiexec"
	} else if len(args) > 0 {
		prog, args = args[0], args[1:]
	}

	cmd := exec.Command(prog, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		s.logger.Error("windows uninstaller failed", slog.String("key", key.String()), slog.String("output", string(output)))
		return version.NotInstalled, &storeError{op: "uninstall", err: fmt.Errorf("installer failed: %w", err)}
	}

	return s.statusFor(installer, release.Version)
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
	return dest, copyFile(localInstallerPath, dest)
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

func (e *storeError) Error() string { return fmt.Sprintf("windows store: %s: %v", e.op, e.err) }
func (e *storeError) Unwrap() error { return e.err }
