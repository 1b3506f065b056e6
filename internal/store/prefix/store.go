package prefix

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"

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

// Store is the prefix/tarball PackageStore implementation. Unlike the
// Windows/macOS backends it owns its own Config scoped to the prefix
// directory rather than sharing the caller's (original_source: "Config is
// loaded from the prefix path itself").
type Store struct {
	prefix      string
	db          *db
	shared      *store.SharedRepos
	cfg         *config.Config
	loader      *repoindex.Loader
	downloadMgr *download.Manager
	logger      *slog.Logger
}

// Open opens or creates a prefix store rooted at prefixPath.
func Open(ctx context.Context, prefixPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPrefix, err := filepath.Abs(prefixPath)
	if err != nil {
		return nil, fmt.Errorf("prefix store: resolving prefix path: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(absPrefix, "pkg"), 0o755); err != nil {
		return nil, fmt.Errorf("prefix store: creating prefix directory: %w", err)
	}

	cfg, err := config.Load(filepath.Join(absPrefix, "config.toml"), config.ReadWrite, logger)
	if err != nil {
		return nil, fmt.Errorf("prefix store: loading config: %w", err)
	}

	database, err := openDB(filepath.Join(absPrefix, "packages.sqlite"))
	if err != nil {
		return nil, err
	}

	s := &Store{
		prefix:      absPrefix,
		db:          database,
		shared:      store.NewSharedRepos(),
		cfg:         cfg,
		loader:      repoindex.NewLoader(60*time.Second, logger),
		downloadMgr: download.New(cfg.PackageCacheDir(), int(cfg.MaxConcurrentDownloads()), logger),
		logger:      logger,
	}
	s.RefreshRepos()
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) packageDir(id string) string {
	return filepath.Join(s.prefix, "pkg", id)
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
	if match.Target.Payload.Kind != model.PayloadTarballPackage {
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

// Install implements spec §4.7's prefix install: xz+tar-extract the cached
// payload into <prefix>/pkg/<id>/, recording every unpacked file and the
// target's dependency ids in the package database, keyed by the package's
// query-param-stripped URL (original_source: "PackageDbRecord { url:
// key.without_query_params(), ... }").
func (s *Store) Install(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	target, release, descriptor, err := s.resolvePayload(key)
	if err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}

	pkgPath, err := cachedFilePath(s.cfg.PackageCacheDir(), target.Payload.URL)
	if err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}
	if _, statErr := os.Stat(pkgPath); statErr != nil {
		return version.NotInstalled, &storeError{op: "install", err: fmt.Errorf("package not in cache: %s", pkgPath)}
	}

	installDir := s.packageDir(descriptor.ID)
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}

	files, err := extractTarXZ(pkgPath, installDir)
	if err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}

	deps := make([]string, 0, len(target.Dependencies))
	for depID := range target.Dependencies {
		deps = append(deps, depID)
	}

	rec := &record{
		url:          key.WithoutQueryParams().String(),
		version:      release.Version.String(),
		files:        files,
		dependencies: deps,
	}
	if err := s.db.save(context.Background(), rec); err != nil {
		return version.NotInstalled, &storeError{op: "install", err: err}
	}

	return version.UpToDate, nil
}

// extractTarXZ decompresses an xz-compressed tar archive into installDir,
// returning the list of entry paths written, grounded on the teacher's
// pkg/dpkg/manager.go extractDataTar switch over tar.TypeDir/Symlink/Reg
// (Pahkat's TarballPackage is always xz, so the gzip/zstd branches aren't
// carried over).
func extractTarXZ(archivePath, installDir string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("prefix store: opening archive: %w", err)
	}
	defer f.Close()

	xzReader, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("prefix store: creating xz reader: %w", err)
	}
	tarReader := tar.NewReader(xzReader)

	var files []string
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("prefix store: reading tar entry: %w", err)
		}

		cleanPath := filepath.Clean(header.Name)
		if cleanPath == "." || cleanPath == "" {
			continue
		}
		targetPath := filepath.Join(installDir, cleanPath)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return nil, fmt.Errorf("prefix store: creating directory %s: %w", targetPath, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return nil, fmt.Errorf("prefix store: creating parent directory: %w", err)
			}
			os.Remove(targetPath)
			if err := os.Symlink(header.Linkname, targetPath); err != nil {
				return nil, fmt.Errorf("prefix store: creating symlink %s: %w", targetPath, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return nil, fmt.Errorf("prefix store: creating parent directory: %w", err)
			}
			out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return nil, fmt.Errorf("prefix store: creating file %s: %w", targetPath, err)
			}
			_, err = io.Copy(out, tarReader)
			out.Close()
			if err != nil {
				return nil, fmt.Errorf("prefix store: writing file %s: %w", targetPath, err)
			}
		default:
			continue
		}
		files = append(files, cleanPath)
	}
	return files, nil
}

// Uninstall implements spec §4.7's prefix uninstall: remove tracked files
// first, then tracked directories only if left empty (two-pass, deepest
// effect achieved by directories-after-files rather than depth sorting,
// matching original_source's two-loop structure).
func (s *Store) Uninstall(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	withoutQuery := key.WithoutQueryParams().String()
	rec, err := s.db.findByURL(context.Background(), withoutQuery)
	if err != nil {
		return version.NotInstalled, &storeError{op: "uninstall", err: err}
	}
	if rec == nil {
		return version.NotInstalled, &storeError{op: "uninstall", err: fmt.Errorf("package not installed: %s", key.ID)}
	}

	installDir := s.packageDir(key.ID)

	for _, f := range rec.files {
		p, err := filepath.Abs(filepath.Join(installDir, f))
		if err != nil {
			continue
		}
		info, statErr := os.Stat(p)
		if statErr != nil || info.IsDir() {
			continue
		}
		os.Remove(p)
	}
	for _, f := range rec.files {
		p, err := filepath.Abs(filepath.Join(installDir, f))
		if err != nil {
			continue
		}
		info, statErr := os.Stat(p)
		if statErr != nil || !info.IsDir() {
			continue
		}
		entries, err := os.ReadDir(p)
		if err == nil && len(entries) == 0 {
			os.Remove(p)
		}
	}

	if err := s.db.delete(context.Background(), rec); err != nil {
		return version.NotInstalled, &storeError{op: "uninstall", err: err}
	}
	return version.NotInstalled, nil
}

// Status implements spec §4.7's prefix status check: purely a database
// lookup (no external process), comparing the recorded installed version
// against the resolved release.
func (s *Store) Status(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	_, release, _, err := s.resolvePayload(key)
	if err != nil {
		return version.NotInstalled, &storeError{op: "status", err: err}
	}

	rec, err := s.db.findByURL(context.Background(), key.WithoutQueryParams().String())
	if err != nil {
		return version.NotInstalled, &storeError{op: "status", err: err}
	}
	if rec == nil {
		return version.NotInstalled, nil
	}

	installed := version.Parse(rec.version)
	return version.CompareInstalled(installed, release.Version), nil
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
		return "", fmt.Errorf("prefix store: creating cache dir: %w", err)
	}
	src, err := os.Open(localInstallerPath)
	if err != nil {
		return "", fmt.Errorf("prefix store: opening import source: %w", err)
	}
	defer src.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("prefix store: creating import destination: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("prefix store: copying import: %w", err)
	}
	return dest, nil
}

// InstalledPackages returns every package url and its installed version
// currently tracked by the prefix database, independent of any loaded repo
// (spec §4.7: the prefix backend can enumerate its own install state without
// network access, unlike the Windows/macOS registries this module drives).
func (s *Store) InstalledPackages(ctx context.Context) (map[string]string, error) {
	return s.db.allInstalledURLs(ctx)
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

func (e *storeError) Error() string { return fmt.Sprintf("prefix store: %s: %v", e.op, e.err) }
func (e *storeError) Unwrap() error { return e.err }
