// Package repoindex produces and caches LoadedRepository values for
// configured repositories (spec §4.2). The binary on-disk cache is encoded
// with encoding/gob — see DESIGN.md's "Stdlib justifications" for why: no
// library in the retrieved pack wires FlatBuffers/protobuf/msgpack/cbor
// against real domain data, so the spec's "FlatBuffers-style" binary index
// is implemented with the standard library's own binary object codec
// instead of fabricating a dependency nothing in the pack actually uses.
package repoindex

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/divvun/pahkat/pkg/model"
)

// freshnessWindow is the mtime window within which a cached index is
// trusted without refetching (spec §4.2 step 2).
const freshnessWindow = 5 * time.Minute

// Loader fetches and caches LoadedRepository values, mirroring a-h-depot's
// per-struct *slog.Logger + *http.Client construction
// (npm/download/download.go).
type Loader struct {
	client  *http.Client
	logger  *slog.Logger
}

// NewLoader constructs a Loader with the given HTTP timeout (spec §4.2:
// "configurable timeout, default 60 s").
func NewLoader(timeout time.Duration, logger *slog.Logger) *Loader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{client: &http.Client{Timeout: timeout}, logger: logger}
}

// FromCacheOrURL implements spec §4.2's from_cache_or_url: return the cached
// index if its mtime is within freshnessWindow, else fetch, cache, and
// return the fresh one.
func (l *Loader) FromCacheOrURL(rec model.RepoRecord, cacheDir string) (*model.LoadedRepository, error) {
	hashID := HashID(rec)
	cachePath := filepath.Join(cacheDir, hashID, "cache.bin")

	if info, err := os.Stat(cachePath); err == nil {
		if time.Since(info.ModTime()) < freshnessWindow {
			if repo, err := l.readCache(cachePath); err == nil {
				return repo, nil
			} else {
				l.logger.Warn("repo cache parse failed, refetching", slog.String("url", string(rec.URL)), slog.Any("err", err))
			}
		}
	}

	repo, err := l.fetch(rec)
	if err != nil {
		return nil, err
	}

	if err := l.writeCacheAtomically(cachePath, repo); err != nil {
		l.logger.Warn("failed to persist repo cache", slog.String("path", cachePath), slog.Any("err", err))
	}

	return repo, nil
}

func (l *Loader) readCache(path string) (*model.LoadedRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var repo model.LoadedRepository
	if err := gob.NewDecoder(f).Decode(&repo); err != nil {
		return nil, fmt.Errorf("repoindex: decoding cache: %w", err)
	}
	return &repo, nil
}

func (l *Loader) fetch(rec model.RepoRecord) (*model.LoadedRepository, error) {
	indexURL := string(rec.URL) + "packages/index.bin"
	req, err := http.NewRequest(http.MethodGet, indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("repoindex: building request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("repoindex: fetching %s: %w", indexURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repoindex: %s returned status %d", indexURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("repoindex: reading body: %w", err)
	}

	var repo model.LoadedRepository
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&repo); err != nil {
		return nil, fmt.Errorf("repoindex: decoding %s: %w", indexURL, err)
	}
	repo.Meta.Channel = rec.Channel

	return &repo, nil
}

func (l *Loader) writeCacheAtomically(cachePath string, repo *model.LoadedRepository) error {
	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "cache-*.bin.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(repo); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, cachePath)
}

// RefreshResult is the output of Refresh: every successfully loaded
// repository, keyed by RepoURL, and every per-repo failure, also keyed by
// RepoURL (spec §4.2: "errors are reported per-repo, not fatal").
type RefreshResult struct {
	Loaded map[model.RepoURL]*model.LoadedRepository
	Errors map[model.RepoURL]error
}

// Refresh loads every configured repo record, recursing into each loaded
// repo's LinkedRepositories (cycle-safe: a RepoURL already present in Loaded
// is never re-entered), per spec §4.2's refresh_repos.
func (l *Loader) Refresh(repos []model.RepoRecord, cacheDir string) RefreshResult {
	result := RefreshResult{
		Loaded: make(map[model.RepoURL]*model.LoadedRepository),
		Errors: make(map[model.RepoURL]error),
	}

	queue := make([]model.RepoRecord, len(repos))
	copy(queue, repos)

	for len(queue) > 0 {
		rec := queue[0]
		queue = queue[1:]

		if _, ok := result.Loaded[rec.URL]; ok {
			continue
		}

		repo, err := l.FromCacheOrURL(rec, cacheDir)
		if err != nil {
			result.Errors[rec.URL] = err
			continue
		}

		result.Loaded[rec.URL] = repo

		for _, linked := range repo.Info.LinkedRepositories {
			if _, ok := result.Loaded[linked]; ok {
				continue
			}
			queue = append(queue, model.RepoRecord{URL: linked, Channel: rec.Channel})
		}
	}

	return result
}

// ClearCache removes every repo cache directory under cacheDir.
func ClearCache(cacheDir string) error {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(cacheDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
