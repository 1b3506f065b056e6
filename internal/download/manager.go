// Package download implements Pahkat's resumable, bounded-concurrency
// download manager (spec §4.6), ported step for step from
// original_source/pahkat-client-core/src/download.rs, with the struct shape
// (logger, http.Client, semaphore channel) grounded on a-h-depot's
// npm/download/download.go.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ProgressFunc is invoked after every chunk written to the partial file. A
// false return cancels the download with ErrUserCancelled (spec §4.6 step
// 7); the partial file is kept for a later resume, and the lock is released
// when Download returns.
type ProgressFunc func(downloaded, total int64) bool

// Sentinel errors mirroring spec §7's DownloadError variants that aren't
// naturally represented by a wrapped stdlib error.
var (
	ErrInvalidURL    = errors.New("download: url has no filename segment")
	ErrUserCancelled = errors.New("download: cancelled by caller")
	ErrLockFailure   = errors.New("download: url is already being downloaded")
)

// Manager is Pahkat's download manager: one HTTP client with connection
// pooling, a cache root under which per-URL temp directories are created,
// and a semaphore bounding concurrent downloads.
type Manager struct {
	client    *http.Client
	cacheRoot string
	sem       chan struct{}
	logger    *slog.Logger
}

// New constructs a Manager whose semaphore admits at most maxConcurrent
// downloads at once; maxConcurrent <= 0 means unbounded. The platform stores
// pass the config's max_concurrent_downloads, whose default of 0 leaves
// downloads unbounded.
func New(cacheRoot string, maxConcurrent int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	var sem chan struct{}
	if maxConcurrent > 0 {
		sem = make(chan struct{}, maxConcurrent)
	}
	return &Manager{
		client:    &http.Client{Timeout: 0}, // per-request timeout comes from ctx; streaming downloads must not hit a blanket client timeout
		cacheRoot: cacheRoot,
		sem:       sem,
		logger:    logger,
	}
}

func (m *Manager) acquireSlot(ctx context.Context) error {
	if m.sem == nil {
		return nil
	}
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) releaseSlot() {
	if m.sem != nil {
		<-m.sem
	}
}

// Download implements spec §4.6's download contract: derive the filename,
// short-circuit if already present in destDir, acquire the per-URL
// exclusive lock on an append-mode temp file, resume via Range/Content-Range
// if partially downloaded, stream the body invoking progress after every
// chunk, and atomically rename into destDir on completion.
func (m *Manager) Download(ctx context.Context, rawURL, destDir string, progress ProgressFunc) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	filename := filenameFromURL(u)
	if filename == "" {
		return "", ErrInvalidURL
	}

	finalPath := filepath.Join(destDir, filename)
	if _, err := os.Stat(finalPath); err == nil {
		if progress != nil {
			progress(0, 0)
		}
		return finalPath, nil
	}

	if err := m.acquireSlot(ctx); err != nil {
		return "", err
	}
	defer m.releaseSlot()

	tempDir := filepath.Join(m.cacheRoot, sha256Hex(rawURL))
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("download: creating temp dir: %w", err)
	}
	tempPath := filepath.Join(tempDir, filename)

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("download: opening temp file: %w", err)
	}
	defer file.Close()

	unlock, err := lockExclusive(file)
	if err != nil {
		return "", err
	}
	defer unlock()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("download: statting temp file: %w", err)
	}
	downloaded := info.Size()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("download: building request: %w", err)
	}
	if downloaded > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", downloaded))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	isPartial := resp.Header.Get("Content-Range") != ""
	contentLen := resp.ContentLength

	var total int64
	if isPartial {
		if contentLen > 0 {
			total = contentLen + downloaded
		}
	} else {
		if err := file.Truncate(0); err != nil {
			return "", fmt.Errorf("download: truncating stale partial file: %w", err)
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("download: seeking: %w", err)
		}
		downloaded = 0
		if contentLen > 0 {
			total = contentLen
		}
	}

	if err := m.stream(ctx, file, resp.Body, &downloaded, total, progress); err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("download: creating dest dir: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("download: closing temp file: %w", err)
	}
	// Closing the file releases its lock. unlock() still runs via defer on
	// the descriptor captured at lock time; both lockExclusive variants
	// ignore the error that unlocking a closed descriptor returns.
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("download: renaming into place: %w", err)
	}

	return finalPath, nil
}

const chunkSize = 32 * 1024

func (m *Manager) stream(ctx context.Context, file *os.File, body io.Reader, downloaded *int64, total int64, progress ProgressFunc) error {
	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return fmt.Errorf("download: writing chunk: %w", err)
			}
			*downloaded += int64(n)

			if progress != nil && !progress(*downloaded, total) {
				return ErrUserCancelled
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("download: reading response body: %w", readErr)
		}
	}
}

func filenameFromURL(u *url.URL) string {
	path := strings.TrimRight(u.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// PackageCachePath computes the sharded cache directory for a downloaded
// payload (spec §6 "Package cache path hashing"):
// <packageCacheDir>/<hex[0:2]>/<hex[2:4]>/<hex[4:]>. The filename is not
// part of the returned path; Download places the payload at
// <dir>/<filename>. A URL with no filename segment yields ErrInvalidURL.
func PackageCachePath(packageCacheDir, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	filename := filenameFromURL(u)
	if filename == "" {
		return "", ErrInvalidURL
	}
	hex := sha256Hex(rawURL)
	return filepath.Join(packageCacheDir, hex[0:2], hex[2:4], hex[4:]), nil
}
