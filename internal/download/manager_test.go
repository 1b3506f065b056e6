package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDownloadFullFile(t *testing.T) {
	const body = "hello pahkat"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	cacheRoot := t.TempDir()
	destDir := t.TempDir()
	mgr := New(cacheRoot, 1, nil)

	path, err := mgr.Download(context.Background(), srv.URL+"/pkg.tar.xz", destDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != body {
		t.Errorf("downloaded body = %q, want %q", data, body)
	}
}

func TestDownloadShortCircuitsWhenAlreadyPresent(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	destDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(destDir, "pkg.tar.xz"), []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr := New(t.TempDir(), 1, nil)
	path, err := mgr.Download(context.Background(), srv.URL+"/pkg.tar.xz", destDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "cached" {
		t.Errorf("expected the already-present file to be left untouched")
	}
	if hits != 0 {
		t.Errorf("expected no HTTP request when the file is already cached, got %d", hits)
	}
}

func TestDownloadCancelledByProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", chunkSize*2)))
	}))
	defer srv.Close()

	mgr := New(t.TempDir(), 1, nil)
	_, err := mgr.Download(context.Background(), srv.URL+"/big.bin", t.TempDir(), func(downloaded, total int64) bool {
		return false
	})
	if err != ErrUserCancelled {
		t.Errorf("err = %v, want ErrUserCancelled", err)
	}
}

func TestDownloadInvalidURL(t *testing.T) {
	mgr := New(t.TempDir(), 1, nil)
	if _, err := mgr.Download(context.Background(), "https://example.com/", t.TempDir(), nil); err != ErrInvalidURL {
		t.Errorf("err = %v, want ErrInvalidURL", err)
	}
}

func TestPackageCachePathIsShardedAndDeterministic(t *testing.T) {
	p1, err := PackageCachePath("/cache", "https://example.com/pkg.tar.xz")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := PackageCachePath("/cache", "https://example.com/pkg.tar.xz")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Errorf("expected deterministic output, got %q and %q", p1, p2)
	}
	if !strings.HasPrefix(p1, filepath.Join("/cache")) {
		t.Errorf("expected path under the cache dir, got %q", p1)
	}
	rel, err := filepath.Rel("/cache", p1)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 2 || len(parts[2]) != 60 {
		t.Errorf("expected <2>/<2>/<60> hex shards under the cache dir, got %q", rel)
	}
}
