package repoindex

import (
	"bytes"
	"encoding/gob"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/divvun/pahkat/pkg/model"
)

func encodedRepo(t *testing.T, repo model.LoadedRepository) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(repo); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFromCacheOrURLFetchesAndCaches(t *testing.T) {
	repo := model.LoadedRepository{
		Info:     model.RepoInfo{Name: model.LangTagMap{"en": "Test Repo"}},
		Packages: map[string]model.Package{},
	}
	body := encodedRepo(t, repo)

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(body)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	loader := NewLoader(time.Second, nil)
	rec := model.RepoRecord{URL: model.RepoURL(srv.URL + "/"), Channel: "stable"}

	got, err := loader.FromCacheOrURL(rec, cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Info.Name["en"] != "Test Repo" {
		t.Errorf("unexpected repo name: %+v", got.Info)
	}
	if hits != 1 {
		t.Fatalf("expected one HTTP fetch, got %d", hits)
	}

	cachePath := filepath.Join(cacheDir, HashID(rec), "cache.bin")
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("expected cache file to be written: %v", err)
	}

	// A second call within the freshness window must be served from cache,
	// not re-fetched.
	if _, err := loader.FromCacheOrURL(rec, cacheDir); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("expected cached read to avoid a second fetch, got %d hits", hits)
	}
}

func TestFromCacheOrURLRefetchesWhenStale(t *testing.T) {
	repo := model.LoadedRepository{Packages: map[string]model.Package{}}
	body := encodedRepo(t, repo)

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(body)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	loader := NewLoader(time.Second, nil)
	rec := model.RepoRecord{URL: model.RepoURL(srv.URL + "/")}

	if _, err := loader.FromCacheOrURL(rec, cacheDir); err != nil {
		t.Fatal(err)
	}

	cachePath := filepath.Join(cacheDir, HashID(rec), "cache.bin")
	stale := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(cachePath, stale, stale); err != nil {
		t.Fatal(err)
	}

	if _, err := loader.FromCacheOrURL(rec, cacheDir); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Errorf("expected a stale cache to trigger a refetch, got %d hits", hits)
	}
}

func TestRefreshFollowsLinkedRepositories(t *testing.T) {
	linkedRepo := model.LoadedRepository{Packages: map[string]model.Package{}}
	linkedBody := encodedRepo(t, linkedRepo)

	var linkedURL model.RepoURL
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(linkedBody)
	}))
	defer srv.Close()
	linkedURL = model.RepoURL(srv.URL + "/linked/")

	rootRepo := model.LoadedRepository{
		Packages: map[string]model.Package{},
		Info:     model.RepoInfo{LinkedRepositories: []model.RepoURL{linkedURL}},
	}
	rootBody := encodedRepo(t, rootRepo)

	rootSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(rootBody)
	}))
	defer rootSrv.Close()

	cacheDir := t.TempDir()
	loader := NewLoader(time.Second, nil)
	root := model.RepoRecord{URL: model.RepoURL(rootSrv.URL + "/")}

	result := loader.Refresh([]model.RepoRecord{root}, cacheDir)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if _, ok := result.Loaded[root.URL]; !ok {
		t.Error("expected the root repo to be loaded")
	}
	if _, ok := result.Loaded[linkedURL]; !ok {
		t.Error("expected the linked repo to also be loaded")
	}
}

func TestRefreshReportsPerRepoErrors(t *testing.T) {
	loader := NewLoader(time.Second, nil)
	cacheDir := t.TempDir()
	bad := model.RepoRecord{URL: "http://127.0.0.1:1/"}

	result := loader.Refresh([]model.RepoRecord{bad}, cacheDir)
	if len(result.Loaded) != 0 {
		t.Errorf("expected no loaded repos, got %v", result.Loaded)
	}
	if _, ok := result.Errors[bad.URL]; !ok {
		t.Error("expected an error for the unreachable repo")
	}
}

func TestClearCache(t *testing.T) {
	cacheDir := t.TempDir()
	sub := filepath.Join(cacheDir, "abc")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ClearCache(cacheDir); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected cache dir to be empty, got %v", entries)
	}
}
