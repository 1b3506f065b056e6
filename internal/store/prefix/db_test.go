package prefix

import (
	"context"
	"path/filepath"
	"testing"
)

func TestDBSaveFindDelete(t *testing.T) {
	ctx := context.Background()
	d, err := openDB(filepath.Join(t.TempDir(), "packages.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	rec := &record{
		url:          "https://example.com/repo/packages/foo",
		version:      "1.0.0",
		files:        []string{"bin/foo", "share/foo.txt"},
		dependencies: []string{"bar"},
	}
	if err := d.save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := d.findByURL(ctx, rec.url)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected to find the saved record")
	}
	if got.version != "1.0.0" || len(got.files) != 2 || len(got.dependencies) != 1 {
		t.Errorf("unexpected record: %+v", got)
	}

	installed, err := d.allInstalledURLs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if installed[rec.url] != "1.0.0" {
		t.Errorf("allInstalledURLs = %v", installed)
	}

	if err := d.delete(ctx, got); err != nil {
		t.Fatal(err)
	}
	gone, err := d.findByURL(ctx, rec.url)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Error("expected the record to be gone after delete")
	}
}

func TestDBSaveReplacesExistingRow(t *testing.T) {
	ctx := context.Background()
	d, err := openDB(filepath.Join(t.TempDir(), "packages.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	url := "https://example.com/repo/packages/foo"
	if err := d.save(ctx, &record{url: url, version: "1.0.0", files: []string{"a"}}); err != nil {
		t.Fatal(err)
	}
	if err := d.save(ctx, &record{url: url, version: "2.0.0", files: []string{"b", "c"}}); err != nil {
		t.Fatal(err)
	}

	got, err := d.findByURL(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if got.version != "2.0.0" {
		t.Errorf("version = %s, want 2.0.0 (expected a replace, not a duplicate row)", got.version)
	}
	if len(got.files) != 2 {
		t.Errorf("files = %v, want exactly the second save's files", got.files)
	}
	if got.installedOn == "" {
		t.Error("expected installed_on to be set")
	}
	if got.updatedOn == "" {
		t.Error("expected updated_on to be set")
	}
}

func TestDBFindByURLMissing(t *testing.T) {
	ctx := context.Background()
	d, err := openDB(filepath.Join(t.TempDir(), "packages.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	got, err := d.findByURL(ctx, "https://example.com/packages/nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected no record, got %+v", got)
	}
}
