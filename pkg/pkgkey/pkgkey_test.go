package pkgkey

import "testing"

func TestParseRoundTrip(t *testing.T) {
	key, err := Parse("https://example.com/repo/packages/foo?channel=beta&arch=x86_64")
	if err != nil {
		t.Fatal(err)
	}
	if key.RepositoryURL != "https://example.com/repo/" {
		t.Errorf("repository url = %q", key.RepositoryURL)
	}
	if key.ID != "foo" {
		t.Errorf("id = %q", key.ID)
	}
	if key.Query.Channel != "beta" || key.Query.Arch != "x86_64" {
		t.Errorf("query = %+v", key.Query)
	}

	got := key.String()
	want := "https://example.com/repo/packages/foo?arch=x86_64&channel=beta"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseRootRepo(t *testing.T) {
	key, err := Parse("https://example.com/packages/foo")
	if err != nil {
		t.Fatal(err)
	}
	if key.RepositoryURL != "https://example.com/" {
		t.Errorf("repository url = %q", key.RepositoryURL)
	}
	if key.String() != "https://example.com/packages/foo" {
		t.Errorf("String() = %q", key.String())
	}
}

func TestParseMissingPackagesSegment(t *testing.T) {
	if _, err := Parse("https://example.com/repo/foo"); err != ErrMissingPackagesSegment {
		t.Errorf("err = %v, want ErrMissingPackagesSegment", err)
	}
}

func TestParseEmptyPackageID(t *testing.T) {
	if _, err := Parse("https://example.com/packages/"); err != ErrInvalidPackageSegment {
		t.Errorf("err = %v, want ErrInvalidPackageSegment", err)
	}
}

func TestParseTrailingSegment(t *testing.T) {
	if _, err := Parse("https://example.com/packages/foo/extra"); err != ErrInvalidPackageSegment {
		t.Errorf("err = %v, want ErrInvalidPackageSegment", err)
	}
}

func TestParseInvalidURL(t *testing.T) {
	if _, err := Parse("not-a-url"); err != ErrInvalidURL {
		t.Errorf("err = %v, want ErrInvalidURL", err)
	}
}

func TestParseOpaqueURLForbidden(t *testing.T) {
	if _, err := Parse("mailto:foo@example.com"); err != ErrBaseForbidden {
		t.Errorf("err = %v, want ErrBaseForbidden", err)
	}
}

func TestWithoutQueryParams(t *testing.T) {
	key, err := Parse("https://example.com/packages/foo?channel=beta")
	if err != nil {
		t.Fatal(err)
	}
	stripped := key.WithoutQueryParams()
	if stripped.String() != "https://example.com/packages/foo" {
		t.Errorf("stripped = %q", stripped.String())
	}
}

func TestEqual(t *testing.T) {
	a, _ := Parse("https://example.com/packages/foo?channel=beta")
	b, _ := Parse("https://example.com/packages/foo?channel=beta")
	c, _ := Parse("https://example.com/packages/foo")
	if !a.Equal(b) {
		t.Error("expected a == b")
	}
	if a.Equal(c) {
		t.Error("expected a != c")
	}
}
