package resolve

import (
	"testing"

	"github.com/divvun/pahkat/pkg/model"
	"github.com/divvun/pahkat/pkg/pkgkey"
	"github.com/divvun/pahkat/pkg/query"
	"github.com/divvun/pahkat/pkg/version"
)

func fixtureRepos() Repos {
	fooTarget := model.Target{
		Platform:     query.Platform(),
		Arch:         query.Arch(),
		Dependencies: model.DependencyMap{"bar": "*"},
		Payload:      model.Payload{Kind: query.DefaultPayloads()[0]},
	}
	barTarget := model.Target{
		Platform: query.Platform(),
		Arch:     query.Arch(),
		Payload:  model.Payload{Kind: query.DefaultPayloads()[0]},
	}

	repo := &model.LoadedRepository{
		Meta: model.RepoMeta{Channel: "stable"},
		Packages: map[string]model.Package{
			"foo": {Concrete: &model.Descriptor{
				ID:       "foo",
				Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{fooTarget}}},
			}},
			"bar": {Concrete: &model.Descriptor{
				ID:       "bar",
				Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{barTarget}}},
			}},
		},
	}

	return Repos{"https://example.com/repo/": repo}
}

func TestFindPackageByKey(t *testing.T) {
	repos := fixtureRepos()
	key := pkgkey.Key{RepositoryURL: "https://example.com/repo/", ID: "foo"}

	pkg, ok := FindPackageByKey(repos, key)
	if !ok {
		t.Fatal("expected to find foo")
	}
	if pkg.Concrete.ID != "foo" {
		t.Errorf("id = %s", pkg.Concrete.ID)
	}

	if _, ok := FindPackageByKey(repos, pkgkey.Key{RepositoryURL: "https://example.com/repo/", ID: "missing"}); ok {
		t.Error("expected no match for a missing id")
	}
}

func TestFindPackageByIDShortID(t *testing.T) {
	repos := fixtureRepos()

	key, pkg, ok := FindPackageByID(repos, "bar")
	if !ok {
		t.Fatal("expected to find bar by short id")
	}
	if pkg.Concrete.ID != "bar" {
		t.Errorf("id = %s", pkg.Concrete.ID)
	}
	if key.Query.Channel != "stable" {
		t.Errorf("channel = %q, want stable (synthesized from repo meta)", key.Query.Channel)
	}
}

func TestFindPackageByIDNotFound(t *testing.T) {
	repos := fixtureRepos()
	if _, _, ok := FindPackageByID(repos, "nonexistent"); ok {
		t.Error("expected no match")
	}
}

func TestResolvePayload(t *testing.T) {
	repos := fixtureRepos()
	key := pkgkey.Key{RepositoryURL: "https://example.com/repo/", ID: "foo"}

	resolved, err := ResolvePayload(repos, key, query.Default())
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Descriptor.ID != "foo" {
		t.Errorf("descriptor id = %s", resolved.Descriptor.ID)
	}
	if len(resolved.Target.Dependencies) != 1 {
		t.Errorf("expected one dependency, got %v", resolved.Target.Dependencies)
	}
}

func TestResolvePayloadNoPackage(t *testing.T) {
	repos := fixtureRepos()
	key := pkgkey.Key{RepositoryURL: "https://example.com/repo/", ID: "missing"}

	if _, err := ResolvePayload(repos, key, query.Default()); err == nil {
		t.Error("expected an error for a missing package")
	}
}

func TestResolvePackageQueryExpandsDependencies(t *testing.T) {
	repos := fixtureRepos()
	key := pkgkey.Key{RepositoryURL: "https://example.com/repo/", ID: "foo"}

	candidates, err := ResolvePackageQuery(repos, []pkgkey.Key{key}, query.Default())
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected foo + its dependency bar, got %d candidates", len(candidates))
	}

	ids := map[string]bool{}
	for _, c := range candidates {
		ids[c.Payload.Descriptor.ID] = true
	}
	if !ids["foo"] || !ids["bar"] {
		t.Errorf("expected both foo and bar resolved, got %v", ids)
	}
}

func TestResolvePackageQueryBreaksCycles(t *testing.T) {
	repos := fixtureRepos()
	// Introduce a cycle: bar depends back on foo.
	barPkg := repos["https://example.com/repo/"].Packages["bar"]
	barPkg.Concrete.Releases[0].Targets[0].Dependencies = model.DependencyMap{"foo": "*"}
	repos["https://example.com/repo/"].Packages["bar"] = barPkg

	key := pkgkey.Key{RepositoryURL: "https://example.com/repo/", ID: "foo"}
	candidates, err := ResolvePackageQuery(repos, []pkgkey.Key{key}, query.Default())
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected the cycle to be broken after foo+bar, got %d", len(candidates))
	}
}
