package transaction

import (
	"context"
	"testing"

	"github.com/divvun/pahkat/internal/download"
	"github.com/divvun/pahkat/internal/resolve"
	"github.com/divvun/pahkat/internal/store"
	"github.com/divvun/pahkat/pkg/event"
	"github.com/divvun/pahkat/pkg/model"
	"github.com/divvun/pahkat/pkg/pkgkey"
	"github.com/divvun/pahkat/pkg/query"
	"github.com/divvun/pahkat/pkg/version"
)

const fakeRepoURL = "https://example.com/repo/"

// fakeStore is a minimal in-memory store.PackageStore for exercising the
// transaction planner without a real platform backend.
type fakeStore struct {
	packages  map[string]*model.Package // by id
	installed map[string]bool           // by id
	installErr error
}

func newFakeStore() *fakeStore {
	fooTarget := model.Target{
		Platform:     query.Platform(),
		Dependencies: model.DependencyMap{"bar": "*"},
		Payload:      model.Payload{Kind: model.PayloadTarballPackage},
	}
	barTarget := model.Target{Platform: query.Platform(), Payload: model.Payload{Kind: model.PayloadTarballPackage}}

	return &fakeStore{
		packages: map[string]*model.Package{
			"foo": {Concrete: &model.Descriptor{ID: "foo", Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{fooTarget}}}}},
			"bar": {Concrete: &model.Descriptor{ID: "bar", Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{barTarget}}}}},
		},
		installed: map[string]bool{},
	}
}

func (f *fakeStore) keyFor(id string) pkgkey.Key {
	return pkgkey.Key{RepositoryURL: fakeRepoURL, ID: id}
}

func (f *fakeStore) Status(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	if f.installed[key.ID] {
		return version.UpToDate, nil
	}
	return version.NotInstalled, nil
}

func (f *fakeStore) Install(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	if f.installErr != nil {
		return version.NotInstalled, f.installErr
	}
	f.installed[key.ID] = true
	return version.UpToDate, nil
}

func (f *fakeStore) Uninstall(key pkgkey.Key, scope store.Scope) (version.Result, error) {
	delete(f.installed, key.ID)
	return version.NotInstalled, nil
}

func (f *fakeStore) Download(ctx context.Context, key pkgkey.Key, progress download.ProgressFunc) (string, error) {
	return "", nil
}

func (f *fakeStore) Import(key pkgkey.Key, localInstallerPath string) (string, error) {
	return "", nil
}

func (f *fakeStore) FindPackageByKey(key pkgkey.Key) (*model.Package, bool) {
	pkg, ok := f.packages[key.ID]
	return pkg, ok
}

func (f *fakeStore) FindPackageByID(id string) (pkgkey.Key, *model.Package, bool) {
	pkg, ok := f.packages[id]
	if !ok {
		return pkgkey.Key{}, nil, false
	}
	return f.keyFor(id), pkg, true
}

func (f *fakeStore) AllStatuses(repoURL model.RepoURL, scope store.Scope) map[string]store.StatusResult {
	return nil
}

func (f *fakeStore) RefreshRepos() map[model.RepoURL]error { return nil }

func (f *fakeStore) Repos() resolve.Repos {
	packages := make(map[string]model.Package, len(f.packages))
	for id, pkg := range f.packages {
		packages[id] = *pkg
	}
	return resolve.Repos{
		model.RepoURL(fakeRepoURL): &model.LoadedRepository{Packages: packages},
	}
}

// newChainStore builds a->b->c, a transitive (not one-level) dependency
// chain, to exercise transitiveDependencies beyond a->b.
func newChainStore() *fakeStore {
	cTarget := model.Target{Platform: query.Platform(), Payload: model.Payload{Kind: model.PayloadTarballPackage}}
	bTarget := model.Target{Platform: query.Platform(), Dependencies: model.DependencyMap{"c": "*"}, Payload: model.Payload{Kind: model.PayloadTarballPackage}}
	aTarget := model.Target{Platform: query.Platform(), Dependencies: model.DependencyMap{"b": "*"}, Payload: model.Payload{Kind: model.PayloadTarballPackage}}

	return &fakeStore{
		packages: map[string]*model.Package{
			"a": {Concrete: &model.Descriptor{ID: "a", Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{aTarget}}}}},
			"b": {Concrete: &model.Descriptor{ID: "b", Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{bTarget}}}}},
			"c": {Concrete: &model.Descriptor{ID: "c", Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{cTarget}}}}},
		},
		installed: map[string]bool{},
	}
}

// newCyclicStore builds a->b->a, which must not loop forever.
func newCyclicStore() *fakeStore {
	aTarget := model.Target{Platform: query.Platform(), Dependencies: model.DependencyMap{"b": "*"}, Payload: model.Payload{Kind: model.PayloadTarballPackage}}
	bTarget := model.Target{Platform: query.Platform(), Dependencies: model.DependencyMap{"a": "*"}, Payload: model.Payload{Kind: model.PayloadTarballPackage}}

	return &fakeStore{
		packages: map[string]*model.Package{
			"a": {Concrete: &model.Descriptor{ID: "a", Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{aTarget}}}}},
			"b": {Concrete: &model.Descriptor{ID: "b", Releases: []model.Release{{Version: version.Parse("1.0.0"), Targets: []model.Target{bTarget}}}}},
		},
		installed: map[string]bool{},
	}
}

func TestNewExpandsTransitiveDependencies(t *testing.T) {
	s := newChainStore()
	actions := []PackageAction{{Key: s.keyFor("a"), Action: ActionInstall}}

	tx, err := New(s, actions, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx.Actions()) != 3 {
		t.Fatalf("expected a + b + c, got %d actions: %v", len(tx.Actions()), tx.Actions())
	}

	order := make(map[string]int, len(tx.Actions()))
	for i, action := range tx.Actions() {
		order[action.Key.ID] = i
	}
	if order["c"] > order["b"] {
		t.Errorf("expected c (b's dependency) to be installed before b, got order %v", order)
	}
	if order["b"] > order["a"] {
		t.Errorf("expected b (a's dependency) to be installed before a, got order %v", order)
	}
}

func TestNewBreaksDependencyCycles(t *testing.T) {
	s := newCyclicStore()
	actions := []PackageAction{{Key: s.keyFor("a"), Action: ActionInstall}}

	tx, err := New(s, actions, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx.Actions()) != 2 {
		t.Fatalf("expected exactly a + b despite the cycle, got %d actions: %v", len(tx.Actions()), tx.Actions())
	}
}

func TestNewExpandsDependencies(t *testing.T) {
	s := newFakeStore()
	actions := []PackageAction{{Key: s.keyFor("foo"), Action: ActionInstall}}

	tx, err := New(s, actions, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx.Actions()) != 2 {
		t.Fatalf("expected foo + bar, got %d actions", len(tx.Actions()))
	}
}

func TestNewNoPackage(t *testing.T) {
	s := newFakeStore()
	actions := []PackageAction{{Key: s.keyFor("nonexistent"), Action: ActionInstall}}

	_, err := New(s, actions, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown package")
	}
	txErr, ok := err.(*Error)
	if !ok || txErr.Reason != ErrNoPackage {
		t.Errorf("err = %v, want ErrNoPackage", err)
	}
}

func TestNewDetectsActionContradiction(t *testing.T) {
	s := newFakeStore()
	actions := []PackageAction{
		{Key: s.keyFor("bar"), Action: ActionInstall},
		{Key: s.keyFor("bar"), Action: ActionUninstall},
	}

	_, err := New(s, actions, nil)
	if err == nil {
		t.Fatal("expected a contradiction error")
	}
	txErr, ok := err.(*Error)
	if !ok || txErr.Reason != ErrActionContradiction {
		t.Errorf("err = %v, want ErrActionContradiction", err)
	}
}

func TestNewFiltersAlreadyUpToDate(t *testing.T) {
	s := newFakeStore()
	s.installed["bar"] = true // bar's dependency side is already satisfied

	actions := []PackageAction{{Key: s.keyFor("bar"), Action: ActionInstall}}
	tx, err := New(s, actions, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx.Actions()) != 0 {
		t.Errorf("expected an already up-to-date install to be filtered out, got %v", tx.Actions())
	}
}

func TestProcessInstallsSequentially(t *testing.T) {
	s := newFakeStore()
	actions := []PackageAction{{Key: s.keyFor("foo"), Action: ActionInstall}}
	tx, err := New(s, actions, nil)
	if err != nil {
		t.Fatal(err)
	}

	var kinds []event.Kind
	err = tx.Process(func(e event.Event) bool {
		kinds = append(kinds, e.Kind)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if !s.installed["foo"] || !s.installed["bar"] {
		t.Errorf("expected both foo and bar installed, got %v", s.installed)
	}
	if kinds[len(kinds)-1] != event.KindCompleted {
		t.Errorf("expected the last event to be KindCompleted, got %v", kinds)
	}
}

func TestProcessStopsOnCancellation(t *testing.T) {
	s := newFakeStore()
	actions := []PackageAction{{Key: s.keyFor("foo"), Action: ActionInstall}}
	tx, err := New(s, actions, nil)
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	err = tx.Process(func(e event.Event) bool {
		calls++
		return false
	})
	if err == nil {
		t.Fatal("expected cancellation to surface as an error")
	}
	if calls != 1 {
		t.Errorf("expected processing to stop after the first event, got %d calls", calls)
	}
	if len(s.installed) != 0 {
		t.Errorf("expected no installs to have run, got %v", s.installed)
	}
}
