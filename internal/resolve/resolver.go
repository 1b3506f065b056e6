// Package resolve implements Pahkat's package and payload resolution (spec
// §4.5): locating packages by key or short id across loaded repositories,
// resolving a concrete payload for a key under a query, and expanding a
// package query into a transitive candidate set.
package resolve

import (
	"fmt"

	"github.com/divvun/pahkat/pkg/model"
	"github.com/divvun/pahkat/pkg/pkgkey"
	"github.com/divvun/pahkat/pkg/query"
)

// Repos is the shared, read-locked view every resolver operation consults.
// Callers hold the reader-writer lock described in spec §5; this package
// only ever reads a map handed to it, never the lock itself.
type Repos map[model.RepoURL]*model.LoadedRepository

// FindPackageByKey implements spec §4.5's find_package_by_key: consult
// repos[key.repository_url].packages[key.id].
func FindPackageByKey(repos Repos, key pkgkey.Key) (*model.Package, bool) {
	repo, ok := repos[model.RepoURL(key.RepositoryURL)]
	if !ok {
		return nil, false
	}
	pkg, ok := repo.Packages[key.ID]
	if !ok {
		return nil, false
	}
	return &pkg, true
}

// FindPackageByID implements spec §4.5's find_package_by_id: try parsing id
// as a full PackageKey first; on failure, linearly scan every loaded repo
// for a matching short id and return the first hit, synthesizing the
// winning repo's url and channel onto the returned key.
func FindPackageByID(repos Repos, id string) (pkgkey.Key, *model.Package, bool) {
	if key, err := pkgkey.Parse(id); err == nil {
		if pkg, ok := FindPackageByKey(repos, key); ok {
			return key, pkg, true
		}
	}

	for repoURL, repo := range repos {
		if pkg, ok := repo.Packages[id]; ok {
			key := pkgkey.Key{
				RepositoryURL: string(repoURL),
				ID:            id,
				Query:         pkgkey.Query{Channel: repo.Meta.Channel},
			}
			return key, &pkg, true
		}
	}

	return pkgkey.Key{}, nil, false
}

// ResolvedPayload bundles the (Target, Release, Descriptor) triple produced
// by ResolvePayload, matching spec §4.5's return shape.
type ResolvedPayload struct {
	Target     *model.Target
	Release    *model.Release
	Descriptor *model.Descriptor
}

// ResolvePayload implements spec §4.5's resolve_payload.
func ResolvePayload(repos Repos, key pkgkey.Key, q query.ReleaseQuery) (ResolvedPayload, error) {
	pkg, ok := FindPackageByKey(repos, key)
	if !ok {
		return ResolvedPayload{}, &payloadError{reason: "no_package"}
	}
	if pkg.Concrete == nil {
		return ResolvedPayload{}, &payloadError{reason: "no_concrete_package"}
	}

	match, ok := query.Resolve(q, pkg.Concrete)
	if !ok {
		return ResolvedPayload{}, &payloadError{reason: "no_payload_found"}
	}

	return ResolvedPayload{
		Target:     match.Target,
		Release:    match.Release,
		Descriptor: pkg.Concrete,
	}, nil
}

type payloadError struct {
	reason string
	detail string
}

func (e *payloadError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("payload error: criteria unmet: %s", e.detail)
	}
	return fmt.Sprintf("payload error: %s", e.reason)
}

// ResolvedCandidate is one entry in a ResolvedPackageQuery's flattened set:
// the key it was resolved from and the payload chosen for it.
type ResolvedCandidate struct {
	Key     pkgkey.Key
	Payload ResolvedPayload
}

// ResolvePackageQuery implements spec §4.5's resolve_package_query: expand
// targets (the user-requested keys) into a flattened candidate set that
// includes every transitive dependency, breaking cycles by tracking visited
// ids.
func ResolvePackageQuery(repos Repos, targets []pkgkey.Key, q query.ReleaseQuery) ([]ResolvedCandidate, error) {
	visited := make(map[string]bool)
	var out []ResolvedCandidate

	var visit func(key pkgkey.Key) error
	visit = func(key pkgkey.Key) error {
		idKey := key.WithoutQueryParams().String()
		if visited[idKey] {
			return nil
		}
		visited[idKey] = true

		resolved, err := ResolvePayload(repos, key, q)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", key.String(), err)
		}

		out = append(out, ResolvedCandidate{Key: key, Payload: resolved})

		for depID := range resolved.Target.Dependencies {
			depKey := pkgkey.Key{
				RepositoryURL: key.RepositoryURL,
				ID:            depID,
				Query:         pkgkey.Query{Channel: key.Query.Channel},
			}
			if err := visit(depKey); err != nil {
				return err
			}
		}

		return nil
	}

	for _, key := range targets {
		if err := visit(key); err != nil {
			return nil, err
		}
	}

	return out, nil
}
