// Package pkgkey implements PackageKey: Pahkat's canonical, URL-form package
// identity (spec §3, §4.3). A key serializes to
// <repository_url>packages/<id>?<query> and round-trips losslessly.
package pkgkey

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Errors returned by Parse (spec §4.3).
var (
	ErrInvalidURL             = errors.New("pkgkey: invalid url")
	ErrBaseForbidden          = errors.New("pkgkey: base url segment forbidden")
	ErrMissingPackagesSegment = errors.New("pkgkey: url has no packages segment")
	ErrInvalidPackageSegment  = errors.New("pkgkey: missing or empty package id segment")
)

// Query is the recognized query-parameter bag attached to a key.
type Query struct {
	Channel  string
	Platform string
	Arch     string
	Version  string
}

func (q Query) isEmpty() bool {
	return q.Channel == "" && q.Platform == "" && q.Arch == "" && q.Version == ""
}

// Key is Pahkat's canonical package identity.
type Key struct {
	RepositoryURL string // absolute, always ends in "/"
	ID            string
	Query         Query
}

// Parse implements the algorithm in spec §4.3: split the path on the first
// "packages" segment, the following segment is the id, and the URL with its
// path truncated before "packages" is the repository_url.
func Parse(raw string) (Key, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Opaque != "" {
		// e.g. "mailto:foo@bar.com": a URL with no "//" authority has no path
		// segments to split on, so it can never carry a /packages/<id> suffix.
		return Key{}, ErrBaseForbidden
	}
	if u.Scheme == "" || u.Host == "" {
		return Key{}, ErrInvalidURL
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	idx := -1
	for i, seg := range segments {
		if seg == "packages" {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Key{}, ErrMissingPackagesSegment
	}
	if idx+1 >= len(segments) || segments[idx+1] == "" {
		return Key{}, ErrInvalidPackageSegment
	}
	if idx+2 < len(segments) {
		// Anything beyond <packages>/<id> is not a valid package segment path.
		return Key{}, ErrInvalidPackageSegment
	}

	id := segments[idx+1]

	repoSegments := segments[:idx]
	repoURL := *u
	repoURL.RawQuery = ""
	repoURL.Fragment = ""
	if len(repoSegments) == 0 {
		repoURL.Path = "/"
	} else {
		repoURL.Path = "/" + strings.Join(repoSegments, "/") + "/"
	}

	q := Query{
		Channel:  u.Query().Get("channel"),
		Platform: u.Query().Get("platform"),
		Arch:     u.Query().Get("arch"),
		Version:  u.Query().Get("version"),
	}

	return Key{
		RepositoryURL: repoURL.String(),
		ID:            id,
		Query:         q,
	}, nil
}

// String serializes the key back into its canonical URL form. Query
// parameters are appended in a fixed order (arch, channel, platform,
// version) so that serialization is deterministic; an empty query bag
// produces no "?" suffix at all.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(k.RepositoryURL, "/"))
	b.WriteString("/packages/")
	b.WriteString(k.ID)

	if !k.Query.isEmpty() {
		values := url.Values{}
		if k.Query.Arch != "" {
			values.Set("arch", k.Query.Arch)
		}
		if k.Query.Channel != "" {
			values.Set("channel", k.Query.Channel)
		}
		if k.Query.Platform != "" {
			values.Set("platform", k.Query.Platform)
		}
		if k.Query.Version != "" {
			values.Set("version", k.Query.Version)
		}
		b.WriteByte('?')
		b.WriteString(orderedEncode(values, []string{"arch", "channel", "platform", "version"}))
	}

	return b.String()
}

// orderedEncode renders values in a fixed key order rather than url.Values'
// alphabetical Encode, since the field order here happens to already be
// alphabetical but is spelled out explicitly to keep the serialization order
// a property of this package, not an accident of url.Values.Encode.
func orderedEncode(values url.Values, order []string) string {
	var parts []string
	for _, k := range order {
		if v := values.Get(k); v != "" {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// WithoutQueryParams returns a copy of the key with its query bag cleared.
func (k Key) WithoutQueryParams() Key {
	return Key{RepositoryURL: k.RepositoryURL, ID: k.ID}
}

// Equal reports whether two keys are byte-equal in their URL serialization
// (spec §4.3: "Two keys are equal iff their URL serializations are
// byte-equal").
func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}
