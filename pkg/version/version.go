// Package version implements Pahkat's Version tagged union: a release is
// either a Semantic version (ordered per SemVer 2.0) or an Opaque string
// (ordered as an ISO-8601 timestamp when parseable, else lexically).
package version

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Kind discriminates the Version tagged union.
type Kind int

const (
	Semantic Kind = iota
	Opaque
)

// Version is either Semantic(semver.Version) or Opaque(string). Exactly one
// of the two payload fields is meaningful, selected by Kind.
type Version struct {
	Kind     Kind
	semantic *semver.Version
	opaque   string
}

// Parse attempts a semver parse first; any string that fails is kept as an
// Opaque version rather than rejected, since repositories may legitimately
// use non-semver version strings (e.g. a localization build date).
func Parse(s string) Version {
	if v, err := semver.NewVersion(s); err == nil {
		return Version{Kind: Semantic, semantic: v}
	}
	return Version{Kind: Opaque, opaque: s}
}

// String returns the version's original textual form.
func (v Version) String() string {
	if v.Kind == Semantic {
		return v.semantic.Original()
	}
	return v.opaque
}

// Result is the outcome of comparing an installed version against a
// candidate release version.
type Result int

const (
	NotInstalled Result = iota
	UpToDate
	RequiresUpdate
)

func (r Result) String() string {
	switch r {
	case NotInstalled:
		return "NotInstalled"
	case UpToDate:
		return "UpToDate"
	case RequiresUpdate:
		return "RequiresUpdate"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Compare orders two versions: negative if a < b, zero if equal, positive if
// a > b. Semantic versions compare against each other by SemVer precedence.
// Opaque versions are tried as RFC3339 timestamps first; if both parse,
// compared chronologically, else compared lexically. A Semantic compared
// against an Opaque version falls back to lexical comparison of their
// string forms, since the two have no common ordering otherwise.
func Compare(a, b Version) int {
	if a.Kind == Semantic && b.Kind == Semantic {
		return a.semantic.Compare(b.semantic)
	}

	if a.Kind == Opaque && b.Kind == Opaque {
		ta, aErr := time.Parse(time.RFC3339, a.opaque)
		tb, bErr := time.Parse(time.RFC3339, b.opaque)
		if aErr == nil && bErr == nil {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}

	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// GobEncode implements gob.GobEncoder so a Version round-trips through the
// repository index's binary cache (internal/repoindex) via its textual form,
// since the unexported semver.Version pointer has no exported fields for
// gob's reflection-based encoder to walk.
func (v Version) GobEncode() ([]byte, error) {
	return []byte(v.String()), nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (v *Version) GobDecode(data []byte) error {
	*v = Parse(string(data))
	return nil
}

// CompareInstalled maps a Compare result between an installed version and a
// candidate release version to the tri-state Result used by every platform
// store's status() operation (spec §4.7 "Version comparison").
func CompareInstalled(installed, candidate Version) Result {
	switch c := Compare(installed, candidate); {
	case c == 0:
		return UpToDate
	case c < 0:
		return RequiresUpdate
	default:
		return UpToDate
	}
}
