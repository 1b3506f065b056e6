// Package query implements ReleaseQuery: filtering a Descriptor's releases
// by platform, architecture, channel, version and payload kind (spec §4.4),
// ported from original_source/pahkat-client-core/src/repo.rs's
// ReleaseQueryIter.
package query

import (
	"runtime"

	"github.com/divvun/pahkat/pkg/model"
	"github.com/divvun/pahkat/pkg/pkgkey"
	"github.com/divvun/pahkat/pkg/version"
)

// VersionMatchKind discriminates the VersionQuery tagged union.
type VersionMatchKind int

const (
	VersionMatch VersionMatchKind = iota
	VersionSemantic
	VersionTimestamp
)

// VersionQuery is one version-matching predicate within a ReleaseQuery.
type VersionQuery struct {
	Kind VersionMatchKind
	Mask string // exact string (Match), "*" or exact semver string (Semantic), RFC3339 string (Timestamp)
}

// Matches reports whether v satisfies this predicate. Semantic predicates
// only support the wildcard "*" or an exact string match on the version's
// original textual form — the original source leaves range masks as
// unimplemented (see DESIGN.md Open Question decisions).
func (q VersionQuery) Matches(v version.Version) bool {
	switch q.Kind {
	case VersionMatch:
		return v.String() == q.Mask
	case VersionSemantic:
		if v.Kind != version.Semantic {
			return false
		}
		if q.Mask == "*" {
			return true
		}
		return v.String() == q.Mask
	case VersionTimestamp:
		return v.Kind == version.Opaque && v.String() == q.Mask
	default:
		return false
	}
}

// Any matches any semantic version, used as the default predicate when a
// PackageKey's query carries no explicit version.
func Any() VersionQuery {
	return VersionQuery{Kind: VersionSemantic, Mask: "*"}
}

// ReleaseQuery carries the filter criteria applied when resolving a
// package's releases to a single (Release, Target) pair (spec §4.4).
type ReleaseQuery struct {
	Platform string
	Arch     string // empty means "unset" (matches only targets with no arch)
	Channels []string
	Versions []VersionQuery
	Payloads []model.PayloadKind
}

// Default builds a ReleaseQuery from platform probes: the running OS, the
// running architecture, and the payload kinds that platform's store
// supports, matching the defaults every PackageStore constructs for itself.
func Default() ReleaseQuery {
	return ReleaseQuery{
		Platform: Platform(),
		Arch:     Arch(),
		Channels: nil,
		Versions: nil,
		Payloads: DefaultPayloads(),
	}
}

// Platform returns the runtime-probed platform name used as a default.
func Platform() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "darwin":
		return "macos"
	default:
		return "linux"
	}
}

// Arch returns the runtime-probed architecture name used as a default.
func Arch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

// DefaultPayloads returns the payload kinds the running platform's store
// accepts.
func DefaultPayloads() []model.PayloadKind {
	switch runtime.GOOS {
	case "windows":
		return []model.PayloadKind{model.PayloadWindowsExecutable}
	case "darwin":
		return []model.PayloadKind{model.PayloadMacOSPackage, model.PayloadTarballPackage}
	default:
		return []model.PayloadKind{model.PayloadTarballPackage}
	}
}

// FromKey derives a ReleaseQuery from a PackageKey's query bag, falling back
// to platform defaults for any field the key leaves unset (spec's
// `From<&PackageKey> for ReleaseQuery<'a>`).
func FromKey(key pkgkey.Key) ReleaseQuery {
	q := ReleaseQuery{
		Platform: key.Query.Platform,
		Arch:     key.Query.Arch,
		Payloads: DefaultPayloads(),
	}
	if q.Platform == "" {
		q.Platform = Platform()
	}
	if q.Arch == "" {
		q.Arch = Arch()
	}
	if key.Query.Channel != "" {
		q.Channels = []string{key.Query.Channel}
	}
	if key.Query.Version != "" {
		q.Versions = []VersionQuery{{Kind: VersionMatch, Mask: key.Query.Version}}
	}
	return q
}

// Match is one (Release, Target) pair yielded by Iterate.
type Match struct {
	Release *model.Release
	Target  *model.Target
}

// Iterate yields (Release, Target) pairs from descriptor in the order
// described by spec §4.4: releases newest-first (descriptor order), the
// first target within a release that matches platform/arch/payload wins,
// then iteration proceeds to the next release. The first returned match is
// the canonical resolution.
func Iterate(q ReleaseQuery, descriptor *model.Descriptor) []Match {
	var matches []Match

	for i := range descriptor.Releases {
		release := &descriptor.Releases[i]

		if len(q.Channels) > 0 && !containsString(q.Channels, release.Channel) {
			continue
		}

		if len(q.Versions) > 0 && !anyVersionMatches(q.Versions, release.Version) {
			continue
		}

		target := firstMatchingTarget(q, release)
		if target == nil {
			continue
		}

		matches = append(matches, Match{Release: release, Target: target})
	}

	return matches
}

// Resolve is a convenience wrapper returning only the canonical (first)
// match, mirroring resolve_payload's "first yielded pair" contract.
func Resolve(q ReleaseQuery, descriptor *model.Descriptor) (Match, bool) {
	matches := Iterate(q, descriptor)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

func firstMatchingTarget(q ReleaseQuery, release *model.Release) *model.Target {
	for i := range release.Targets {
		target := &release.Targets[i]

		if target.Platform != q.Platform {
			continue
		}

		if q.Arch != "" {
			if target.Arch != "" && target.Arch != q.Arch {
				continue
			}
		} else if target.Arch != "" {
			continue
		}

		if len(q.Payloads) > 0 && !containsPayloadKind(q.Payloads, target.Payload.Kind) {
			continue
		}

		return target
	}
	return nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsPayloadKind(haystack []model.PayloadKind, needle model.PayloadKind) bool {
	for _, k := range haystack {
		if k == needle {
			return true
		}
	}
	return false
}

func anyVersionMatches(queries []VersionQuery, v version.Version) bool {
	for _, q := range queries {
		if q.Matches(v) {
			return true
		}
	}
	return false
}
