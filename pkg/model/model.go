// Package model holds Pahkat's repository and package data model (spec §3):
// tagged unions for Package, Release, Target and Payload, plus the
// repository-level records that key Config and the in-memory repo cache.
//
// Payload, Version and Package are modelled as tagged unions with wholly
// different fields per variant rather than behind a dispatch interface, per
// the design note in spec §9 ("Payload variants").
package model

import "github.com/divvun/pahkat/pkg/version"

// RepoURL is an absolute URL that always ends in "/". Callers are expected
// to construct it via NormalizeRepoURL.
type RepoURL string

// NormalizeRepoURL appends a trailing slash if absent.
func NormalizeRepoURL(s string) RepoURL {
	if len(s) == 0 || s[len(s)-1] != '/' {
		return RepoURL(s + "/")
	}
	return RepoURL(s)
}

// RepoRecord is a configured repository: a url/channel pair that keys the
// per-repo state held in Config.
type RepoRecord struct {
	URL     RepoURL
	Channel string
}

// RepoInfo is the repository-level metadata carried alongside its packages
// (name/description, in the same localized-map shape as a Descriptor).
type RepoInfo struct {
	Name        LangTagMap
	Description LangTagMap
	LinkedRepositories []RepoURL
}

// RepoMeta carries the index's own bookkeeping, independent of RepoInfo's
// user-facing fields.
type RepoMeta struct {
	Channel    string
	Agent      string
	LandingURL string
}

// LoadedRepository is a parsed repository index held in memory (spec §3).
// It is replaced wholesale on refresh, never mutated in place.
type LoadedRepository struct {
	Info     RepoInfo
	Packages map[string]Package
	Meta     RepoMeta
}

// LangTagMap is a BCP-47-tag-keyed localization map (original_source
// pahkat-types uses a BTreeMap<String, T> for this; Go's map has no ordering
// guarantee, but LangTagMap values are never iterated in an order-sensitive
// context — only looked up by tag).
type LangTagMap map[string]string

// DependencyMap maps a dependency package id to a version specification
// string (spec's VersionSpec is opaque to this layer; "*" means "any").
type DependencyMap map[string]string

// Package is the tagged union over what a repository can hold at an id.
// Concrete is the only variant populated by any known repository format;
// the tag exists so future non-concrete package kinds (virtual/redirect
// packages) have somewhere to live without restructuring every caller.
type Package struct {
	Concrete *Descriptor
}

// Descriptor is a concrete package record.
type Descriptor struct {
	ID          string
	Tags        []string
	Name        LangTagMap
	Description LangTagMap
	Releases    []Release // newest-first; position is the tie-breaker between equal matches
}

// Release is one version of a Descriptor.
type Release struct {
	Version     version.Version
	Channel     string
	Authors     []string
	License     string
	LicenseURL  string
	Targets     []Target
}

// Target is one platform/arch-specific installable form of a Release.
type Target struct {
	Platform     string
	Arch         string // empty means "any"
	Dependencies DependencyMap
	Payload      Payload
}

// PayloadKind discriminates the Payload tagged union.
type PayloadKind int

const (
	PayloadWindowsExecutable PayloadKind = iota
	PayloadMacOSPackage
	PayloadTarballPackage
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadWindowsExecutable:
		return "WindowsExecutable"
	case PayloadMacOSPackage:
		return "MacOSPackage"
	case PayloadTarballPackage:
		return "TarballPackage"
	default:
		return "Unknown"
	}
}

// InstallerKind discriminates which Windows installer family built an
// executable payload, determining its argument templates (spec §4.7 table).
type InstallerKind int

const (
	InstallerUnknown InstallerKind = iota
	InstallerInno
	InstallerMSI
	InstallerNSIS
)

// InstallTarget discriminates System vs per-User install scope for payload
// kinds that support both (WindowsExecutable implicitly via HKLM/HKCU is out
// of spec scope; MacOSPackage is the kind that actually carries this set).
type InstallTarget int

const (
	TargetSystem InstallTarget = iota
	TargetUser
)

func (t InstallTarget) String() string {
	if t == TargetUser {
		return "User"
	}
	return "System"
}

// Payload is the tagged union of installable artifact kinds (spec §3).
// Exactly one of the Windows/MacOS/Tarball fields is populated, selected by
// Kind.
type Payload struct {
	Kind PayloadKind
	URL  string
	Size uint64
	InstalledSize uint64

	Windows *WindowsExecutable
	MacOS   *MacOSPackage
	Tarball *TarballPackage
}

// WindowsExecutable is the Windows-specific payload variant.
type WindowsExecutable struct {
	ProductCode    string
	InstallerKind  InstallerKind
	Args           string // explicit install args; empty means "use the template"
	UninstallArgs  string // explicit uninstall args; empty means "use the template"
	RequiresReboot bool
}

// MacOSPackage is the macOS-specific payload variant.
type MacOSPackage struct {
	PkgID          string
	Targets        []InstallTarget
	RequiresReboot bool
}

// TarballPackage is the tarball/prefix-specific payload variant. It carries
// no kind-specific fields beyond size/url on Payload itself; its payload is
// always an xz-compressed tar (spec §3).
type TarballPackage struct{}
