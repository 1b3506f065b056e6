package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"sync"
)

// containerRoot is the one process-wide mutable piece of state in the whole
// engine (spec §9 "Process-wide state"): the root a Container-variant
// ConfigPath resolves against. It is set exactly once, at startup, and never
// mutated afterward.
var (
	containerRootOnce sync.Once
	containerRoot     string
)

// SetContainerRoot sets the process-wide container root. It is a no-op on
// any call after the first, per spec §9's "set it exactly once" contract.
func SetContainerRoot(root string) {
	containerRootOnce.Do(func() {
		containerRoot = root
	})
}

// PathKind discriminates the ConfigPath tagged union (spec §3).
type PathKind int

const (
	// PathFile is a direct filesystem path.
	PathFile PathKind = iota
	// PathContainer is resolved against the process-wide container root.
	PathContainer
)

// Path is Pahkat's abstract ConfigPath: either a direct filesystem File or a
// Container path resolved against SetContainerRoot's value.
type Path struct {
	Kind  PathKind
	Value string // a raw filesystem path (File) or a path relative to the container root (Container)
}

// File constructs a File-kind Path from an absolute filesystem path.
func File(p string) Path { return Path{Kind: PathFile, Value: p} }

// Container constructs a Container-kind Path relative to the process-wide
// container root.
func Container(p string) Path { return Path{Kind: PathContainer, Value: p} }

// ToFilePath resolves the abstract Path to a concrete filesystem path.
func (p Path) ToFilePath() string {
	if p.Kind == PathFile {
		return p.Value
	}
	return filepath.Join(containerRoot, p.Value)
}

// Join appends a path component, preserving the Path's Kind.
func (p Path) Join(elem ...string) Path {
	parts := append([]string{p.Value}, elem...)
	return Path{Kind: p.Kind, Value: filepath.Join(parts...)}
}

func (p Path) String() string {
	return p.ToFilePath()
}

// MarshalText implements encoding.TextMarshaler so a Path round-trips
// through TOML as a plain string, tagged with a "file://" or "container://"
// scheme prefix to preserve its Kind.
func (p Path) MarshalText() ([]byte, error) {
	scheme := "file"
	if p.Kind == PathContainer {
		scheme = "container"
	}
	u := url.URL{Scheme: scheme, Path: filepath.ToSlash(p.Value)}
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, reversing MarshalText.
// Everything after the scheme prefix is the path, so a relative Container
// value keeps its first segment rather than having it read as a URL host.
func (p *Path) UnmarshalText(text []byte) error {
	s := string(text)
	p.Kind = PathFile
	if rest, ok := strings.CutPrefix(s, "container://"); ok {
		p.Kind = PathContainer
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "file://"); ok {
		s = rest
	}
	v, err := url.PathUnescape(s)
	if err != nil {
		return err
	}
	p.Value = filepath.FromSlash(v)
	return nil
}
