package query

import (
	"testing"

	"github.com/divvun/pahkat/pkg/model"
	"github.com/divvun/pahkat/pkg/version"
)

func descriptorFixture() *model.Descriptor {
	return &model.Descriptor{
		ID: "foo",
		Releases: []model.Release{
			{
				Version: version.Parse("2.0.0"),
				Channel: "nightly",
				Targets: []model.Target{
					{Platform: "linux", Payload: model.Payload{Kind: model.PayloadTarballPackage}},
				},
			},
			{
				Version: version.Parse("1.0.0"),
				Channel: "",
				Targets: []model.Target{
					{Platform: "windows", Arch: "x86_64", Payload: model.Payload{Kind: model.PayloadWindowsExecutable}},
					{Platform: "linux", Payload: model.Payload{Kind: model.PayloadTarballPackage}},
				},
			},
		},
	}
}

func TestResolveSkipsNonMatchingChannel(t *testing.T) {
	d := descriptorFixture()
	q := ReleaseQuery{Platform: "linux", Channels: []string{""}, Payloads: []model.PayloadKind{model.PayloadTarballPackage}}

	match, ok := Resolve(q, d)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Release.Version.String() != "1.0.0" {
		t.Errorf("resolved version = %s, want 1.0.0 (nightly release is skipped when only the default channel is requested)", match.Release.Version.String())
	}
}

func TestResolveWithExplicitChannel(t *testing.T) {
	d := descriptorFixture()
	q := ReleaseQuery{
		Platform: "linux",
		Channels: []string{"nightly"},
		Payloads: []model.PayloadKind{model.PayloadTarballPackage},
	}

	match, ok := Resolve(q, d)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Release.Version.String() != "2.0.0" {
		t.Errorf("resolved version = %s, want 2.0.0", match.Release.Version.String())
	}
}

func TestResolveArchMismatch(t *testing.T) {
	d := descriptorFixture()
	q := ReleaseQuery{
		Platform: "windows",
		Arch:     "aarch64",
		Payloads: []model.PayloadKind{model.PayloadWindowsExecutable},
	}

	if _, ok := Resolve(q, d); ok {
		t.Error("expected no match for mismatched arch")
	}
}

func TestResolveNoMatchingPlatform(t *testing.T) {
	d := descriptorFixture()
	q := ReleaseQuery{Platform: "macos", Payloads: []model.PayloadKind{model.PayloadMacOSPackage}}

	if _, ok := Resolve(q, d); ok {
		t.Error("expected no match on an absent platform")
	}
}

func TestVersionQueryMatches(t *testing.T) {
	v := version.Parse("1.2.3")

	if !(Any().Matches(v)) {
		t.Error("Any() should match any semantic version")
	}

	exact := VersionQuery{Kind: VersionMatch, Mask: "1.2.3"}
	if !exact.Matches(v) {
		t.Error("exact mask should match identical version string")
	}
	if exact.Matches(version.Parse("1.2.4")) {
		t.Error("exact mask should not match a different version")
	}
}

func TestDefaultPayloadsPerPlatform(t *testing.T) {
	if len(DefaultPayloads()) == 0 {
		t.Error("expected at least one default payload kind for the running GOOS")
	}
}
