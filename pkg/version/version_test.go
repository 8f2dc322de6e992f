package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  ProtocolVersion
	}{
		{"1.3.0", ProtocolVersion{1, 3, 0}},
		{"1.2.4", ProtocolVersion{1, 2, 4}},
		{"2.0.0", ProtocolVersion{2, 0, 0}},
		{"10.23.255", ProtocolVersion{10, 23, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, v, tt.want)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"1",
		"1.3",
		"abc",
		"1.3.0.0",
		"1.x.0",
		"1.3.",
		".3.0",
		"1.256.0",
		"1.3.-1",
		"70000.0.0",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should have returned an error", input)
			}
		})
	}
}

func TestPacked(t *testing.T) {
	v := Current()
	if got := v.Packed(); got != 0x00010300 {
		t.Errorf("Packed() = %#x, want 0x00010300", got)
	}
	if got := FromPacked(v.Packed()); got != v {
		t.Errorf("FromPacked() = %+v, want %+v", got, v)
	}
}

func TestCompatible(t *testing.T) {
	v13 := ProtocolVersion{1, 3, 0}

	if !v13.Compatible(ProtocolVersion{1, 2, 4}) {
		t.Error("1.3.0 should be compatible with 1.2.4")
	}
	if v13.Compatible(ProtocolVersion{2, 0, 0}) {
		t.Error("1.3.0 should not be compatible with 2.0.0")
	}
}

func TestReleaseVersion(t *testing.T) {
	build := func(v string, ok bool) func() (*debug.BuildInfo, bool) {
		return func() (*debug.BuildInfo, bool) {
			if !ok {
				return nil, false
			}
			info := &debug.BuildInfo{}
			info.Main.Version = v
			return info, true
		}
	}

	tests := []struct {
		name     string
		override string
		read     func() (*debug.BuildInfo, bool)
		want     string
	}{
		{"override", "v9.9.9", build("v1.0.0", true), "v9.9.9"},
		{"module version", "", build("v1.0.0", true), "v1.0.0"},
		{"devel", "", build("(devel)", true), UnknownRelease},
		{"empty", "", build("", true), UnknownRelease},
		{"no build info", "", build("", false), UnknownRelease},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := releaseVersion(tt.override, tt.read); got != tt.want {
				t.Errorf("releaseVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescriptor(t *testing.T) {
	d := Descriptor()

	if d.Version != Current().Packed() {
		t.Errorf("Version = %#x, want %#x", d.Version, Current().Packed())
	}
	if !strings.HasPrefix(d.Release, ReleasePrefix+" ") {
		t.Errorf("Release = %q, want prefix %q", d.Release, ReleasePrefix+" ")
	}
	if d.OS != OS || d.OSVersion != OSVersion {
		t.Errorf("OS = %q/%q, want %q/%q", d.OS, d.OSVersion, OS, OSVersion)
	}
}
