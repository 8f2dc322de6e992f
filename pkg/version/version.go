// Package version provides the client's protocol version and the Version
// descriptor sent to servers.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

// Protocol version implemented by this client.
const (
	Major uint16 = 1
	Minor uint8  = 3
	Patch uint8  = 0
)

// Descriptor constants.
const (
	// ReleasePrefix starts the release string sent to servers.
	ReleasePrefix = "mumble-go"

	// UnknownRelease is used when no build version is available.
	UnknownRelease = "Unknown"

	// OS and OSVersion are placeholders; no host introspection is done.
	OS        = "mumble-go OS"
	OSVersion = "1.3.3.7"
)

// buildVersion may be set with -ldflags "-X .../pkg/version.buildVersion=v1.2.3".
var buildVersion string

// ProtocolVersion is a parsed "major.minor.patch" version.
type ProtocolVersion struct {
	Major uint16
	Minor uint8
	Patch uint8
}

// Current returns the protocol version implemented by this client.
func Current() ProtocolVersion {
	return ProtocolVersion{Major: Major, Minor: Minor, Patch: Patch}
}

// Parse parses a "major.minor.patch" version string.
func Parse(s string) (ProtocolVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	patch, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad patch component", s)
	}

	return ProtocolVersion{Major: uint16(major), Minor: uint8(minor), Patch: uint8(patch)}, nil
}

// FromPacked unpacks a wire version number.
func FromPacked(v uint32) ProtocolVersion {
	major, minor, patch := wire.UnpackVersion(v)
	return ProtocolVersion{Major: major, Minor: minor, Patch: patch}
}

// String returns the version as "major.minor.patch".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Packed returns (major<<16)|(minor<<8)|patch.
func (v ProtocolVersion) Packed() uint32 {
	return wire.PackVersion(v.Major, v.Minor, v.Patch)
}

// Compatible returns true if the other version has the same major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// Release returns the release string, "mumble-go <build version>".
func Release() string {
	return ReleasePrefix + " " + releaseVersion(buildVersion, debug.ReadBuildInfo)
}

func releaseVersion(override string, readBuildInfo func() (*debug.BuildInfo, bool)) string {
	if override != "" {
		return override
	}
	info, ok := readBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return UnknownRelease
	}
	return info.Main.Version
}

// Descriptor returns the Version message this client sends.
func Descriptor() wire.Version {
	return wire.Version{
		Version:   Current().Packed(),
		Release:   Release(),
		OS:        OS,
		OSVersion: OSVersion,
	}
}
