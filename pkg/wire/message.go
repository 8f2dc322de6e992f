package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is a protobuf payload that can be carried in a frame.
type Message interface {
	// MessageType returns the frame type identifier for this message.
	MessageType() MessageType

	// Size returns the encoded payload size in bytes.
	Size() int

	// Marshal encodes the message in protobuf wire format.
	Marshal() ([]byte, error)
}

// Field numbers from Mumble.proto.
const (
	versionFieldVersion   protowire.Number = 1
	versionFieldRelease   protowire.Number = 2
	versionFieldOS        protowire.Number = 3
	versionFieldOSVersion protowire.Number = 4

	authFieldUsername protowire.Number = 1
	authFieldPassword protowire.Number = 2
	authFieldOpus     protowire.Number = 5

	pingFieldTimestamp protowire.Number = 1
)

// Version describes the client and host it runs on.
type Version struct {
	// Version is the packed protocol version, see PackVersion.
	Version uint32

	// Release is a free-form client release name.
	Release string

	// OS is the operating system name.
	OS string

	// OSVersion is the operating system version.
	OSVersion string
}

// MessageType implements Message.
func (*Version) MessageType() MessageType { return MessageTypeVersion }

// Size implements Message.
func (v *Version) Size() int {
	n := sizeVarint(versionFieldVersion, uint64(v.Version))
	n += sizeString(versionFieldRelease, v.Release)
	n += sizeString(versionFieldOS, v.OS)
	n += sizeString(versionFieldOSVersion, v.OSVersion)
	return n
}

// Marshal implements Message.
func (v *Version) Marshal() ([]byte, error) {
	b := make([]byte, 0, v.Size())
	b = appendVarint(b, versionFieldVersion, uint64(v.Version))
	b = appendString(b, versionFieldRelease, v.Release)
	b = appendString(b, versionFieldOS, v.OS)
	b = appendString(b, versionFieldOSVersion, v.OSVersion)
	return b, nil
}

// Unmarshal decodes a Version payload. Unknown fields are skipped.
func (v *Version) Unmarshal(data []byte) error {
	*v = Version{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == versionFieldVersion && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			v.Version = uint32(x)
			return n
		case num == versionFieldRelease && typ == protowire.BytesType:
			return consumeString(b, &v.Release)
		case num == versionFieldOS && typ == protowire.BytesType:
			return consumeString(b, &v.OS)
		case num == versionFieldOSVersion && typ == protowire.BytesType:
			return consumeString(b, &v.OSVersion)
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// Authenticate carries the user's credentials and codec capabilities.
type Authenticate struct {
	Username string
	Password string

	// Opus declares Opus codec support.
	Opus bool
}

// MessageType implements Message.
func (*Authenticate) MessageType() MessageType { return MessageTypeAuthenticate }

// Size implements Message.
func (a *Authenticate) Size() int {
	n := sizeString(authFieldUsername, a.Username)
	n += sizeString(authFieldPassword, a.Password)
	if a.Opus {
		n += sizeVarint(authFieldOpus, 1)
	}
	return n
}

// Marshal implements Message.
func (a *Authenticate) Marshal() ([]byte, error) {
	b := make([]byte, 0, a.Size())
	b = appendString(b, authFieldUsername, a.Username)
	b = appendString(b, authFieldPassword, a.Password)
	if a.Opus {
		b = appendVarint(b, authFieldOpus, protowire.EncodeBool(true))
	}
	return b, nil
}

// Unmarshal decodes an Authenticate payload. Unknown fields are skipped.
func (a *Authenticate) Unmarshal(data []byte) error {
	*a = Authenticate{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == authFieldUsername && typ == protowire.BytesType:
			return consumeString(b, &a.Username)
		case num == authFieldPassword && typ == protowire.BytesType:
			return consumeString(b, &a.Password)
		case num == authFieldOpus && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			a.Opus = protowire.DecodeBool(x)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// Ping is the keep-alive message. The client sends it with all fields at
// their defaults, which encodes to an empty payload.
type Ping struct {
	// Timestamp is echoed back by the server when set.
	Timestamp uint64
}

// MessageType implements Message.
func (*Ping) MessageType() MessageType { return MessageTypePing }

// Size implements Message.
func (p *Ping) Size() int {
	return sizeVarint(pingFieldTimestamp, p.Timestamp)
}

// Marshal implements Message.
func (p *Ping) Marshal() ([]byte, error) {
	b := make([]byte, 0, p.Size())
	return appendVarint(b, pingFieldTimestamp, p.Timestamp), nil
}

// Unmarshal decodes a Ping payload. Statistics fields are skipped.
func (p *Ping) Unmarshal(data []byte) error {
	*p = Ping{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == pingFieldTimestamp && typ == protowire.VarintType {
			x, n := protowire.ConsumeVarint(b)
			p.Timestamp = x
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// Compile-time interface satisfaction checks.
var (
	_ Message = (*Version)(nil)
	_ Message = (*Authenticate)(nil)
	_ Message = (*Ping)(nil)
)

// Zero varints are omitted. String fields are always written, empty or not,
// so the server sees them as present.

func sizeVarint(num protowire.Number, v uint64) int {
	if v == 0 {
		return 0
	}
	return protowire.SizeTag(num) + protowire.SizeVarint(v)
}

func sizeString(num protowire.Number, s string) int {
	return protowire.SizeTag(num) + protowire.SizeBytes(len(s))
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func consumeString(b []byte, dst *string) int {
	s, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = s
	}
	return n
}

// consumeFields walks every field in data, handing the bytes after each tag
// to fn. fn returns the number of value bytes it consumed.
func consumeFields(data []byte, fn func(protowire.Number, protowire.Type, []byte) int) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("invalid field tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		m := fn(num, typ, data)
		if m < 0 {
			return fmt.Errorf("invalid value for field %d: %w", num, protowire.ParseError(m))
		}
		data = data[m:]
	}
	return nil
}
