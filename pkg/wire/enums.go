package wire

// MessageType identifies the protobuf message carried in a frame.
type MessageType uint16

const (
	// MessageTypeVersion carries the client/server version descriptor.
	MessageTypeVersion MessageType = 0

	// MessageTypeUDPTunnel carries tunnelled voice packets. Reserved.
	MessageTypeUDPTunnel MessageType = 1

	// MessageTypeAuthenticate carries the user's credentials.
	MessageTypeAuthenticate MessageType = 2

	// MessageTypePing is the keep-alive message.
	MessageTypePing MessageType = 3
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeVersion:
		return "VERSION"
	case MessageTypeUDPTunnel:
		return "UDP_TUNNEL"
	case MessageTypeAuthenticate:
		return "AUTHENTICATE"
	case MessageTypePing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}
