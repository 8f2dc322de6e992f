package log

import (
	"time"

	"github.com/mumble-protocol/mumble-go/pkg/wire"
)

// Event is one entry in a session log. Exactly one of Frame, StateChange,
// ControlMsg and Error is set. Keys are small integers on disk; never
// renumber them.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`

	// RemoteAddr is the server as host:port.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Username is set once the session has authenticated.
	Username string `cbor:"7,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// FrameEvent records one control-channel frame as it crossed the wire.
type FrameEvent struct {
	Type wire.MessageType `cbor:"1,keyasint"`

	// Size counts the header plus payload.
	Size int `cbor:"2,keyasint"`

	// Data holds the raw frame, cut to the logger's limit when Truncated.
	Data      []byte `cbor:"3,keyasint,omitempty"`
	Truncated bool   `cbor:"4,keyasint,omitempty"`

	// Redacted frames carry credentials; Data is left empty.
	Redacted bool `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent records a connection or session transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// ControlMsgEvent records keep-alive traffic.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`
}

// ErrorEventData records a failure and the operation it interrupted.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context names the operation, e.g. "send AUTHENTICATE".
	Context string `cbor:"4,keyasint,omitempty"`
}

// Direction is the flow of a frame relative to this client.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// Layer is where an event was captured. Value 1 is unused.
type Layer uint8

const (
	// LayerTransport sees framed bytes.
	LayerTransport Layer = 0
	// LayerSession sees the supervisor's lifecycle.
	LayerSession Layer = 2
)

// Category is the kind of event.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryControl
	CategoryState
	CategoryError
)

// StateEntity is what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntitySession
)

// ControlMsgType is the kind of keep-alive traffic.
type ControlMsgType uint8

const (
	ControlMsgPing ControlMsgType = iota
)

var (
	directionNames   = []string{DirectionIn: "IN", DirectionOut: "OUT"}
	layerNames       = []string{LayerTransport: "TRANSPORT", LayerSession: "SESSION"}
	categoryNames    = []string{CategoryMessage: "MESSAGE", CategoryControl: "CONTROL", CategoryState: "STATE", CategoryError: "ERROR"}
	stateEntityNames = []string{StateEntityConnection: "CONNECTION", StateEntitySession: "SESSION"}
	controlMsgNames  = []string{ControlMsgPing: "PING"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) && names[v] != "" {
		return names[v]
	}
	return "UNKNOWN"
}

func (d Direction) String() string      { return enumName(directionNames, uint8(d)) }
func (l Layer) String() string          { return enumName(layerNames, uint8(l)) }
func (c Category) String() string       { return enumName(categoryNames, uint8(c)) }
func (s StateEntity) String() string    { return enumName(stateEntityNames, uint8(s)) }
func (c ControlMsgType) String() string { return enumName(controlMsgNames, uint8(c)) }
