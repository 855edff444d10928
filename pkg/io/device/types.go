package device

import (
	"time"

	"github.com/google/uuid"
)

type Transport string

const (
	TransportWS Transport = "ws"
)

type OutputMessageType int

const (
	EText OutputMessageType = iota
	EAudio
	EEvent
)

type EndpointID uuid.UUID

func (id EndpointID) String() string { return uuid.UUID(id).String() }

// Endpoint is the client side of one voice connection. Implementations
// must be safe for one writer goroutine plus concurrent Close.
type Endpoint interface {
	// Identity
	ID() EndpointID
	Transport() Transport
	// abstraction for publisher
	WriteJSON(v any) error
	WriteBinary(frame []byte) error
	Touch()
	// lifecyle
	IsAlive() bool
	Close() error
	LastActive() time.Time
}
