package websocket

import (
	"context"
	"time"

	xio "github.com/xpanvictor/voxline/pkg/io"
	"github.com/xpanvictor/voxline/pkg/io/device"
)

// Connection is one live client socket bound to a voice session.
type Connection struct {
	SessionID   string
	Namespace   string
	Project     string
	Resumed     bool
	Endpoint    device.Endpoint
	Publisher   *xio.Publisher
	ConnectedAt time.Time

	cancel context.CancelFunc
}

// ConnectionInfo is the stats view of a Connection.
type ConnectionInfo struct {
	SessionID   string             `json:"session_id"`
	Project     string             `json:"project"`
	Resumed     bool               `json:"resumed"`
	ConnectedAt time.Time          `json:"connected_at"`
	LastActive  time.Time          `json:"last_active"`
	Outbound    xio.PublisherStats `json:"outbound"`
}

func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		SessionID:   c.SessionID,
		Project:     c.Namespace + "/" + c.Project,
		Resumed:     c.Resumed,
		ConnectedAt: c.ConnectedAt,
		LastActive:  c.Endpoint.LastActive(),
		Outbound:    c.Publisher.Stats(),
	}
}

// Close cancels the connection's pipeline; the handler tears the socket down.
func (c *Connection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}
