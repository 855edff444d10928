package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxline/pkg/io/device"
)

const (
	writeWait = 10 * time.Second
	closeWait = time.Second
)

type wsEndpoint struct {
	id         uuid.UUID
	client     *websocket.Conn
	wmu        sync.Mutex
	lastActive atomic.Int64
	closed     atomic.Bool
}

// Close implements device.Endpoint. A close frame is attempted first.
func (w *wsEndpoint) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	// WriteControl is safe alongside a blocked writer
	_ = w.client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWait))
	return w.client.Close()
}

// ID implements device.Endpoint.
func (w *wsEndpoint) ID() device.EndpointID {
	return device.EndpointID(w.id)
}

func (w *wsEndpoint) Touch() {
	w.lastActive.Store(time.Now().UnixNano())
}

// IsAlive implements device.Endpoint.
func (w *wsEndpoint) IsAlive() bool {
	if w.closed.Load() {
		return false
	}
	return w.client.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)) == nil
}

// LastActive implements device.Endpoint.
func (w *wsEndpoint) LastActive() time.Time {
	return time.Unix(0, w.lastActive.Load())
}

// WriteBinary implements device.Endpoint.
func (w *wsEndpoint) WriteBinary(frame []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	_ = w.client.SetWriteDeadline(time.Now().Add(writeWait))
	return w.client.WriteMessage(websocket.BinaryMessage, frame)
}

// WriteJSON implements device.Endpoint.
func (w *wsEndpoint) WriteJSON(v any) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	_ = w.client.SetWriteDeadline(time.Now().Add(writeWait))
	return w.client.WriteJSON(v)
}

// Transport implements device.Endpoint.
func (w *wsEndpoint) Transport() device.Transport {
	return device.TransportWS
}

func New(client *websocket.Conn) device.Endpoint {
	ep := &wsEndpoint{
		id:     uuid.New(),
		client: client,
	}
	ep.Touch()
	return ep
}
