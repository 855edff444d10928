// Package devicetest provides an in-memory device.Endpoint for tests.
package devicetest

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxline/pkg/io/device"
)

// Event is one recorded write. Binary writes have Type "audio".
type Event struct {
	Type  string
	JSON  map[string]any
	Audio []byte
}

type Recorder struct {
	id uuid.UUID

	mu     sync.Mutex
	events []Event
	closed bool
	// Gate, when set, is received from before every write.
	Gate chan struct{}
	// FailAfter makes the n-th write (1-based) and later ones fail.
	FailAfter int
	writes    int
}

func NewRecorder() *Recorder {
	return &Recorder{id: uuid.New()}
}

func (r *Recorder) ID() device.EndpointID       { return device.EndpointID(r.id) }
func (r *Recorder) Transport() device.Transport { return device.TransportWS }
func (r *Recorder) Touch()                      {}
func (r *Recorder) LastActive() time.Time       { return time.Now() }

func (r *Recorder) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Recorder) before() error {
	if r.Gate != nil {
		<-r.Gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.closed || (r.FailAfter > 0 && r.writes >= r.FailAfter) {
		return errors.New("endpoint closed")
	}
	return nil
}

func (r *Recorder) WriteJSON(v any) error {
	if err := r.before(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	t, _ := m["type"].(string)
	r.mu.Lock()
	r.events = append(r.events, Event{Type: t, JSON: m})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) WriteBinary(frame []byte) error {
	if err := r.before(); err != nil {
		return err
	}
	cp := append([]byte(nil), frame...)
	r.mu.Lock()
	r.events = append(r.events, Event{Type: "audio", Audio: cp})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types, with status events expanded to
// "status:<state>".
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, Label(e))
	}
	return out
}

func Label(e Event) string {
	if e.Type == "status" {
		s, _ := e.JSON["state"].(string)
		return "status:" + s
	}
	return e.Type
}

// Has reports whether any event carries the label.
func (r *Recorder) Has(label string) bool {
	for _, t := range r.Types() {
		if t == label {
			return true
		}
	}
	return false
}
