package audioring

import (
	"time"

	"github.com/smallnest/ringbuffer"
)

type rb_impl struct {
	size      int
	rb        *ringbuffer.RingBuffer
	startedAt time.Time
}

// Append implements IngestBuffer.
func (r *rb_impl) Append(frame []byte) ([]byte, bool) {
	if len(frame) == 0 {
		return nil, r.rb.Free() == 0
	}
	if r.rb.IsEmpty() {
		r.startedAt = time.Now()
	}

	n := r.rb.Free()
	if n > len(frame) {
		n = len(frame)
	}
	if n > 0 {
		// non-blocking: never writes more than Free()
		_, _ = r.rb.Write(frame[:n])
	}
	if n < len(frame) || r.rb.Free() == 0 {
		return frame[n:], true
	}
	return nil, false
}

// Drain implements IngestBuffer.
func (r *rb_impl) Drain() []byte {
	if r.rb.IsEmpty() {
		return nil
	}
	data := make([]byte, r.rb.Length())
	n, _ := r.rb.Read(data)
	r.rb.Reset()
	return data[:n]
}

// Clear implements IngestBuffer.
func (r *rb_impl) Clear() {
	r.rb.Reset()
}

// Len implements IngestBuffer.
func (r *rb_impl) Len() int {
	return r.rb.Length()
}

// Capacity implements IngestBuffer.
func (r *rb_impl) Capacity() int {
	return r.size
}

func (r *rb_impl) StartedAt() time.Time {
	return r.startedAt
}

func New(size int) IngestBuffer {
	return &rb_impl{
		size: size,
		rb:   ringbuffer.New(size).SetBlocking(false),
	}
}

// NewForDuration sizes the buffer for maxDur of 16-bit audio.
func NewForDuration(maxDur time.Duration, sampleRate, channels int) IngestBuffer {
	if channels <= 0 {
		channels = 1
	}
	size := int(maxDur.Seconds() * float64(sampleRate*2*channels))
	if size <= 0 {
		size = 1024 * 1024
	}
	// keep whole samples
	size -= size % (2 * channels)
	return New(size)
}
