package tts

import (
	"context"
	"fmt"
	"sort"

	"github.com/xpanvictor/voxline/pkg/utils"
)

type Request struct {
	Text  string
	Model string
	Voice string
	// 1.0 is normal pace
	Speed float64
}

// Engine is one text-to-speech backend producing 16-bit mono PCM.
type Engine interface {
	Name() string
	HasVoice(model, voice string) bool
	SampleRate() int
	// Synthesize streams PCM for one phrase through emit, in order.
	Synthesize(ctx context.Context, req Request, emit func(pcm []byte) error) error
}

// Registry selects an Engine from a "backend:model" reference.
type Registry struct {
	engines  map[string]Engine
	fallback string
}

func NewRegistry(fallback string, engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine), fallback: fallback}
	for _, e := range engines {
		r.engines[e.Name()] = e
	}
	if r.fallback == "" && len(engines) > 0 {
		r.fallback = engines[0].Name()
	}
	return r
}

// Resolve maps a "backend:model" reference and voice to an engine and model name.
func (r *Registry) Resolve(ref, voice string) (Engine, string, error) {
	backend, model := utils.SplitModelRef(ref, func(s string) bool { _, ok := r.engines[s]; return ok })
	if backend == "" {
		backend = r.fallback
	}
	e, ok := r.engines[backend]
	if !ok {
		return nil, "", utils.Errorf(utils.KindModelUnavailable, "tts backend %q is not configured", backend)
	}
	if !e.HasVoice(model, voice) {
		return nil, "", utils.Errorf(utils.KindModelUnavailable, "tts voice %q (model %q) not available on %s", voice, model, backend)
	}
	return e, model, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.engines))
	for n := range r.engines {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) String() string {
	return fmt.Sprintf("tts%v(default=%s)", r.Names(), r.fallback)
}

// Chunker regroups an arbitrary PCM byte stream into fixed-size,
// sample-aligned chunks.
type Chunker struct {
	size int
	buf  []byte
	emit func([]byte) error
}

func NewChunker(size int, emit func([]byte) error) *Chunker {
	if size < 2 {
		size = 2
	}
	size -= size % 2
	return &Chunker{size: size, emit: emit}
}

// Write emits every full chunk and keeps the remainder.
func (c *Chunker) Write(p []byte) error {
	c.buf = append(c.buf, p...)
	for len(c.buf) >= c.size {
		chunk := make([]byte, c.size)
		copy(chunk, c.buf[:c.size])
		c.buf = c.buf[c.size:]
		if err := c.emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Flush emits the remainder, trimmed to whole samples.
func (c *Chunker) Flush() error {
	n := len(c.buf) - len(c.buf)%2
	if n == 0 {
		c.buf = nil
		return nil
	}
	chunk := make([]byte, n)
	copy(chunk, c.buf[:n])
	c.buf = nil
	return c.emit(chunk)
}
