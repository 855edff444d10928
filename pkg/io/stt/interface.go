package stt

import (
	"context"
	"fmt"
	"sort"

	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
	"github.com/xpanvictor/voxline/pkg/utils"
)

type Request struct {
	Utterance audioring.Utterance
	Model     string
	Language  string
}

// Engine is one speech-to-text backend.
type Engine interface {
	Name() string
	// HasModel reports whether model ("" = backend default) is served.
	HasModel(model string) bool
	// Transcribe returns the final text. Engines that stream hypotheses
	// report them through onInterim before returning.
	Transcribe(ctx context.Context, req Request, onInterim func(text string)) (string, error)
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

// Resolve maps a "backend:model" reference to an engine and model name.
func (r *Registry) Resolve(ref string) (Engine, string, error) {
	backend, model := utils.SplitModelRef(ref, func(s string) bool { _, ok := r.engines[s]; return ok })
	if backend == "" {
		backend = r.fallback
	}
	e, ok := r.engines[backend]
	if !ok {
		return nil, "", utils.Errorf(utils.KindModelUnavailable, "stt backend %q is not configured", backend)
	}
	if !e.HasModel(model) {
		return nil, "", utils.Errorf(utils.KindModelUnavailable, "stt model %q not available on %s", model, backend)
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
	return fmt.Sprintf("stt%v(default=%s)", r.Names(), r.fallback)
}
