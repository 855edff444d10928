package router

import (
	"context"
	"sort"

	"github.com/xpanvictor/voxline/pkg/assistant/adapters"
	"github.com/xpanvictor/voxline/pkg/utils"
)

// DefaultRP resolves "backend:model" references, falling back to the
// configured default backend and model.
type DefaultRP struct {
	isBackend func(string) bool
	fallback  adapters.ContractSelectedModel
}

func (p *DefaultRP) Select(ref string) adapters.ContractSelectedModel {
	backend, model := utils.SplitModelRef(ref, p.isBackend)
	if backend == "" && model == "" {
		return p.fallback
	}
	if backend == "" {
		backend = p.fallback.Backend
	}
	return adapters.ContractSelectedModel{Backend: backend, Name: model}
}

// New builds a multiplexer over the adapters. defaultRef is used for
// sessions that do not name a model.
func New(defaultRef string, ads ...adapters.ContractAdapter) *Mux {
	adm := make(map[string]AdapterPack, len(ads))
	for _, ad := range ads {
		adm[ad.Name()] = AdapterPack{Name: ad.Name(), Adapter: ad}
	}
	isBackend := func(s string) bool { _, ok := adm[s]; return ok }

	backend, model := utils.SplitModelRef(defaultRef, isBackend)
	if backend == "" && len(ads) > 0 {
		backend = ads[0].Name()
	}
	return &Mux{
		RouterPolicy: &DefaultRP{
			isBackend: isBackend,
			fallback:  adapters.ContractSelectedModel{Backend: backend, Name: model},
		},
		AdapterMap: adm,
	}
}

func GenerateModelName(m adapters.ContractSelectedModel) string {
	return m.String()
}

// Resolve validates a reference without starting generation.
func (m *Mux) Resolve(ref string) (adapters.ContractAdapter, adapters.ContractSelectedModel, error) {
	sm := m.RouterPolicy.Select(ref)
	pack, ok := m.AdapterMap[sm.Backend]
	if !ok {
		return nil, sm, utils.Errorf(utils.KindModelUnavailable, "llm backend %q is not configured", sm.Backend)
	}
	if !pack.Adapter.HasModel(sm.Name) {
		return nil, sm, utils.Errorf(utils.KindModelUnavailable, "llm model %q not available on %s", sm.Name, sm.Backend)
	}
	return pack.Adapter, sm, nil
}

// Stream routes input to the adapter serving ref.
func (m *Mux) Stream(
	ctx context.Context,
	ref string,
	input adapters.ContractInput,
	emit func(adapters.ContractResponseDelta) error,
) adapters.ContractResponse {
	ad, sm, err := m.Resolve(ref)
	if err != nil {
		return adapters.ContractResponse{Error: err}
	}
	input.HandlerModel = sm
	return ad.Process(ctx, input, emit)
}

func (m *Mux) Backends() []string {
	out := make([]string, 0, len(m.AdapterMap))
	for name := range m.AdapterMap {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
