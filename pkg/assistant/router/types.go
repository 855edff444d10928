package router

import "github.com/xpanvictor/voxline/pkg/assistant/adapters"

type AdapterPack struct {
	Adapter adapters.ContractAdapter
	Name    string
}

type Mux struct {
	RouterPolicy RoutePolicy
	AdapterMap   map[string]AdapterPack
}

type RoutePolicy interface {
	// Select turns a model reference into a backend and model name.
	Select(ref string) adapters.ContractSelectedModel
}
