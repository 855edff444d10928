package ollama

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"
	"github.com/xpanvictor/voxline/internal/config"
	"github.com/xpanvictor/voxline/pkg/Logger"
)

// OllamaProvider spreads chat requests over a farm of ollama servers.
type OllamaProvider struct {
	ollamafarm *ollamafarm.Farm
	models     map[string]bool
}

func New(cfg config.OllamaConfig, logger *Logger.Logger) *OllamaProvider {
	farm := ollamafarm.New()

	// register servers
	for _, srv := range cfg.Servers {
		if err := farm.RegisterURL(srv, nil); err != nil {
			logger.Errorf("ollama server %s not registered: %v", srv, err)
		}
	}

	models := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m] = true
	}
	return &OllamaProvider{
		ollamafarm: farm,
		models:     models,
	}
}

func (o *OllamaProvider) Chat(
	ctx context.Context,
	req api.ChatRequest,
	fn api.ChatResponseFunc,
) error {
	// pick first available client
	ollama := o.ollamafarm.First(&ollamafarm.Where{Offline: false})
	if ollama != nil {
		return ollama.Client().Chat(ctx, &req, fn)
	}
	return fmt.Errorf("no ollama server online for model %v", req.Model)
}

// HasModel accepts everything when no model list is configured.
func (o *OllamaProvider) HasModel(model string) bool {
	return len(o.models) == 0 || o.models[model]
}

func (o *OllamaProvider) GetAvailableModels() []string {
	out := make([]string, 0, len(o.models))
	for m := range o.models {
		out = append(out, m)
	}
	return out
}
