package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/xpanvictor/voxline/internal/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider wraps one Gemini API client shared by every model.
type GeminiProvider struct {
	client *genai.Client
	models map[string]bool
}

func New(ctx context.Context, cfg config.GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	models := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m] = true
	}
	return &GeminiProvider{
		client: client,
		models: models,
	}, nil
}

// Stream starts a chat seeded with history and streams the reply to parts.
func (gp *GeminiProvider) Stream(
	ctx context.Context,
	modelName string,
	system string,
	history []*genai.Content,
	parts []genai.Part,
	fn func(resp *genai.GenerateContentResponse) error,
) error {
	if gp.client == nil {
		return fmt.Errorf("gemini client is not initialized")
	}
	model := gp.client.GenerativeModel(modelName)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := model.StartChat()
	cs.History = history

	iter := cs.SendMessageStream(ctx, parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive from Gemini stream: %w", err)
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}

func (gp *GeminiProvider) HasModel(model string) bool {
	return len(gp.models) == 0 || gp.models[model]
}

func (gp *GeminiProvider) Close() error {
	return gp.client.Close()
}
