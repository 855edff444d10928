package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/voxline/pkg/assistant/adapters"
)

type openAIAdapter struct {
	client       openai.Client
	defaultModel string
	models       map[string]bool
}

// New builds the adapter. An empty model list accepts any model name.
func New(apiKey, baseURL, defaultModel string, models []string) adapters.ContractAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	m := make(map[string]bool, len(models))
	for _, name := range models {
		m[name] = true
	}
	return &openAIAdapter{
		client:       openai.NewClient(opts...),
		defaultModel: defaultModel,
		models:       m,
	}
}

func (o *openAIAdapter) Name() string { return "openai" }

func (o *openAIAdapter) HasModel(model string) bool {
	return model == "" || len(o.models) == 0 || o.models[model]
}

// Process implements adapters.ContractAdapter.
func (o *openAIAdapter) Process(ctx context.Context, input adapters.ContractInput, emit func(adapters.ContractResponseDelta) error) adapters.ContractResponse {
	res := adapters.ContractResponse{ID: uuid.New(), StartedAt: time.Now()}

	model := input.HandlerModel.Name
	if model == "" {
		model = o.defaultModel
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(input.Msgs))
	for _, msg := range input.Msgs {
		msgs = append(msgs, convertToOpenaiMsg(msg))
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(model),
	})
	defer stream.Close()

	var seq adapters.Counter
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content == "" {
			continue
		}
		if err := emit(adapters.ContractResponseDelta{
			Text:      choice.Delta.Content,
			Index:     seq.Next(),
			Done:      choice.FinishReason != "",
			CreatedAt: time.Now(),
		}); err != nil {
			res.Deltas = seq.Count()
			res.Error = err
			return res
		}
	}
	res.Deltas = seq.Count()
	if err := stream.Err(); err != nil {
		res.Error = fmt.Errorf("openai completion stream: %w", err)
		return res
	}
	res.Done = true
	return res
}

func convertToOpenaiMsg(msg adapters.ContractMessage) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case adapters.ASSISTANT:
		return openai.AssistantMessage(msg.Content)
	case adapters.SYSTEM:
		return openai.SystemMessage(msg.Content)
	}
	return openai.UserMessage(msg.Content)
}
