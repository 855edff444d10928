package ollama

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/xpanvictor/voxline/pkg/assistant/adapters"
)

// chatter is the part of the ollama provider the adapter needs.
type chatter interface {
	Chat(ctx context.Context, req api.ChatRequest, fn api.ChatResponseFunc) error
	HasModel(model string) bool
}

type ollamaAdapter struct {
	op           chatter
	defaultModel string
}

func New(provider chatter, defaultModel string) adapters.ContractAdapter {
	return &ollamaAdapter{op: provider, defaultModel: defaultModel}
}

func (o *ollamaAdapter) Name() string { return "ollama" }

func (o *ollamaAdapter) HasModel(model string) bool {
	if model == "" {
		model = o.defaultModel
	}
	return model != "" && o.op.HasModel(model)
}

func (o ollamaAdapter) ConvertMsgs(msgs []adapters.ContractMessage) []api.Message {
	converted := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		converted = append(converted, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return converted
}

// Process implements adapters.ContractAdapter.
func (o *ollamaAdapter) Process(ctx context.Context, input adapters.ContractInput, emit func(adapters.ContractResponseDelta) error) adapters.ContractResponse {
	res := adapters.ContractResponse{ID: uuid.New(), StartedAt: time.Now()}

	model := input.HandlerModel.Name
	if model == "" {
		model = o.defaultModel
	}
	stream := true
	req := api.ChatRequest{
		Model:    model,
		Messages: o.ConvertMsgs(input.Msgs),
		Stream:   &stream,
	}

	var seq adapters.Counter
	err := o.op.Chat(ctx, req, func(cr api.ChatResponse) error {
		if cr.Message.Content == "" {
			return nil
		}
		return emit(adapters.ContractResponseDelta{
			Text:      cr.Message.Content,
			Index:     seq.Next(),
			Done:      cr.Done,
			CreatedAt: cr.CreatedAt,
		})
	})
	res.Deltas = seq.Count()
	if err != nil {
		res.Error = err
		return res
	}
	res.Done = true
	return res
}
