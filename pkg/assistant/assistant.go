package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxline/pkg/assistant/adapters"
	"github.com/xpanvictor/voxline/pkg/assistant/router"
	"github.com/xpanvictor/voxline/pkg/utils"
)

type routedAssistant struct {
	mux *router.Mux
}

func New(mux *router.Mux) Assistant {
	return &routedAssistant{mux: mux}
}

func (a *routedAssistant) Validate(modelRef string) error {
	_, _, err := a.mux.Resolve(modelRef)
	return err
}

func (a *routedAssistant) StreamPrompt(ctx context.Context, input AssistantInput, onDelta func(string) error) (*AssistantOutput, error) {
	var reply strings.Builder
	res := a.mux.Stream(ctx, input.ModelRef, NewContractInput(input), func(d adapters.ContractResponseDelta) error {
		reply.WriteString(d.Text)
		return onDelta(d.Text)
	})
	if res.Error != nil {
		if utils.IsKind(res.Error, utils.KindModelUnavailable) {
			return nil, res.Error
		}
		return nil, utils.StageError(utils.KindGeneration, "generation", res.Error)
	}
	return &AssistantOutput{
		Id: res.ID.String(),
		Response: AssistantMessage{
			Content:   reply.String(),
			CreatedAt: time.Now(),
			MsgRole:   ASSISTANT,
		},
		Deltas:    res.Deltas,
		StartedAt: res.StartedAt,
	}, nil
}

// NewContractInput flattens the system prompt, history and prompt into
// adapter messages.
func NewContractInput(input AssistantInput) adapters.ContractInput {
	msgs := make([]adapters.ContractMessage, 0, len(input.History)+2)
	if input.SystemPrompt != "" {
		msgs = append(msgs, adapters.ContractMessage{Role: adapters.SYSTEM, Content: input.SystemPrompt})
	}
	for _, m := range input.History {
		msgs = append(msgs, adapters.ContractMessage{
			Role:      adapters.MsgRole(m.MsgRole),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	msgs = append(msgs, adapters.ContractMessage{Role: adapters.USER, Content: input.Prompt, CreatedAt: time.Now()})
	return adapters.ContractInput{ID: uuid.New(), Msgs: msgs}
}
