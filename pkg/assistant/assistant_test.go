package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/voxline/pkg/assistant/adapters"
	"github.com/xpanvictor/voxline/pkg/assistant/router"
	"github.com/xpanvictor/voxline/pkg/utils"
)

type scripted struct {
	deltas []string
	err    error
	input  adapters.ContractInput
}

func (s *scripted) Name() string           { return "ollama" }
func (s *scripted) HasModel(m string) bool { return m == "" || m == "llama3" }

func (s *scripted) Process(ctx context.Context, in adapters.ContractInput, emit func(adapters.ContractResponseDelta) error) adapters.ContractResponse {
	s.input = in
	var c adapters.Counter
	for _, d := range s.deltas {
		if err := emit(adapters.ContractResponseDelta{Text: d, Index: c.Next()}); err != nil {
			return adapters.ContractResponse{Error: err}
		}
	}
	return adapters.ContractResponse{Done: true, Deltas: c.Count(), Error: s.err}
}

func TestStreamPromptCollectsReply(t *testing.T) {
	ad := &scripted{deltas: []string{"Hi", " there."}}
	a := New(router.New("ollama:llama3", ad))

	var deltas []string
	out, err := a.StreamPrompt(context.Background(), AssistantInput{
		SystemPrompt: "be brief",
		History:      []AssistantMessage{{MsgRole: USER, Content: "a"}, {MsgRole: ASSISTANT, Content: "b"}},
		Prompt:       "hello",
	}, func(s string) error { deltas = append(deltas, s); return nil })

	require.NoError(t, err)
	assert.Equal(t, "Hi there.", out.Response.Content)
	assert.Equal(t, []string{"Hi", " there."}, deltas)
	require.Len(t, ad.input.Msgs, 4)
	assert.Equal(t, adapters.SYSTEM, ad.input.Msgs[0].Role)
	assert.Equal(t, "hello", ad.input.Msgs[3].Content)
	assert.Equal(t, "llama3", ad.input.HandlerModel.Name)
}

func TestStreamPromptErrors(t *testing.T) {
	a := New(router.New("ollama", &scripted{err: errors.New("boom")}))

	_, err := a.StreamPrompt(context.Background(), AssistantInput{Prompt: "x"}, func(string) error { return nil })
	assert.True(t, utils.IsKind(err, utils.KindGeneration))

	_, err = a.StreamPrompt(context.Background(), AssistantInput{Prompt: "x", ModelRef: "openai:gpt-4o"}, func(string) error { return nil })
	assert.True(t, utils.IsKind(err, utils.KindModelUnavailable))
	assert.Error(t, a.Validate("phi3"))
	assert.NoError(t, a.Validate(""))
}
