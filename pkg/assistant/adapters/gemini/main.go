package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/xpanvictor/voxline/pkg/assistant/adapters"
)

type streamer interface {
	Stream(ctx context.Context, model, system string, history []*genai.Content, parts []genai.Part, fn func(*genai.GenerateContentResponse) error) error
	HasModel(model string) bool
}

type geminiAdapter struct {
	gp           streamer
	defaultModel string
}

func New(provider streamer, defaultModel string) adapters.ContractAdapter {
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash-lite"
	}
	return &geminiAdapter{gp: provider, defaultModel: defaultModel}
}

func (g *geminiAdapter) Name() string { return "gemini" }

func (g *geminiAdapter) HasModel(model string) bool {
	if model == "" {
		model = g.defaultModel
	}
	return g.gp.HasModel(model)
}

// Process implements adapters.ContractAdapter.
func (g *geminiAdapter) Process(ctx context.Context, input adapters.ContractInput, emit func(adapters.ContractResponseDelta) error) adapters.ContractResponse {
	res := adapters.ContractResponse{ID: uuid.New(), StartedAt: time.Now()}

	model := input.HandlerModel.Name
	if model == "" {
		model = g.defaultModel
	}
	system, msgs := input.SplitSystem()
	if len(msgs) == 0 {
		res.Error = fmt.Errorf("gemini: no message to send")
		return res
	}
	history := g.ConvertMsgs(msgs[:len(msgs)-1])
	last := genai.Text(msgs[len(msgs)-1].Content)

	var seq adapters.Counter
	err := g.gp.Stream(ctx, model, system, history, []genai.Part{last}, func(resp *genai.GenerateContentResponse) error {
		text := g.ConvertMsgBackward(resp)
		if text == "" {
			return nil
		}
		return emit(adapters.ContractResponseDelta{
			Text:      text,
			Index:     seq.Next(),
			CreatedAt: time.Now(),
		})
	})
	res.Deltas = seq.Count()
	if err != nil {
		res.Error = fmt.Errorf("gemini chat failed: %w", err)
		return res
	}
	res.Done = true
	return res
}

// ConvertMsgs maps conversation turns onto Gemini chat history.
func (g *geminiAdapter) ConvertMsgs(msgs []adapters.ContractMessage) []*genai.Content {
	history := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		role := "user"
		if msg.Role == adapters.ASSISTANT {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return history
}

// ConvertMsgBackward extracts the text of the first candidate.
func (g *geminiAdapter) ConvertMsgBackward(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text += string(txt)
		}
	}
	return text
}
