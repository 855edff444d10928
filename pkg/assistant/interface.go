package assistant

import (
	"context"
	"time"
)

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

type AssistantMessage struct {
	Content   string
	CreatedAt time.Time
	MsgRole   Role
}

type AssistantInput struct {
	SystemPrompt string
	History      []AssistantMessage
	Prompt       string
	// "backend:model"; empty selects the default
	ModelRef string
}

type AssistantOutput struct {
	Id        string
	Response  AssistantMessage
	Deltas    uint
	StartedAt time.Time
}

// Assistant streams a spoken reply for one user prompt.
type Assistant interface {
	// Validate reports a ModelUnavailable error for refs that cannot be served.
	Validate(modelRef string) error
	StreamPrompt(ctx context.Context, input AssistantInput, onDelta func(text string) error) (*AssistantOutput, error)
}
