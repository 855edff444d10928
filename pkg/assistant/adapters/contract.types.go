package adapters

import (
	"time"

	"github.com/google/uuid"
)

type MsgRole string

const (
	USER      MsgRole = "user"
	ASSISTANT MsgRole = "assistant"
	SYSTEM    MsgRole = "system"
)

type ContractMessage struct {
	Role      MsgRole
	Content   string
	CreatedAt time.Time
}

// ContractSelectedModel is a resolved "backend:model" reference.
type ContractSelectedModel struct {
	Backend string
	Name    string
}

func (m ContractSelectedModel) String() string {
	if m.Name == "" {
		return m.Backend
	}
	return m.Backend + ":" + m.Name
}

type ContractInput struct {
	ID           uuid.UUID
	Msgs         []ContractMessage
	HandlerModel ContractSelectedModel
}

// SplitSystem returns the concatenated system messages and the rest.
func (in ContractInput) SplitSystem() (string, []ContractMessage) {
	var sys string
	rest := make([]ContractMessage, 0, len(in.Msgs))
	for _, m := range in.Msgs {
		if m.Role == SYSTEM {
			if sys != "" {
				sys += "\n"
			}
			sys += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return sys, rest
}

// response is by default a stream
type ContractResponseDelta struct {
	Text      string
	Index     uint
	Done      bool
	CreatedAt time.Time
}

type ContractResponse struct {
	ID        uuid.UUID
	StartedAt time.Time
	Deltas    uint
	Error     error
	Done      bool
}
