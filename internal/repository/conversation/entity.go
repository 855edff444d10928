package conversation

import (
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/pipeline"
	"gorm.io/gorm"
)

// TurnEntity is one archived user/assistant exchange.
type TurnEntity struct {
	ID        uuid.UUID `gorm:"primaryKey;type:char(36);not null"`
	SessionID string    `gorm:"column:session_id;type:varchar(64);index;not null"`

	UserText      string  `gorm:"column:user_text;type:text"`
	AssistantText string  `gorm:"column:assistant_text;type:text"`
	Phrases       int     `gorm:"column:phrases"`
	AudioSeconds  float64 `gorm:"column:audio_seconds"`
	LLMModel      string  `gorm:"column:llm_model;type:varchar(128)"`

	StartedAt  time.Time      `gorm:"column:started_at;precision:3"`
	FinishedAt time.Time      `gorm:"column:finished_at;precision:3"`
	CreatedAt  time.Time      `gorm:"autoCreateTime(3)"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (TurnEntity) TableName() string { return "voice_turns" }

func (te *TurnEntity) FromDomain(rec pipeline.TurnRecord) {
	te.ID = uuid.New()
	te.SessionID = rec.SessionID
	te.UserText = rec.UserText
	te.AssistantText = rec.AssistantText
	te.Phrases = rec.Phrases
	te.AudioSeconds = rec.AudioSeconds
	te.LLMModel = rec.LLMModel
	te.StartedAt = rec.StartedAt
	te.FinishedAt = rec.FinishedAt
}

func (te *TurnEntity) ToDomain() pipeline.TurnRecord {
	return pipeline.TurnRecord{
		SessionID:     te.SessionID,
		UserText:      te.UserText,
		AssistantText: te.AssistantText,
		Phrases:       te.Phrases,
		AudioSeconds:  te.AudioSeconds,
		LLMModel:      te.LLMModel,
		StartedAt:     te.StartedAt,
		FinishedAt:    te.FinishedAt,
	}
}
