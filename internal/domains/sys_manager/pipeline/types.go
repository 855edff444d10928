package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/xpanvictor/voxline/internal/config"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/pkg/Logger"
	"github.com/xpanvictor/voxline/pkg/assistant"
	"github.com/xpanvictor/voxline/pkg/io/stt"
	"github.com/xpanvictor/voxline/pkg/io/stt/vad"
	"github.com/xpanvictor/voxline/pkg/io/tts"
	"github.com/xpanvictor/voxline/pkg/io/workpool"
)

// errStale marks work abandoned because the session epoch moved on.
var errStale = errors.New("stale epoch")

type TranscriptionResult struct {
	Text    string
	IsFinal bool
	Epoch   uint64
	Err     error
}

type GenerationPhrase struct {
	Index   int
	Text    string
	IsFinal bool
	Epoch   uint64
}

type SynthesisChunk struct {
	PhraseIndex int
	Sequence    int
	PCM         []byte
	Epoch       uint64
}

// TurnRecord is one finalized exchange, handed to the archive.
type TurnRecord struct {
	SessionID     string
	UserText      string
	AssistantText string
	Phrases       int
	AudioSeconds  float64
	LLMModel      string
	StartedAt     time.Time
	FinishedAt    time.Time
}

type TurnArchive interface {
	Record(ctx context.Context, rec TurnRecord) error
}

// Deps are the process-wide collaborators shared by every session pipeline.
type Deps struct {
	Config    config.PipelineConfig
	Store     *session.Store
	STT       *stt.Registry
	TTS       *tts.Registry
	Assistant assistant.Assistant
	VAD       vad.VAD
	STTPool   *workpool.Pool
	TTSPool   *workpool.Pool
	Archive   TurnArchive
	Logger    *Logger.Logger
}

// Validate resolves every model reference in cfg. Failures are
// ModelUnavailable errors.
func (d *Deps) Validate(cfg session.Config) error {
	if _, _, err := d.STT.Resolve(cfg.STTModel); err != nil {
		return err
	}
	if _, _, err := d.TTS.Resolve(cfg.TTSModel, cfg.TTSVoice); err != nil {
		return err
	}
	return d.Assistant.Validate(cfg.LLMModel)
}
