package pipeline

import (
	"context"
	"time"

	"github.com/xpanvictor/voxline/pkg/Logger"
	"github.com/xpanvictor/voxline/pkg/io/stt"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
	"github.com/xpanvictor/voxline/pkg/io/stt/vad"
	"github.com/xpanvictor/voxline/pkg/io/workpool"
	"github.com/xpanvictor/voxline/pkg/utils"
)

// Transcriber wraps the STT engines behind the silence gate, the shared
// worker pool and the per-call timeout.
type Transcriber struct {
	reg     *stt.Registry
	vad     vad.VAD
	pool    *workpool.Pool
	timeout time.Duration
	logger  *Logger.Logger
}

// NewTranscriber gates utterances through vad before the engine; gate may be nil.
func NewTranscriber(reg *stt.Registry, gate vad.VAD, pool *workpool.Pool, timeout time.Duration, logger *Logger.Logger) *Transcriber {
	return &Transcriber{reg: reg, vad: gate, pool: pool, timeout: timeout, logger: logger}
}

// Transcribe yields zero or more interim results, then exactly one final
// result or one result carrying Err. The channel is closed afterwards.
// Interim results are dropped when the reader falls behind.
func (t *Transcriber) Transcribe(ctx context.Context, utt audioring.Utterance, model, language string, epoch uint64) <-chan TranscriptionResult {
	out := make(chan TranscriptionResult, 8)
	go func() {
		defer close(out)
		res := t.run(ctx, utt, model, language, epoch, out)
		select {
		case out <- res:
		case <-ctx.Done():
		}
	}()
	return out
}

func (t *Transcriber) run(ctx context.Context, utt audioring.Utterance, model, language string, epoch uint64, out chan<- TranscriptionResult) TranscriptionResult {
	final := TranscriptionResult{IsFinal: true, Epoch: epoch}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if len(utt.PCM) == 0 {
		return final
	}
	if t.vad != nil {
		v, err := t.vad.DetectVoice(ctx, utt)
		if err != nil {
			t.logger.Warnf("silence gate failed, transcribing anyway: %v", err)
		} else if !v.HasVoice {
			t.logger.Debugf("utterance of %s is silence", utt.Duration())
			return final
		}
	}

	engine, model, err := t.reg.Resolve(model)
	if err != nil {
		return TranscriptionResult{Epoch: epoch, Err: err}
	}

	onInterim := func(text string) {
		select {
		case out <- TranscriptionResult{Text: text, Epoch: epoch}:
		default:
		}
	}

	var text string
	err = t.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = engine.Transcribe(ctx, stt.Request{Utterance: utt, Model: model, Language: language}, onInterim)
		return err
	})
	if err != nil {
		return TranscriptionResult{Epoch: epoch, Err: utils.StageError(utils.KindTranscription, "transcription", err)}
	}
	final.Text = text
	return final
}
