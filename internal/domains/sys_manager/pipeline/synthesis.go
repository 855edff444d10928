package pipeline

import (
	"context"
	"time"

	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/pkg/io/tts"
	"github.com/xpanvictor/voxline/pkg/io/workpool"
	"github.com/xpanvictor/voxline/pkg/utils"
)

type Synthesizer struct {
	reg        *tts.Registry
	pool       *workpool.Pool
	timeout    time.Duration
	chunkBytes int
}

func NewSynthesizer(reg *tts.Registry, pool *workpool.Pool, timeout time.Duration, chunkBytes int) *Synthesizer {
	return &Synthesizer{reg: reg, pool: pool, timeout: timeout, chunkBytes: chunkBytes}
}

// SampleRate reports the output rate of the engine serving cfg.
func (s *Synthesizer) SampleRate(cfg session.Config) (int, error) {
	engine, _, err := s.reg.Resolve(cfg.TTSModel, cfg.TTSVoice)
	if err != nil {
		return 0, err
	}
	return engine.SampleRate(), nil
}

// Synthesize streams fixed-size chunks of one phrase to sink, sequence
// numbers starting at 0.
func (s *Synthesizer) Synthesize(ctx context.Context, ph GenerationPhrase, cfg session.Config, sink func(SynthesisChunk) error) error {
	engine, model, err := s.reg.Resolve(cfg.TTSModel, cfg.TTSVoice)
	if err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	seq := 0
	chunker := tts.NewChunker(s.chunkBytes, func(pcm []byte) error {
		c := SynthesisChunk{PhraseIndex: ph.Index, Sequence: seq, PCM: pcm, Epoch: ph.Epoch}
		seq++
		return sink(c)
	})

	req := tts.Request{Text: ph.Text, Model: model, Voice: cfg.TTSVoice, Speed: cfg.Speed}
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		return engine.Synthesize(ctx, req, chunker.Write)
	})
	if err == nil {
		err = chunker.Flush()
	}
	return utils.StageError(utils.KindSynthesis, "synthesis", err)
}
