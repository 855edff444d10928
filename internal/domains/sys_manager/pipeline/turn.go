package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/pkg/assistant"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
	"github.com/xpanvictor/voxline/pkg/io/tts/stream"
	"golang.org/x/sync/errgroup"
)

// phrase hand-off between the segmenter and the synthesis submitter
const phraseBacklog = 64

type turnResult struct {
	transcript string
	reply      string
	phrases    int
	seconds    float64
	llmModel   string
	startedAt  time.Time
	err        error
}

// turn is one utterance through transcription, generation, synthesis and
// delivery. Its config and history are copies taken when it started.
type turn struct {
	p         *Pipeline
	epoch     uint64
	cfg       session.Config
	history   []session.Turn
	raw       []byte
	startedAt time.Time
}

func (p *Pipeline) startTurn(ctx context.Context, raw []byte) {
	t := &turn{
		p:         p,
		epoch:     p.sess.Epoch(),
		cfg:       p.sess.Config(),
		history:   p.sess.History(),
		raw:       raw,
		startedAt: time.Now(),
	}
	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.turnCancel, p.turnDone = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		res := t.run(tctx)
		p.post(context.Background(), command{kind: cmdTurnDone, epoch: t.epoch, result: &res})
	}()
}

func (t *turn) run(ctx context.Context) turnResult {
	p := t.p
	res := turnResult{llmModel: t.cfg.LLMModel, startedAt: t.startedAt}

	utt, err := audioring.Decode(audioring.Format(t.cfg.AudioFormat), t.cfg.SampleRate, t.raw)
	if err != nil {
		res.err = err
		return res
	}
	utt.StartedAt = t.startedAt

	var final *TranscriptionResult
	for r := range p.transcriber.Transcribe(ctx, utt, t.cfg.STTModel, t.cfg.Language, t.epoch) {
		if r.Err != nil {
			res.err = r.Err
			return res
		}
		if !r.IsFinal {
			p.pub.Transcription(t.epoch, r.Text, false)
			continue
		}
		final = &r
	}
	if final == nil || p.sess.Epoch() != t.epoch {
		res.err = errStale
		return res
	}
	p.pub.Transcription(t.epoch, final.Text, true)
	res.transcript = strings.TrimSpace(final.Text)
	if res.transcript == "" {
		return res
	}

	rate, err := p.synth.SampleRate(t.cfg)
	if err != nil {
		res.err = err
		return res
	}
	if err := p.seq.Begin(t.epoch, rate); err != nil {
		res.err = err
		return res
	}

	g, gctx := errgroup.WithContext(ctx)
	phrases := make(chan GenerationPhrase, phraseBacklog)

	g.Go(func() error {
		defer close(phrases)
		reply, n, err := t.generate(gctx, res.transcript, phrases)
		res.reply, res.phrases = reply, n
		return err
	})
	g.Go(func() error {
		return t.submit(gctx, g, phrases)
	})
	g.Go(func() error {
		secs, err := p.seq.Flush(gctx, t.epoch)
		res.seconds = secs
		return err
	})
	res.err = g.Wait()
	return res
}

// generate streams the reply through the segmenter. Each phrase is
// announced as llm_text before it is queued for synthesis.
func (t *turn) generate(ctx context.Context, prompt string, out chan<- GenerationPhrase) (string, int, error) {
	p := t.p
	gctx, cancel := context.WithTimeout(ctx, p.deps.Config.GenerationTimeout)
	defer cancel()

	seg := stream.NewSegmenter(p.deps.Config.MaxPhraseChars, p.deps.Config.ClauseMinChars, func(ph stream.Phrase) error {
		if p.sess.Epoch() != t.epoch {
			return errStale
		}
		gp := GenerationPhrase{Index: ph.Index, Text: ph.Text, IsFinal: ph.IsFinal, Epoch: t.epoch}
		p.pub.LLMText(t.epoch, gp.Index, gp.Text, gp.IsFinal)
		select {
		case out <- gp:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	output, err := p.deps.Assistant.StreamPrompt(gctx, assistant.AssistantInput{
		SystemPrompt: t.cfg.SystemPrompt,
		History:      historyMessages(t.history),
		Prompt:       prompt,
		ModelRef:     t.cfg.LLMModel,
	}, seg.Push)
	if err != nil {
		return "", seg.Count(), err
	}
	n, err := seg.Finish()
	if err != nil {
		return output.Response.Content, n, err
	}
	return strings.TrimSpace(output.Response.Content), n, nil
}

// submit starts synthesis for each phrase as lookahead allows. The first
// phrase moves the session to speaking.
func (t *turn) submit(ctx context.Context, g *errgroup.Group, phrases <-chan GenerationPhrase) error {
	p := t.p
	count := 0
	for ph := range phrases {
		if count == 0 && !t.requestSpeak(ctx) {
			return errStale
		}
		if err := p.seq.Reserve(ctx, t.epoch); err != nil {
			return err
		}
		ph := ph
		g.Go(func() error {
			err := p.synth.Synthesize(ctx, ph, t.cfg, func(c SynthesisChunk) error {
				p.seq.Push(c)
				return nil
			})
			p.seq.Complete(t.epoch, ph.Index, err)
			return nil
		})
		count++
	}
	p.seq.Close(t.epoch, count)
	return nil
}

func (t *turn) requestSpeak(ctx context.Context) bool {
	reply := make(chan bool, 1)
	if !t.p.post(ctx, command{kind: cmdSpeak, epoch: t.epoch, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	case <-t.p.done:
		return false
	}
}

func historyMessages(turns []session.Turn) []assistant.AssistantMessage {
	out := make([]assistant.AssistantMessage, 0, len(turns))
	for _, h := range turns {
		role := assistant.USER
		if h.Role == string(assistant.ASSISTANT) {
			role = assistant.ASSISTANT
		}
		out = append(out, assistant.AssistantMessage{Content: h.Text, CreatedAt: h.At, MsgRole: role})
	}
	return out
}
