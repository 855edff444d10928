package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/xpanvictor/voxline/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/pkg/Logger"
	xio "github.com/xpanvictor/voxline/pkg/io"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
	"github.com/xpanvictor/voxline/pkg/utils"
)

var ErrPipelineClosed = errors.New("pipeline closed")

type cmdKind int

const (
	cmdAudio cmdKind = iota
	cmdEnd
	cmdInterrupt
	cmdConfig
	cmdFatal
	cmdSpeak
	cmdTurnDone
	cmdSettle
)

type command struct {
	kind   cmdKind
	frame  []byte
	values map[string]string
	err    error
	epoch  uint64
	reply  chan bool
	result *turnResult
}

// Pipeline is the coordinator of one connected session. A single goroutine
// (Run) owns the state machine, the ingest buffer and every session
// mutation; everything else talks to it through the inbox.
type Pipeline struct {
	deps   *Deps
	sess   *session.Session
	pub    *xio.Publisher
	logger *Logger.Logger

	rt          *runtime.SessionRuntime
	buf         audioring.IngestBuffer
	seq         *Sequencer
	transcriber *Transcriber
	synth       *Synthesizer

	inbox chan command
	done  chan struct{}

	turnCancel context.CancelFunc
	turnDone   chan struct{}
	pendingEnd bool
	exitErr    error
}

// New builds the coordinator for sess. Call Run to start it.
func New(deps *Deps, sess *session.Session, pub *xio.Publisher) *Pipeline {
	cfg := deps.Config
	p := &Pipeline{
		deps:        deps,
		sess:        sess,
		pub:         pub,
		logger:      deps.Logger.ForSession(sess.ID),
		seq:         NewSequencer(pub, sess.Epoch, cfg.Lookahead),
		transcriber: NewTranscriber(deps.STT, deps.VAD, deps.STTPool, cfg.TranscriptionTimeout, deps.Logger),
		synth:       NewSynthesizer(deps.TTS, deps.TTSPool, cfg.SynthesisTimeout, cfg.ChunkBytes),
		inbox:       make(chan command, 256),
		done:        make(chan struct{}),
	}
	p.buf = audioring.NewForDuration(cfg.MaxUtterance, sess.Config().SampleRate, 1)
	p.rt = runtime.NewSessionRuntime(sess.ID, p.onEnter)
	sess.SetState(string(runtime.IDLE))
	return p
}

func (p *Pipeline) onEnter(from, to runtime.RuntimePhase) {
	p.sess.SetState(string(to))
	p.pub.Status(string(to))
	p.logger.Debugf("state %s -> %s", from, to)
}

func (p *Pipeline) fire(ev runtime.RuntimeEvents) {
	if err := p.rt.Fire(context.Background(), ev); err != nil {
		p.logger.Warnf("event %s rejected in %s: %v", ev, p.rt.Phase(), err)
	}
}

// Run processes commands until ctx ends or a fatal error occurs, which is
// returned after error and closed have been queued.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)
	defer p.teardown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-p.inbox:
			p.handle(ctx, cmd)
			if p.exitErr != nil {
				return p.exitErr
			}
		}
	}
}

// Done is closed once Run has returned.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Phase is the last state entered.
func (p *Pipeline) Phase() runtime.RuntimePhase { return runtime.RuntimePhase(p.sess.State()) }

func (p *Pipeline) send(ctx context.Context, cmd command) error {
	select {
	case <-p.done:
		return ErrPipelineClosed
	default:
	}
	select {
	case p.inbox <- cmd:
		return nil
	case <-p.done:
		return ErrPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushAudio appends a binary client frame to the current utterance.
func (p *Pipeline) PushAudio(ctx context.Context, frame []byte) error {
	return p.send(ctx, command{kind: cmdAudio, frame: frame})
}

// End marks the end of the current utterance.
func (p *Pipeline) End(ctx context.Context) error {
	return p.send(ctx, command{kind: cmdEnd})
}

// Interrupt cancels the running turn and discards its output.
func (p *Pipeline) Interrupt(ctx context.Context) error {
	return p.send(ctx, command{kind: cmdInterrupt})
}

// Configure changes the session config; it applies from the next turn.
func (p *Pipeline) Configure(ctx context.Context, values map[string]string) error {
	return p.send(ctx, command{kind: cmdConfig, values: values})
}

// Fail reports a fatal error detected outside the coordinator.
func (p *Pipeline) Fail(ctx context.Context, err error) error {
	return p.send(ctx, command{kind: cmdFatal, err: err})
}

func (p *Pipeline) handle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdAudio:
		p.deps.Store.Touch(p.sess.ID)
		p.onAudio(ctx, cmd.frame)
	case cmdEnd:
		p.deps.Store.Touch(p.sess.ID)
		p.onEnd(ctx)
	case cmdInterrupt:
		p.deps.Store.Touch(p.sess.ID)
		p.onInterrupt()
	case cmdConfig:
		p.onConfig(cmd.values)
	case cmdFatal:
		p.pub.Error(cmd.err, true)
		p.fatal(cmd.err)
	case cmdSpeak:
		ok := cmd.epoch == p.sess.Epoch() && p.rt.Is(runtime.PROCESSING)
		if ok {
			p.fire(runtime.SPEAK)
		}
		cmd.reply <- ok
	case cmdTurnDone:
		p.onTurnDone(ctx, cmd.epoch, cmd.result)
	case cmdSettle:
		if cmd.epoch == p.sess.Epoch() && p.rt.Is(runtime.INTERRUPTED) {
			p.fire(runtime.SETTLE)
			p.afterIdle(ctx)
		}
	}
}

func (p *Pipeline) fatal(err error) {
	p.logger.Warnf("closing session: %v", err)
	p.pub.Closed()
	p.exitErr = err
}

func (p *Pipeline) onAudio(ctx context.Context, frame []byte) {
	if len(frame) == 0 {
		return
	}
	if p.rt.Is(runtime.IDLE) {
		p.fire(runtime.HEAR)
	}
	for len(frame) > 0 {
		rest, full := p.buf.Append(frame)
		if !full {
			return
		}
		if !p.rt.Is(runtime.LISTENING) {
			p.logger.Warnf("ingest buffer full while %s, dropping %d bytes", p.rt.Phase(), len(rest))
			return
		}
		p.logger.Debugf("max utterance reached, forcing end")
		p.endUtterance(ctx)
		if len(rest) > 0 && p.sess.Config().AudioFormat == string(audioring.FormatWAV) {
			// only the first utterance carries the RIFF header
			p.pub.Error(utils.Errorf(utils.KindAudioFormat,
				"wav utterance longer than %s, %d bytes dropped", p.deps.Config.MaxUtterance, len(rest)), false)
			return
		}
		frame = rest
	}
}

func (p *Pipeline) onEnd(ctx context.Context) {
	switch p.rt.Phase() {
	case runtime.LISTENING:
		p.endUtterance(ctx)
	case runtime.IDLE:
		p.logger.Debugf("end ignored: nothing buffered")
	default:
		// the overlapping utterance ends once the current turn is over
		if p.buf.Len() > 0 {
			p.pendingEnd = true
		} else {
			p.logger.Debugf("end ignored while %s", p.rt.Phase())
		}
	}
}

func (p *Pipeline) endUtterance(ctx context.Context) {
	raw := p.buf.Drain()
	p.fire(runtime.END)
	p.startTurn(ctx, raw)
}

func (p *Pipeline) onInterrupt() {
	if !p.rt.Can(runtime.INTERRUPT) {
		p.logger.Debugf("interrupt ignored while %s", p.rt.Phase())
		return
	}
	epoch := p.sess.BumpEpoch()
	p.fire(runtime.INTERRUPT)
	if p.turnCancel != nil {
		p.turnCancel()
	}
	p.seq.Drop()
	p.buf.Clear()
	p.pendingEnd = false

	done := p.turnDone
	p.turnCancel, p.turnDone = nil, nil
	grace := p.deps.Config.InterruptGrace
	go func() {
		if done != nil {
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C:
				p.logger.Warnf("turn still running %s after interrupt, settling anyway", grace)
			}
		}
		p.post(context.Background(), command{kind: cmdSettle, epoch: epoch})
	}()
}

func (p *Pipeline) onConfig(values map[string]string) {
	cfg, err := p.sess.Config().Merge(values)
	if err == nil {
		err = p.deps.Validate(cfg)
	}
	if err != nil {
		p.pub.Error(err, utils.IsFatal(err))
		if utils.IsFatal(err) {
			p.fatal(err)
		}
		return
	}
	prev := p.sess.Config()
	p.sess.SetConfig(cfg)
	if cfg.SampleRate != prev.SampleRate && p.buf.Len() == 0 {
		p.buf = audioring.NewForDuration(p.deps.Config.MaxUtterance, cfg.SampleRate, 1)
	}
	p.logger.Debugf("config updated for next turn")
}

func (p *Pipeline) onTurnDone(ctx context.Context, epoch uint64, res *turnResult) {
	if epoch != p.sess.Epoch() || p.turnDone == nil {
		// interrupted; settle handles the state
		return
	}
	p.turnCancel, p.turnDone = nil, nil

	if errors.Is(res.err, errStale) {
		// the turn gave up without delivering; nothing to record
		p.logger.Warnf("turn abandoned at epoch %d", epoch)
		p.fire(runtime.FAIL)
		p.afterIdle(ctx)
		return
	}
	if res.err != nil {
		fatal := utils.IsFatal(res.err)
		p.pub.Error(res.err, fatal)
		if fatal {
			p.fatal(res.err)
			return
		}
		p.logger.Infof("turn failed: %v", res.err)
		p.fire(runtime.FAIL)
		p.afterIdle(ctx)
		return
	}

	if res.transcript != "" {
		p.record(res)
	}
	p.fire(runtime.FINISH)
	p.afterIdle(ctx)
}

// record appends the finished exchange to history and stores it.
func (p *Pipeline) record(res *turnResult) {
	now := time.Now()
	turns := []session.Turn{{Role: "user", Text: res.transcript, At: res.startedAt}}
	if res.reply != "" {
		turns = append(turns, session.Turn{Role: "assistant", Text: res.reply, At: now})
	}
	p.sess.AppendTurns(turns...)

	rec := TurnRecord{
		SessionID:     p.sess.ID,
		UserText:      res.transcript,
		AssistantText: res.reply,
		Phrases:       res.phrases,
		AudioSeconds:  res.seconds,
		LLMModel:      res.llmModel,
		StartedAt:     res.startedAt,
		FinishedAt:    now,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.deps.Store.Persist(ctx, p.sess); err != nil {
			p.logger.Warnf("snapshot failed: %v", err)
		}
		if p.deps.Archive != nil {
			if err := p.deps.Archive.Record(ctx, rec); err != nil {
				p.logger.Warnf("turn archive failed: %v", err)
			}
		}
	}()
}

// afterIdle starts the next utterance if audio arrived meanwhile.
func (p *Pipeline) afterIdle(ctx context.Context) {
	if !p.rt.Is(runtime.IDLE) {
		return
	}
	if p.buf.Len() == 0 {
		p.pendingEnd = false
		return
	}
	p.fire(runtime.HEAR)
	if p.pendingEnd {
		p.pendingEnd = false
		p.endUtterance(ctx)
	}
}

// post delivers an internal command unless the coordinator is gone.
func (p *Pipeline) post(ctx context.Context, cmd command) bool {
	select {
	case p.inbox <- cmd:
		return true
	case <-p.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) teardown() {
	if p.turnCancel != nil {
		p.turnCancel()
		timer := time.NewTimer(p.deps.Config.InterruptGrace)
		select {
		case <-p.turnDone:
		case <-timer.C:
		}
		timer.Stop()
	}
	p.seq.Drop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.deps.Store.Persist(ctx, p.sess); err != nil {
		p.logger.Warnf("snapshot on close failed: %v", err)
	}
}
