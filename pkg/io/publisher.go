package io

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/xpanvictor/voxline/pkg/Logger"
	"github.com/xpanvictor/voxline/pkg/io/device"
	"github.com/xpanvictor/voxline/pkg/utils"
)

var ErrPublisherClosed = errors.New("publisher closed")

type PublisherConfig struct {
	// audio chunks queued but not yet written; Audio blocks beyond it
	AudioBudget int
	// interim transcripts are dropped once this many messages are queued
	InterimDropThreshold int
}

type outbound struct {
	json   any
	binary []byte
	tagged bool
	epoch  uint64
	audio  bool
}

type PublisherStats struct {
	Queued         int   `json:"queued"`
	Written        int64 `json:"written"`
	StaleDropped   int64 `json:"stale_dropped"`
	InterimDropped int64 `json:"interim_dropped"`
}

// Publisher owns the only writer of one endpoint. Messages leave in enqueue
// order; epoch-tagged messages are discarded at write time when the session
// has moved on.
type Publisher struct {
	ep     device.Endpoint
	epoch  func() uint64
	cfg    PublisherConfig
	logger *Logger.Logger

	mu      sync.Mutex
	queue   []outbound
	closing bool
	err     error

	wake   chan struct{}
	budget chan struct{}
	done   chan struct{}

	written        atomic.Int64
	staleDropped   atomic.Int64
	interimDropped atomic.Int64
}

// NewPublisher starts the writer goroutine for ep.
func NewPublisher(ep device.Endpoint, epoch func() uint64, cfg PublisherConfig, logger *Logger.Logger) *Publisher {
	if cfg.AudioBudget <= 0 {
		cfg.AudioBudget = 32
	}
	if cfg.InterimDropThreshold <= 0 {
		cfg.InterimDropThreshold = 64
	}
	p := &Publisher{
		ep:     ep,
		epoch:  epoch,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
		budget: make(chan struct{}, cfg.AudioBudget),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			closing := p.closing
			p.mu.Unlock()
			if closing {
				return
			}
			<-p.wake
			continue
		}
		item := p.queue[0]
		p.queue[0] = outbound{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		err := p.write(item)
		if item.audio {
			<-p.budget
		}
		if err != nil {
			p.fail(err)
			return
		}
	}
}

func (p *Publisher) write(item outbound) error {
	if item.tagged && item.epoch != p.epoch() {
		p.staleDropped.Add(1)
		return nil
	}
	var err error
	if item.audio {
		err = p.ep.WriteBinary(item.binary)
	} else {
		err = p.ep.WriteJSON(item.json)
	}
	if err == nil {
		p.written.Add(1)
	}
	return err
}

// fail stops the writer and returns the budget held by queued audio.
func (p *Publisher) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	p.closing = true
	for _, item := range p.queue {
		if item.audio {
			<-p.budget
		}
	}
	p.queue = nil
	p.logger.Debugf("publisher stopped: %v", err)
}

func (p *Publisher) enqueue(item outbound) bool {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, item)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// SessionInfo announces the session id and whether it was resumed.
func (p *Publisher) SessionInfo(sessionID string, resumed bool) {
	p.enqueue(outbound{json: SessionInfoMsg{Type: MsgSessionInfo, SessionID: sessionID, Resumed: resumed}})
}

// Status reports a state machine transition.
func (p *Publisher) Status(state string) {
	p.enqueue(outbound{json: StatusMsg{Type: MsgStatus, State: state}})
}

// Transcription queues a transcript. Interim results are skipped while the
// queue is congested.
func (p *Publisher) Transcription(epoch uint64, text string, final bool) {
	if !final {
		p.mu.Lock()
		congested := len(p.queue) >= p.cfg.InterimDropThreshold
		p.mu.Unlock()
		if congested {
			p.interimDropped.Add(1)
			return
		}
	}
	p.enqueue(outbound{
		json:   TranscriptionMsg{Type: MsgTranscription, Text: text, IsFinal: final},
		tagged: true,
		epoch:  epoch,
	})
}

// LLMText sends one phrase of the reply.
func (p *Publisher) LLMText(epoch uint64, index int, text string, final bool) {
	p.enqueue(outbound{
		json:   LLMTextMsg{Type: MsgLLMText, Text: text, IsFinal: final, PhraseIndex: index},
		tagged: true,
		epoch:  epoch,
	})
}

// TTSStart precedes the first audio chunk of a phrase.
func (p *Publisher) TTSStart(epoch uint64, index int) {
	p.enqueue(outbound{json: TTSStartMsg{Type: MsgTTSStart, PhraseIndex: index}, tagged: true, epoch: epoch})
}

// TTSDone closes a phrase with its audio duration.
func (p *Publisher) TTSDone(epoch uint64, index int, seconds float64) {
	p.enqueue(outbound{
		json:   TTSDoneMsg{Type: MsgTTSDone, PhraseIndex: index, Duration: seconds},
		tagged: true,
		epoch:  epoch,
	})
}

// Audio queues one PCM chunk, blocking while the audio budget is spent.
func (p *Publisher) Audio(ctx context.Context, epoch uint64, pcm []byte) error {
	select {
	case p.budget <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPublisherClosed
	}
	if !p.enqueue(outbound{binary: pcm, tagged: true, epoch: epoch, audio: true}) {
		<-p.budget
		return ErrPublisherClosed
	}
	return nil
}

// Error sends an error frame; fatal errors are followed by Closed.
func (p *Publisher) Error(err error, fatal bool) {
	p.enqueue(outbound{json: ErrorMsg{
		Type:    MsgError,
		Message: err.Error(),
		Code:    string(utils.KindOf(err)),
		Fatal:   fatal,
	}})
}

// Closed is the last message of a session.
func (p *Publisher) Closed() {
	p.enqueue(outbound{json: ClosedMsg{Type: MsgClosed}})
}

// Shutdown stops accepting messages and waits for the queue to drain.
func (p *Publisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}

	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the writer has exited.
func (p *Publisher) Done() <-chan struct{} { return p.done }

// Err returns the first write failure, if any.
func (p *Publisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats reports queue depth and drop counters.
func (p *Publisher) Stats() PublisherStats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()
	return PublisherStats{
		Queued:         queued,
		Written:        p.written.Load(),
		StaleDropped:   p.staleDropped.Load(),
		InterimDropped: p.interimDropped.Load(),
	}
}
