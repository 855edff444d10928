package pipeline

import (
	"context"
	"sync"
)

// AudioSink is the outbound side the sequencer flushes into.
type AudioSink interface {
	TTSStart(epoch uint64, index int)
	Audio(ctx context.Context, epoch uint64, pcm []byte) error
	TTSDone(epoch uint64, index int, seconds float64)
}

type seqPhrase struct {
	chunks  [][]byte
	sent    int
	bytes   int
	started bool
	done    bool
	err     error
}

type seqTurn struct {
	epoch      uint64
	sampleRate int
	slots      chan struct{}
	phrases    map[int]*seqPhrase
	next       int
	total      int // -1 until generation is over
	wake       chan struct{}
	dropped    chan struct{}
}

// Sequencer delivers the audio of one turn in phrase order. Synthesis may
// finish phrases out of order; chunks are held until every earlier phrase
// has been flushed and closed with tts_done.
type Sequencer struct {
	sink      AudioSink
	epoch     func() uint64
	lookahead int

	mu   sync.Mutex
	turn *seqTurn
}

// NewSequencer reads the live epoch through epoch on every flush step.
func NewSequencer(sink AudioSink, epoch func() uint64, lookahead int) *Sequencer {
	if lookahead < 0 {
		lookahead = 0
	}
	return &Sequencer{sink: sink, epoch: epoch, lookahead: lookahead}
}

// Begin resets the queue for a new turn. A turn whose epoch is no longer
// the session's is refused so it cannot displace the live one.
func (s *Sequencer) Begin(epoch uint64, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch() {
		return errStale
	}
	if s.turn != nil {
		close(s.turn.dropped)
	}
	s.turn = &seqTurn{
		epoch:      epoch,
		sampleRate: sampleRate,
		slots:      make(chan struct{}, 1+s.lookahead),
		phrases:    make(map[int]*seqPhrase),
		total:      -1,
		wake:       make(chan struct{}, 1),
		dropped:    make(chan struct{}),
	}
	return nil
}

func (s *Sequencer) current(epoch uint64) *seqTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn == nil || s.turn.epoch != epoch {
		return nil
	}
	return s.turn
}

// Reserve blocks until the phrase may start synthesis: at most lookahead
// phrases beyond the one being flushed.
func (s *Sequencer) Reserve(ctx context.Context, epoch uint64) error {
	t := s.current(epoch)
	if t == nil {
		return errStale
	}
	select {
	case t.slots <- struct{}{}:
		return nil
	case <-t.dropped:
		return errStale
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *seqTurn) phrase(i int) *seqPhrase {
	ph, ok := t.phrases[i]
	if !ok {
		ph = &seqPhrase{}
		t.phrases[i] = ph
	}
	return ph
}

func (t *seqTurn) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Push stores a chunk. Chunks of other epochs are ignored.
func (s *Sequencer) Push(c SynthesisChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.turn
	if t == nil || t.epoch != c.Epoch {
		return
	}
	ph := t.phrase(c.PhraseIndex)
	if ph.done {
		return
	}
	ph.chunks = append(ph.chunks, c.PCM)
	t.signal()
}

// Complete marks phrase index as fully synthesized, or failed with err.
func (s *Sequencer) Complete(epoch uint64, index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.turn
	if t == nil || t.epoch != epoch {
		return
	}
	ph := t.phrase(index)
	ph.done = true
	ph.err = err
	t.signal()
}

// Close records how many phrases the turn produced.
func (s *Sequencer) Close(epoch uint64, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.turn
	if t == nil || t.epoch != epoch {
		return
	}
	t.total = total
	t.signal()
}

// Drop discards the queue; blocked Reserve and Flush calls return.
func (s *Sequencer) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != nil {
		close(s.turn.dropped)
		s.turn = nil
	}
}

// Flush emits tts_start, the chunks and tts_done for each phrase in order
// until Close's total is reached. It returns the seconds of audio sent, or
// the first synthesis failure in phrase order.
func (s *Sequencer) Flush(ctx context.Context, epoch uint64) (float64, error) {
	t := s.current(epoch)
	if t == nil {
		return 0, errStale
	}
	var seconds float64
	for {
		s.mu.Lock()
		if s.turn != t {
			s.mu.Unlock()
			return seconds, errStale
		}
		if t.total >= 0 && t.next >= t.total {
			s.mu.Unlock()
			return seconds, nil
		}
		idx := t.next
		ph := t.phrases[idx]
		var pending [][]byte
		var done bool
		var failure error
		if ph != nil {
			pending = ph.chunks[ph.sent:]
			ph.sent = len(ph.chunks)
			done = ph.done
			failure = ph.err
		}
		s.mu.Unlock()

		if ph == nil || (len(pending) == 0 && !done) {
			select {
			case <-t.wake:
				continue
			case <-t.dropped:
				return seconds, errStale
			case <-ctx.Done():
				return seconds, ctx.Err()
			}
		}

		if len(pending) > 0 && !ph.started {
			if s.epoch() != epoch {
				return seconds, errStale
			}
			ph.started = true
			s.sink.TTSStart(epoch, idx)
		}
		for _, pcm := range pending {
			if s.epoch() != epoch {
				return seconds, errStale
			}
			if err := s.sink.Audio(ctx, epoch, pcm); err != nil {
				return seconds, err
			}
			ph.bytes += len(pcm)
		}
		if !done {
			continue
		}
		if failure != nil {
			return seconds, failure
		}
		if s.epoch() != epoch {
			return seconds, errStale
		}
		if !ph.started {
			ph.started = true
			s.sink.TTSStart(epoch, idx)
		}
		dur := pcmSeconds(ph.bytes, t.sampleRate)
		s.sink.TTSDone(epoch, idx, dur)
		seconds += dur

		s.mu.Lock()
		delete(t.phrases, idx)
		t.next++
		s.mu.Unlock()
		select {
		case <-t.slots:
		default:
		}
	}
}

func pcmSeconds(n, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(n/2) / float64(sampleRate)
}
