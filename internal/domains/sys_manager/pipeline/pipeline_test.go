package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/voxline/internal/config"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/pkg/Logger"
	"github.com/xpanvictor/voxline/pkg/assistant"
	"github.com/xpanvictor/voxline/pkg/assistant/adapters"
	"github.com/xpanvictor/voxline/pkg/assistant/router"
	xio "github.com/xpanvictor/voxline/pkg/io"
	"github.com/xpanvictor/voxline/pkg/io/device/devicetest"
	"github.com/xpanvictor/voxline/pkg/io/stt"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
	"github.com/xpanvictor/voxline/pkg/io/stt/vad"
	"github.com/xpanvictor/voxline/pkg/io/tts"
	"github.com/xpanvictor/voxline/pkg/io/workpool"
	"github.com/xpanvictor/voxline/pkg/utils"
)

type fakeSTT struct {
	text     string
	interims []string
	calls    atomic.Int32
	// blocks until ctx ends
	hang atomic.Bool
	// when set, the first call waits for it and ignores ctx
	stall chan struct{}
}

func (f *fakeSTT) Name() string           { return "fake" }
func (f *fakeSTT) HasModel(m string) bool { return m == "" || m == "base" }

func (f *fakeSTT) Transcribe(ctx context.Context, _ stt.Request, onInterim func(string)) (string, error) {
	if n := f.calls.Add(1); n == 1 && f.stall != nil {
		<-f.stall
	}
	if f.hang.Load() {
		<-ctx.Done()
		return "", ctx.Err()
	}
	for _, s := range f.interims {
		onInterim(s)
	}
	return f.text, nil
}

type fakeTTS struct {
	delay map[string]time.Duration
	// when set, synthesis blocks after the first chunk until closed
	hold chan struct{}
	fail error
	hang atomic.Bool
}

func (f *fakeTTS) Name() string                  { return "fake" }
func (f *fakeTTS) HasVoice(model, _ string) bool { return model == "" }
func (f *fakeTTS) SampleRate() int               { return 16000 }

func (f *fakeTTS) Synthesize(ctx context.Context, req tts.Request, emit func([]byte) error) error {
	if f.fail != nil {
		return f.fail
	}
	if f.hang.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	if d := f.delay[req.Text]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	pcm := bytes.Repeat([]byte{req.Text[0]}, 640)
	if err := emit(pcm); err != nil {
		return err
	}
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return emit(pcm)
}

type fakeLLM struct {
	deltas []string
	hang   atomic.Bool
	mu     sync.Mutex
	inputs []adapters.ContractInput
}

func (f *fakeLLM) Name() string           { return "fake" }
func (f *fakeLLM) HasModel(m string) bool { return m == "" || m == "m1" }

func (f *fakeLLM) Process(ctx context.Context, in adapters.ContractInput, emit func(adapters.ContractResponseDelta) error) adapters.ContractResponse {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.hang.Load() {
		<-ctx.Done()
		return adapters.ContractResponse{Error: ctx.Err()}
	}
	var c adapters.Counter
	for _, d := range f.deltas {
		if err := emit(adapters.ContractResponseDelta{Text: d, Index: c.Next()}); err != nil {
			return adapters.ContractResponse{Error: err}
		}
	}
	return adapters.ContractResponse{Done: true, Deltas: c.Count()}
}

type memArchive struct {
	mu   sync.Mutex
	recs []TurnRecord
}

func (m *memArchive) Record(_ context.Context, rec TurnRecord) error {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	return nil
}

func (m *memArchive) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

type harness struct {
	p       *Pipeline
	rec     *devicetest.Recorder
	sess    *session.Session
	stt     *fakeSTT
	tts     *fakeTTS
	llm     *fakeLLM
	archive *memArchive
	runErr  chan error
}

func newHarness(t *testing.T, maxUtterance time.Duration, opts ...func(*config.PipelineConfig)) *harness {
	t.Helper()
	h := &harness{
		rec:     devicetest.NewRecorder(),
		stt:     &fakeSTT{text: "what is the weather"},
		tts:     &fakeTTS{},
		llm:     &fakeLLM{deltas: []string{"It is sunny. ", "Take a hat!"}},
		archive: &memArchive{},
		runErr:  make(chan error, 1),
	}
	store := session.NewStore(config.SessionConfig{IdleTimeout: time.Minute}, nil, Logger.Nop())
	deps := &Deps{
		Config: config.PipelineConfig{
			TranscriptionTimeout: 5 * time.Second,
			GenerationTimeout:    5 * time.Second,
			SynthesisTimeout:     5 * time.Second,
			InterruptGrace:       200 * time.Millisecond,
			MaxUtterance:         maxUtterance,
			Lookahead:            1,
			MaxPhraseChars:       240,
			ClauseMinChars:       40,
			ChunkBytes:           640,
		},
		Store:     store,
		STT:       stt.NewRegistry("fake", h.stt),
		TTS:       tts.NewRegistry("fake", h.tts),
		Assistant: assistant.New(router.New("fake", h.llm)),
		VAD:       vad.NewEnergyVAD(vad.DefaultVADConfig()),
		STTPool:   workpool.New("stt", 2),
		TTSPool:   workpool.New("tts", 2),
		Archive:   h.archive,
		Logger:    Logger.Nop(),
	}
	for _, opt := range opts {
		opt(&deps.Config)
	}
	h.sess = store.Create(session.Config{AudioFormat: "pcm_s16le", SampleRate: 16000, Speed: 1, Language: "en"})
	pub := xio.NewPublisher(h.rec, h.sess.Epoch, xio.PublisherConfig{}, Logger.Nop())
	h.p = New(deps, h.sess, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.runErr <- h.p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.p.Done()
		_ = pub.Shutdown(context.Background())
	})
	return h
}

// loud is a square wave well above the energy gate.
func loud(ms int) []byte {
	n := 16000 * ms / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(8000)
		if (i/20)%2 == 0 {
			v = -8000
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func label(e devicetest.Event) string {
	switch e.Type {
	case "llm_text", "tts_start", "tts_done":
		return fmt.Sprintf("%s:%v", e.Type, e.JSON["phrase_index"])
	case "transcription":
		if e.JSON["is_final"] == true {
			return "transcription:final"
		}
		return "transcription:interim"
	}
	return devicetest.Label(e)
}

func (h *harness) labels() []string {
	evs := h.rec.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = label(e)
	}
	return out
}

func (h *harness) count(l string) int {
	n := 0
	for _, got := range h.labels() {
		if got == l {
			n++
		}
	}
	return n
}

func (h *harness) waitCount(t *testing.T, l string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.count(l) >= n }, 3*time.Second, 5*time.Millisecond,
		"waiting for %d x %s, got %v", n, l, h.labels())
}

func (h *harness) speak(t *testing.T, ms int) {
	t.Helper()
	ctx := context.Background()
	audio := loud(ms)
	half := len(audio) / 2
	require.NoError(t, h.p.PushAudio(ctx, audio[:half]))
	require.NoError(t, h.p.PushAudio(ctx, audio[half:]))
	require.NoError(t, h.p.End(ctx))
}

func assertSubsequence(t *testing.T, got, want []string) {
	t.Helper()
	i := 0
	for _, g := range got {
		if i < len(want) && g == want[i] {
			i++
		}
	}
	assert.Equal(t, len(want), i, "expected %v in order within %v", want, got)
}

func index(labels []string, l string) int {
	for i, got := range labels {
		if got == l {
			return i
		}
	}
	return -1
}

func TestTurnEventOrder(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	h.stt.interims = []string{"what is"}
	h.speak(t, 300)
	h.waitCount(t, "status:idle", 1)

	assertSubsequence(t, h.labels(), []string{
		"status:listening", "status:processing",
		"transcription:interim", "transcription:final",
		"llm_text:0", "status:speaking",
		"tts_start:0", "audio", "tts_done:0",
		"llm_text:1", "tts_start:1", "audio", "tts_done:1",
		"status:idle",
	})

	evs := h.rec.Events()
	final := evs[index(h.labels(), "transcription:final")]
	assert.Equal(t, "what is the weather", final.JSON["text"])
	assert.Equal(t, "It is sunny.", evs[index(h.labels(), "llm_text:0")].JSON["text"])
	assert.Equal(t, true, evs[index(h.labels(), "llm_text:1")].JSON["is_final"])
	assert.InDelta(t, 0.04, evs[index(h.labels(), "tts_done:0")].JSON["duration"], 1e-9)

	history := h.sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "It is sunny. Take a hat!", history[1].Text)
	require.Eventually(t, func() bool { return h.archive.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(0), h.sess.Epoch())
}

func TestLaterPhraseSynthesizedFirstStillPlaysInOrder(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	h.tts.delay = map[string]time.Duration{"It is sunny.": 150 * time.Millisecond}
	h.speak(t, 300)
	h.waitCount(t, "status:idle", 1)

	labels := h.labels()
	evs := h.rec.Events()
	done0 := index(labels, "tts_done:0")
	start1 := index(labels, "tts_start:1")
	require.True(t, done0 >= 0 && start1 > done0, "%v", labels)
	for i, e := range evs {
		if e.Type != "audio" {
			continue
		}
		if e.Audio[0] == 'T' {
			assert.Greater(t, i, done0, "phrase 1 audio before tts_done(0)")
		} else {
			assert.Less(t, i, done0)
		}
	}
}

func TestInterruptDuringSpeech(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	h.tts.hold = make(chan struct{})
	h.speak(t, 300)
	h.waitCount(t, "tts_start:0", 1)

	require.NoError(t, h.p.Interrupt(context.Background()))
	h.waitCount(t, "status:idle", 1)

	labels := h.labels()
	assertSubsequence(t, labels, []string{"status:speaking", "tts_start:0", "status:interrupted", "status:idle"})
	assert.Equal(t, 0, h.count("tts_done:0"))
	after := labels[index(labels, "status:interrupted"):]
	for _, l := range after {
		assert.NotContains(t, []string{"audio", "tts_start:1", "tts_done:1", "llm_text:1"}, l)
	}
	assert.Equal(t, uint64(1), h.sess.Epoch())
	assert.Empty(t, h.sess.History())
	assert.Equal(t, runtime.IDLE, h.p.Phase())
}

func TestInterruptAndEndWhileIdleAreIgnored(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	ctx := context.Background()
	require.NoError(t, h.p.Interrupt(ctx))
	require.NoError(t, h.p.End(ctx))
	require.NoError(t, h.p.PushAudio(ctx, loud(20)))
	h.waitCount(t, "status:listening", 1)

	assert.Equal(t, []string{"status:listening"}, h.labels())
	assert.Equal(t, uint64(0), h.sess.Epoch())
}

func TestInterruptWhileListeningDiscardsAudio(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	ctx := context.Background()
	require.NoError(t, h.p.PushAudio(ctx, loud(100)))
	require.NoError(t, h.p.Interrupt(ctx))
	h.waitCount(t, "status:idle", 1)
	require.NoError(t, h.p.End(ctx))

	assert.Equal(t, []string{"status:listening", "status:interrupted", "status:idle"}, h.labels())
	assert.Equal(t, int32(0), h.stt.calls.Load())
}

func TestSilenceYieldsEmptyTranscript(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	ctx := context.Background()
	require.NoError(t, h.p.PushAudio(ctx, make([]byte, 9600)))
	require.NoError(t, h.p.End(ctx))
	h.waitCount(t, "status:idle", 1)

	assert.Equal(t, []string{"status:listening", "status:processing", "transcription:final", "status:idle"}, h.labels())
	assert.Equal(t, "", h.rec.Events()[2].JSON["text"])
	assert.Equal(t, int32(0), h.stt.calls.Load())
	assert.Empty(t, h.sess.History())
}

func TestSynthesisFailureReportedAndSessionContinues(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	h.tts.fail = errors.New("voice server down")
	h.speak(t, 300)
	h.waitCount(t, "status:idle", 1)

	evs := h.rec.Events()
	i := index(h.labels(), "error")
	require.GreaterOrEqual(t, i, 0, "%v", h.labels())
	assert.Equal(t, string(utils.KindSynthesis), evs[i].JSON["code"])
	assert.Equal(t, false, evs[i].JSON["fatal"])
	assert.False(t, h.rec.Has("closed"))

	h.tts.fail = nil
	h.speak(t, 300)
	h.waitCount(t, "status:idle", 2)
	assert.Equal(t, 1, h.count("tts_done:0"))
}

func TestUnknownModelInConfigClosesSession(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	require.NoError(t, h.p.Configure(context.Background(), map[string]string{"llm_model": "fake:gpt-9"}))

	select {
	case err := <-h.runErr:
		assert.True(t, utils.IsKind(err, utils.KindModelUnavailable))
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline kept running")
	}
	h.waitCount(t, "closed", 1)
	evs := h.rec.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, string(utils.KindModelUnavailable), evs[0].JSON["code"])
	assert.Equal(t, true, evs[0].JSON["fatal"])
	assert.ErrorIs(t, h.p.End(context.Background()), ErrPipelineClosed)
}

func TestConfigAppliesToNextTurn(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	require.NoError(t, h.p.Configure(context.Background(), map[string]string{
		"llm_model":     "fake:m1",
		"system_prompt": "be terse",
	}))
	h.speak(t, 300)
	h.waitCount(t, "status:idle", 1)

	h.llm.mu.Lock()
	defer h.llm.mu.Unlock()
	require.Len(t, h.llm.inputs, 1)
	assert.Equal(t, "m1", h.llm.inputs[0].HandlerModel.Name)
	assert.Equal(t, "be terse", h.llm.inputs[0].Msgs[0].Content)
}

func TestUtteranceDuringSpeechRunsAfterTurn(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	h.tts.hold = make(chan struct{})
	h.speak(t, 300)
	h.waitCount(t, "tts_start:0", 1)

	// speech overlapping the reply is kept for the next turn
	h.speak(t, 300)
	close(h.tts.hold)

	h.waitCount(t, "status:idle", 2)
	assert.Equal(t, int32(2), h.stt.calls.Load())
	assert.Equal(t, 2, h.count("status:processing"))
	assert.Len(t, h.sess.History(), 4)
}

func TestMaxUtteranceForcesEnd(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)
	require.NoError(t, h.p.PushAudio(context.Background(), loud(150)))
	h.waitCount(t, "status:listening", 2)

	assertSubsequence(t, h.labels(), []string{"status:listening", "status:processing", "transcription:final", "status:idle", "status:listening"})
	assert.Equal(t, int32(1), h.stt.calls.Load())
}

func TestStaleTranscriptCannotDisplaceLiveTurn(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	h.stt.stall = make(chan struct{})
	h.speak(t, 300)
	h.waitCount(t, "status:processing", 1)

	// the first engine call ignores cancellation and outlives the grace period
	require.NoError(t, h.p.Interrupt(context.Background()))
	h.waitCount(t, "status:idle", 1)

	h.tts.hold = make(chan struct{})
	h.speak(t, 300)
	h.waitCount(t, "tts_start:0", 1)

	close(h.stt.stall)
	time.Sleep(50 * time.Millisecond)
	close(h.tts.hold)
	h.waitCount(t, "status:idle", 2)

	labels := h.labels()
	assert.Equal(t, 1, h.count("tts_done:0"), "%v", labels)
	assert.Equal(t, 1, h.count("tts_done:1"), "%v", labels)
	assert.Equal(t, 1, h.count("transcription:final"))
	assert.Equal(t, -1, index(labels, "error"))
	assert.Len(t, h.sess.History(), 2)
	assert.Equal(t, uint64(1), h.sess.Epoch())
}

func TestStageTimeoutsAreNonFatal(t *testing.T) {
	cases := []struct {
		name  string
		stage string
		hang  func(h *harness) *atomic.Bool
	}{
		{"transcription", "transcription", func(h *harness) *atomic.Bool { return &h.stt.hang }},
		{"generation", "generation", func(h *harness) *atomic.Bool { return &h.llm.hang }},
		{"synthesis", "synthesis", func(h *harness) *atomic.Bool { return &h.tts.hang }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 30*time.Second, func(c *config.PipelineConfig) {
				c.TranscriptionTimeout = 100 * time.Millisecond
				c.GenerationTimeout = 100 * time.Millisecond
				c.SynthesisTimeout = 100 * time.Millisecond
			})
			hang := tc.hang(h)
			hang.Store(true)
			h.speak(t, 300)
			h.waitCount(t, "status:idle", 1)

			labels := h.labels()
			i := index(labels, "error")
			require.GreaterOrEqual(t, i, 0, "%v", labels)
			assert.Less(t, i, index(labels, "status:idle"))
			ev := h.rec.Events()[i]
			assert.Equal(t, string(utils.KindTimeout), ev.JSON["code"])
			assert.Equal(t, false, ev.JSON["fatal"])
			assert.Contains(t, ev.JSON["message"], tc.stage)
			assert.False(t, h.rec.Has("closed"))
			assert.Empty(t, h.sess.History())

			hang.Store(false)
			h.speak(t, 300)
			h.waitCount(t, "status:idle", 2)
			assert.Equal(t, 1, h.count("tts_done:1"))
			assert.Len(t, h.sess.History(), 2)
		})
	}
}

func TestMaxUtteranceWavDropsHeaderlessRemainder(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, h.p.Configure(ctx, map[string]string{"audio_format": "wav"}))
	require.NoError(t, h.p.PushAudio(ctx, audioring.EncodeWAV(loud(150), 16000, 1)))
	h.waitCount(t, "status:idle", 1)

	labels := h.labels()
	i := index(labels, "error")
	require.GreaterOrEqual(t, i, 0, "%v", labels)
	ev := h.rec.Events()[i]
	assert.Equal(t, string(utils.KindAudioFormat), ev.JSON["code"])
	assert.Equal(t, false, ev.JSON["fatal"])
	assert.False(t, h.rec.Has("closed"))

	// the first part still runs as a normal turn
	assert.Equal(t, 1, h.count("status:listening"))
	assert.Equal(t, 1, h.count("transcription:final"))
	assert.Equal(t, 1, h.count("tts_done:1"))
	assert.Equal(t, int32(1), h.stt.calls.Load())
}
