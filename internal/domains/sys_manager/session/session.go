package session

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xpanvictor/voxline/internal/config"
	"github.com/xpanvictor/voxline/pkg/utils"
)

// Config is the per-session conversation setup.
type Config struct {
	STTModel     string  `json:"stt_model"`
	TTSModel     string  `json:"tts_model"`
	TTSVoice     string  `json:"tts_voice"`
	LLMModel     string  `json:"llm_model"`
	Language     string  `json:"language"`
	Speed        float64 `json:"speed"`
	SystemPrompt string  `json:"system_prompt"`
	AudioFormat  string  `json:"audio_format"`
	SampleRate   int     `json:"sample_rate"`
}

// ConfigKeys are the names accepted as query parameters and in config messages.
var ConfigKeys = []string{
	"stt_model", "tts_model", "tts_voice", "llm_model", "language",
	"speed", "system_prompt", "audio_format", "sample_rate",
}

// ConfigFromDefaults copies project defaults into a session config.
func ConfigFromDefaults(d config.VoiceDefaults) Config {
	return Config{
		STTModel:     d.STTModel,
		TTSModel:     d.TTSModel,
		TTSVoice:     d.TTSVoice,
		LLMModel:     d.LLMModel,
		Language:     d.Language,
		Speed:        d.Speed,
		SystemPrompt: d.SystemPrompt,
		AudioFormat:  d.AudioFormat,
		SampleRate:   d.SampleRate,
	}
}

// Merge returns c with the given values applied. Only keys present in values
// change; malformed numbers and formats are protocol errors.
func (c Config) Merge(values map[string]string) (Config, error) {
	for k, v := range values {
		switch k {
		case "stt_model":
			c.STTModel = v
		case "tts_model":
			c.TTSModel = v
		case "tts_voice":
			c.TTSVoice = v
		case "llm_model":
			c.LLMModel = v
		case "language":
			c.Language = v
		case "system_prompt":
			c.SystemPrompt = v
		case "speed":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0.25 || f > 4 {
				return c, utils.Errorf(utils.KindProtocol, "speed must be a number in [0.25, 4], got %q", v)
			}
			c.Speed = f
		case "audio_format":
			switch strings.ToLower(v) {
			case "pcm_s16le", "wav":
				c.AudioFormat = strings.ToLower(v)
			default:
				return c, utils.Errorf(utils.KindProtocol, "unsupported audio_format %q", v)
			}
		case "sample_rate":
			n, err := strconv.Atoi(v)
			if err != nil || n < 8000 || n > 48000 {
				return c, utils.Errorf(utils.KindProtocol, "sample_rate must be in [8000, 48000], got %q", v)
			}
			c.SampleRate = n
		}
	}
	return c, nil
}

type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is one resumable conversation. Its mutable fields are written by
// the session coordinator only; other goroutines read through accessors.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.RWMutex
	lastActive time.Time
	config     Config
	history    []Turn
	state      string
	revoke     func()

	epoch atomic.Uint64
	lease chan struct{}
}

func newSession(id string, cfg Config, now time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		lastActive: now,
		config:     cfg,
		state:      "idle",
		lease:      make(chan struct{}, 1),
	}
}

func (s *Session) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *Session) SetConfig(c Config) {
	s.mu.Lock()
	s.config = c
	s.mu.Unlock()
}

// History returns a copy of the finalized turns.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.history...)
}

// AppendTurns records a finalized exchange.
func (s *Session) AppendTurns(turns ...Turn) {
	s.mu.Lock()
	s.history = append(s.history, turns...)
	s.mu.Unlock()
}

func (s *Session) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActive) {
		s.lastActive = now
	}
	s.mu.Unlock()
}

// Epoch is the current interrupt generation.
func (s *Session) Epoch() uint64 { return s.epoch.Load() }

// BumpEpoch invalidates every in-flight result of the current turn.
func (s *Session) BumpEpoch() uint64 { return s.epoch.Add(1) }

func (s *Session) leased() bool { return len(s.lease) > 0 }

func (s *Session) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
		Config:     s.config,
		History:    append([]Turn(nil), s.history...),
		Epoch:      s.epoch.Load(),
	}
}
