package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DSN builds a go-sql-driver/mysql data source name.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Name)
}

func (d DBConfig) Enabled() bool { return d.Host != "" }

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type WhisperConfig struct {
	URL string `mapstructure:"url"`
	// model size -> whisper-asr-webservice base url
	Models  map[string]string `mapstructure:"models"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

type PiperConfig struct {
	URL        string        `mapstructure:"url"`
	Voices     []string      `mapstructure:"voices"`
	SampleRate int           `mapstructure:"sample_rate"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type VADConfig struct {
	// energy | silero | off
	Mode      string  `mapstructure:"mode"`
	Threshold float64 `mapstructure:"threshold"`
	SileroURL string  `mapstructure:"silero_url"`
}

type STTConfig struct {
	Default string        `mapstructure:"default"`
	Whisper WhisperConfig `mapstructure:"whisper"`
	OpenAI  bool          `mapstructure:"openai"`
}

type TTSConfig struct {
	Default string      `mapstructure:"default"`
	Piper   PiperConfig `mapstructure:"piper"`
	OpenAI  bool        `mapstructure:"openai"`
}

type VoiceConfig struct {
	STT STTConfig `mapstructure:"stt"`
	TTS TTSConfig `mapstructure:"tts"`
	VAD VADConfig `mapstructure:"vad"`
}

type OllamaConfig struct {
	Servers []string `mapstructure:"servers"`
	Models  []string `mapstructure:"models"`
}

type GeminiConfig struct {
	APIKey string   `mapstructure:"api_key"`
	Models []string `mapstructure:"models"`
}

type LLMConfig struct {
	Default string       `mapstructure:"default"`
	Ollama  OllamaConfig `mapstructure:"ollama"`
	Gemini  GeminiConfig `mapstructure:"gemini"`
	OpenAI  bool         `mapstructure:"openai"`
}

type PipelineConfig struct {
	TranscriptionTimeout time.Duration `mapstructure:"transcription_timeout"`
	GenerationTimeout    time.Duration `mapstructure:"generation_timeout"`
	SynthesisTimeout     time.Duration `mapstructure:"synthesis_timeout"`
	InterruptGrace       time.Duration `mapstructure:"interrupt_grace"`
	MaxUtterance         time.Duration `mapstructure:"max_utterance"`
	Lookahead            int           `mapstructure:"lookahead"`
	MaxPhraseChars       int           `mapstructure:"max_phrase_chars"`
	ClauseMinChars       int           `mapstructure:"clause_min_chars"`
	ChunkBytes           int           `mapstructure:"chunk_bytes"`
	OutboundAudioBudget  int           `mapstructure:"outbound_audio_budget"`
	InterimDropThreshold int           `mapstructure:"interim_drop_threshold"`
	STTWorkers           int64         `mapstructure:"stt_workers"`
	TTSWorkers           int64         `mapstructure:"tts_workers"`
}

type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	LeaseWait     time.Duration `mapstructure:"lease_wait"`
	Snapshots     bool          `mapstructure:"snapshots"`
}

// VoiceDefaults are the per-project conversation settings a client may
// override with query parameters.
type VoiceDefaults struct {
	STTModel     string  `mapstructure:"stt_model"`
	TTSModel     string  `mapstructure:"tts_model"`
	TTSVoice     string  `mapstructure:"tts_voice"`
	LLMModel     string  `mapstructure:"llm_model"`
	Language     string  `mapstructure:"language"`
	Speed        float64 `mapstructure:"speed"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	AudioFormat  string  `mapstructure:"audio_format"`
	SampleRate   int     `mapstructure:"sample_rate"`
}

type Settings struct {
	Env      string         `mapstructure:"env"`
	Debug    bool           `mapstructure:"debug" default:"false"`
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Voice    VoiceConfig    `mapstructure:"voice"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Session  SessionConfig  `mapstructure:"session"`
	Defaults VoiceDefaults  `mapstructure:"defaults"`
	// keyed by "namespace/project"
	Projects map[string]VoiceDefaults `mapstructure:"projects"`
}

func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("config_" + genEnv())
	v.AddConfigPath(".")
	v.SetConfigType("yaml")
	return read(v)
}

// LoadFile reads settings from an explicit path.
func LoadFile(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return read(v)
}

func read(v *viper.Viper) (*Settings, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	settings.ApplyDefaults()

	return &settings, nil
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}

// ApplyDefaults fills every zero knob.
func (s *Settings) ApplyDefaults() {
	if s.Server.Addr == "" {
		s.Server.Addr = ":8080"
	}
	if s.Server.ShutdownTimeout == 0 {
		s.Server.ShutdownTimeout = 5 * time.Second
	}

	p := &s.Pipeline
	setDuration(&p.TranscriptionTimeout, 15*time.Second)
	setDuration(&p.GenerationTimeout, 60*time.Second)
	setDuration(&p.SynthesisTimeout, 20*time.Second)
	setDuration(&p.InterruptGrace, 500*time.Millisecond)
	setDuration(&p.MaxUtterance, 30*time.Second)
	setInt(&p.Lookahead, 1)
	setInt(&p.MaxPhraseChars, 240)
	setInt(&p.ClauseMinChars, 40)
	setInt(&p.ChunkBytes, 4096)
	setInt(&p.OutboundAudioBudget, 32)
	setInt(&p.InterimDropThreshold, 64)
	if p.STTWorkers <= 0 {
		p.STTWorkers = 4
	}
	if p.TTSWorkers <= 0 {
		p.TTSWorkers = 4
	}

	setDuration(&s.Session.IdleTimeout, 10*time.Minute)
	setDuration(&s.Session.SweepInterval, time.Minute)
	setDuration(&s.Session.LeaseWait, 5*time.Second)

	if s.Voice.VAD.Mode == "" {
		s.Voice.VAD.Mode = "energy"
	}
	if s.Voice.VAD.Threshold == 0 {
		s.Voice.VAD.Threshold = 300
	}
	if s.Voice.TTS.Piper.SampleRate == 0 {
		s.Voice.TTS.Piper.SampleRate = 22050
	}

	d := &s.Defaults
	if d.Speed == 0 {
		d.Speed = 1.0
	}
	if d.AudioFormat == "" {
		d.AudioFormat = "pcm_s16le"
	}
	if d.SampleRate == 0 {
		d.SampleRate = 16000
	}
	if d.Language == "" {
		d.Language = "en"
	}
}

// ProjectDefaults overlays the project's settings on the global defaults.
func (s *Settings) ProjectDefaults(namespace, project string) VoiceDefaults {
	out := s.Defaults
	p, ok := s.Projects[strings.ToLower(namespace+"/"+project)]
	if !ok {
		return out
	}
	overlay(&out.STTModel, p.STTModel)
	overlay(&out.TTSModel, p.TTSModel)
	overlay(&out.TTSVoice, p.TTSVoice)
	overlay(&out.LLMModel, p.LLMModel)
	overlay(&out.Language, p.Language)
	overlay(&out.SystemPrompt, p.SystemPrompt)
	overlay(&out.AudioFormat, p.AudioFormat)
	if p.Speed > 0 {
		out.Speed = p.Speed
	}
	if p.SampleRate > 0 {
		out.SampleRate = p.SampleRate
	}
	return out
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func setInt(n *int, def int) {
	if *n <= 0 {
		*n = def
	}
}
