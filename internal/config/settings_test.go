package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
debug: true
pipeline:
  transcription_timeout: 3s
  lookahead: 2
defaults:
  tts_voice: en_US-amy-medium
  llm_model: "ollama:llama3"
  speed: 1.1
projects:
  acme/support:
    tts_voice: am_adam
    speed: 1.2
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config_test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	s, err := LoadFile(writeConfig(t))
	require.NoError(t, err)

	assert.True(t, s.Debug)
	assert.Equal(t, 3*time.Second, s.Pipeline.TranscriptionTimeout)
	assert.Equal(t, 2, s.Pipeline.Lookahead)
	// untouched knobs fall back
	assert.Equal(t, 500*time.Millisecond, s.Pipeline.InterruptGrace)
	assert.Equal(t, 240, s.Pipeline.MaxPhraseChars)
	assert.Equal(t, 10*time.Minute, s.Session.IdleTimeout)
	assert.Equal(t, "pcm_s16le", s.Defaults.AudioFormat)
	assert.Equal(t, 16000, s.Defaults.SampleRate)
}

func TestProjectDefaultsOverlay(t *testing.T) {
	s, err := LoadFile(writeConfig(t))
	require.NoError(t, err)

	d := s.ProjectDefaults("acme", "support")
	assert.Equal(t, "am_adam", d.TTSVoice)
	assert.Equal(t, 1.2, d.Speed)
	assert.Equal(t, "ollama:llama3", d.LLMModel)

	other := s.ProjectDefaults("acme", "sales")
	assert.Equal(t, "en_US-amy-medium", other.TTSVoice)
	assert.Equal(t, 1.1, other.Speed)
}

func TestDSN(t *testing.T) {
	d := DBConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Name: "voice"}
	assert.Equal(t, "u:p@tcp(db:3306)/voice?charset=utf8mb4&parseTime=True&loc=UTC", d.DSN())
	assert.True(t, d.Enabled())
}
