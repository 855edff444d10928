package vad

import (
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/voxline/pkg/Logger"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
)

func tone(ms int, amp float64) []byte {
	n := 16000 * ms / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestEnergyVADSilence(t *testing.T) {
	v := NewEnergyVAD(DefaultVADConfig())
	res, err := v.DetectVoice(context.Background(), audioring.Utterance{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	assert.False(t, res.HasVoice)
}

func TestEnergyVADTone(t *testing.T) {
	v := NewEnergyVAD(DefaultVADConfig())
	res, err := v.DetectVoice(context.Background(), audioring.Utterance{PCM: tone(500, 8000), SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	assert.True(t, res.HasVoice)
	assert.Greater(t, res.Confidence, float32(0))
}

func TestSileroFallsBackToEnergy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := NewSileroVAD(DefaultVADConfig(), Logger.Nop(), srv.URL)
	res, err := v.DetectVoice(context.Background(), audioring.Utterance{PCM: tone(500, 8000), SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	assert.True(t, res.HasVoice)
}

func TestSileroUsesService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vad", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"has_voice":false,"confidence":0.1,"segments":[]}`))
	}))
	defer srv.Close()

	v := NewSileroVAD(DefaultVADConfig(), Logger.Nop(), srv.URL)
	res, err := v.DetectVoice(context.Background(), audioring.Utterance{PCM: tone(500, 8000), SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	assert.False(t, res.HasVoice)
}

func TestSileroSegmentsDecide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// a single 50ms blip is below the 100ms minimum speech
		_, _ = w.Write([]byte(`{"has_voice":true,"confidence":0.6,"segments":[{"start":0.10,"end":0.15}]}`))
	}))
	defer srv.Close()

	v := NewSileroVAD(DefaultVADConfig(), Logger.Nop(), srv.URL)
	res, err := v.DetectVoice(context.Background(), audioring.Utterance{PCM: tone(500, 8000), SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	assert.False(t, res.HasVoice)
}

func TestSileroClosed(t *testing.T) {
	v := NewSileroVAD(DefaultVADConfig(), Logger.Nop(), "http://127.0.0.1:1")
	require.NoError(t, v.Close())
	_, err := v.DetectVoice(context.Background(), audioring.Utterance{PCM: tone(500, 8000), SampleRate: 16000, Channels: 1})
	assert.Error(t, err)
}
