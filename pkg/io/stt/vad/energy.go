package vad

import (
	"context"
	"encoding/binary"
	"math"

	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
)

// EnergyVAD flags speech when enough short windows exceed an RMS threshold.
type EnergyVAD struct {
	config VADConfig
}

func NewEnergyVAD(cfg VADConfig) *EnergyVAD {
	def := DefaultVADConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = def.WindowMs
	}
	if cfg.MinSpeechMs <= 0 {
		cfg.MinSpeechMs = def.MinSpeechMs
	}
	return &EnergyVAD{config: cfg}
}

func (e *EnergyVAD) DetectVoice(_ context.Context, utt audioring.Utterance) (VADResult, error) {
	return e.detect(utt), nil
}

func (e *EnergyVAD) detect(utt audioring.Utterance) VADResult {
	channels := utt.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := utt.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	window := rate * e.config.WindowMs / 1000 * channels * 2
	if window <= 0 || len(utt.PCM) < 2 {
		return VADResult{}
	}

	voiced, total := 0, 0
	peak := 0.0
	for off := 0; off+2 <= len(utt.PCM); off += window {
		end := off + window
		if end > len(utt.PCM) {
			end = len(utt.PCM)
		}
		rms := rmsS16(utt.PCM[off:end])
		if rms > peak {
			peak = rms
		}
		if rms > e.config.Threshold {
			voiced++
		}
		total++
	}

	needed := e.config.MinSpeechMs / e.config.WindowMs
	if needed < 1 {
		needed = 1
	}
	// short clips count if every window is voiced
	if total < needed {
		needed = total
	}
	confidence := float32(peak / (e.config.Threshold * 2))
	if confidence > 1 {
		confidence = 1
	}
	return VADResult{HasVoice: voiced >= needed && voiced > 0, Confidence: confidence}
}

func (e *EnergyVAD) Close() error { return nil }

func rmsS16(b []byte) float64 {
	n := len(b) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(b); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(b[i:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
