package vad

import (
	"context"

	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
)

// VADResult represents the result of voice activity detection
type VADResult struct {
	HasVoice   bool    `json:"hasVoice"`
	Confidence float32 `json:"confidence"`
}

// VAD decides whether a finished utterance holds any speech. It gates the
// STT engine so silence yields an empty transcript without a model call.
type VAD interface {
	DetectVoice(ctx context.Context, utt audioring.Utterance) (VADResult, error)
	Close() error
}

// VADConfig contains configuration for VAD
type VADConfig struct {
	// RMS amplitude on the int16 scale
	Threshold    float64 `json:"threshold"`
	WindowMs     int     `json:"windowMs"`
	MinSpeechMs  int     `json:"minSpeechMs"`
	MinSilenceMs int     `json:"minSilenceMs"`
}

func DefaultVADConfig() VADConfig {
	return VADConfig{
		Threshold:    300,
		WindowMs:     20,
		MinSpeechMs:  100,
		MinSilenceMs: 200,
	}
}
