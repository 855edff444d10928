package app

import (
	"context"
	"fmt"

	"github.com/xpanvictor/voxline/pkg/assistant/adapters"
	geminiad "github.com/xpanvictor/voxline/pkg/assistant/adapters/gemini"
	ollamaad "github.com/xpanvictor/voxline/pkg/assistant/adapters/ollama"
	openaiad "github.com/xpanvictor/voxline/pkg/assistant/adapters/openai"
	gp "github.com/xpanvictor/voxline/pkg/assistant/providers/gemini"
	olp "github.com/xpanvictor/voxline/pkg/assistant/providers/ollama"
	"github.com/xpanvictor/voxline/pkg/assistant/router"
	"github.com/xpanvictor/voxline/pkg/io/stt"
	"github.com/xpanvictor/voxline/pkg/io/stt/openaistt"
	"github.com/xpanvictor/voxline/pkg/io/stt/vad"
	"github.com/xpanvictor/voxline/pkg/io/stt/whisper"
	"github.com/xpanvictor/voxline/pkg/io/tts"
	"github.com/xpanvictor/voxline/pkg/io/tts/openaitts"
	"github.com/xpanvictor/voxline/pkg/io/tts/piper"
)

func (a *App) buildSTT() (*stt.Registry, error) {
	cfg := a.Config.Voice.STT
	var engines []stt.Engine
	if cfg.Whisper.URL != "" || len(cfg.Whisper.Models) > 0 {
		engines = append(engines, whisper.NewWhisperClient(cfg.Whisper.URL, cfg.Whisper.Models, cfg.Whisper.Timeout, a.Logger))
	}
	if cfg.OpenAI {
		engines = append(engines, openaistt.New(a.Config.OpenAI.APIKey, a.Config.OpenAI.BaseURL))
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("no speech-to-text engine configured")
	}
	return stt.NewRegistry(cfg.Default, engines...), nil
}

func (a *App) buildTTS() (*tts.Registry, error) {
	cfg := a.Config.Voice.TTS
	var engines []tts.Engine
	if cfg.Piper.URL != "" {
		engines = append(engines, piper.New(cfg.Piper.URL, cfg.Piper.Voices, cfg.Piper.SampleRate, cfg.Piper.Timeout, a.Logger))
	}
	if cfg.OpenAI {
		engines = append(engines, openaitts.New(a.Config.OpenAI.APIKey, a.Config.OpenAI.BaseURL))
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("no text-to-speech engine configured")
	}
	return tts.NewRegistry(cfg.Default, engines...), nil
}

// buildLLM wires every configured backend into one router.
func (a *App) buildLLM(ctx context.Context) (*router.Mux, error) {
	cfg := a.Config.LLM
	var ads []adapters.ContractAdapter

	if len(cfg.Ollama.Servers) > 0 {
		provider := olp.New(cfg.Ollama, a.Logger)
		ads = append(ads, ollamaad.New(provider, first(cfg.Ollama.Models)))
	}
	if cfg.Gemini.APIKey != "" {
		provider, err := gp.New(ctx, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		a.closers = append(a.closers, provider.Close)
		ads = append(ads, geminiad.New(provider, first(cfg.Gemini.Models)))
	}
	if cfg.OpenAI {
		ads = append(ads, openaiad.New(a.Config.OpenAI.APIKey, a.Config.OpenAI.BaseURL, "", nil))
	}

	if len(ads) == 0 {
		return nil, fmt.Errorf("no LLM adapters configured")
	}
	mux := router.New(cfg.Default, ads...)
	a.Logger.Infof("LLM router created with %d adapter(s): %v", len(ads), mux.Backends())
	return mux, nil
}

// buildVAD returns nil when the silence gate is off.
func (a *App) buildVAD() vad.VAD {
	cfg := a.Config.Voice.VAD
	vcfg := vad.DefaultVADConfig()
	vcfg.Threshold = cfg.Threshold

	switch cfg.Mode {
	case "off":
		return nil
	case "silero":
		return vad.NewSileroVAD(vcfg, a.Logger, cfg.SileroURL)
	default:
		return vad.NewEnergyVAD(vcfg)
	}
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
