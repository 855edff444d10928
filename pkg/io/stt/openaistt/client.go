package openaistt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/voxline/pkg/io/stt"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
)

const whisper1 = "whisper-1"

var models = map[string]bool{
	whisper1:                 true,
	"gpt-4o-transcribe":      true,
	"gpt-4o-mini-transcribe": true,
}

// Client transcribes through the OpenAI audio API. gpt-4o transcribe models
// stream deltas which are surfaced as interim text.
type Client struct {
	client openai.Client
}

func New(apiKey, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{client: openai.NewClient(opts...)}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) HasModel(model string) bool {
	return model == "" || models[model]
}

func (c *Client) Transcribe(ctx context.Context, req stt.Request, onInterim func(string)) (string, error) {
	model := req.Model
	if model == "" {
		model = whisper1
	}
	utt := req.Utterance
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audioring.EncodeWAV(utt.PCM, utt.SampleRate, utt.Channels)), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(model),
	}
	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}

	if model == whisper1 {
		res, err := c.client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("openai transcription: %w", err)
		}
		return strings.TrimSpace(res.Text), nil
	}

	stream := c.client.Audio.Transcriptions.NewStreaming(ctx, params)
	defer stream.Close()

	var partial, final strings.Builder
	done := false
	for stream.Next() {
		ev := stream.Current()
		switch ev.Type {
		case "transcript.text.delta":
			partial.WriteString(ev.Delta)
			if onInterim != nil {
				onInterim(strings.TrimSpace(partial.String()))
			}
		case "transcript.text.done":
			final.WriteString(ev.Text)
			done = true
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("openai transcription stream: %w", err)
	}
	if !done {
		return strings.TrimSpace(partial.String()), nil
	}
	return strings.TrimSpace(final.String()), nil
}
