package openaitts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/voxline/pkg/io/tts"
)

// OpenAI speech returns raw pcm at a fixed 24kHz, 16-bit mono.
const sampleRate = 24000

var (
	models = map[string]bool{"tts-1": true, "tts-1-hd": true, "gpt-4o-mini-tts": true}
	voices = map[string]bool{
		"alloy": true, "ash": true, "ballad": true, "coral": true, "echo": true,
		"fable": true, "onyx": true, "nova": true, "sage": true, "shimmer": true, "verse": true,
	}
)

type Client struct {
	client   openai.Client
	readSize int
}

func New(apiKey, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{client: openai.NewClient(opts...), readSize: 8192}
}

func (c *Client) Name() string    { return "openai" }
func (c *Client) SampleRate() int { return sampleRate }

func (c *Client) HasVoice(model, voice string) bool {
	return (model == "" || models[model]) && (voice == "" || voices[voice])
}

// Synthesize streams the response body as it arrives.
func (c *Client) Synthesize(ctx context.Context, req tts.Request, emit func([]byte) error) error {
	model := req.Model
	if model == "" {
		model = "tts-1"
	}
	voice := req.Voice
	if voice == "" {
		voice = "alloy"
	}
	params := openai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          openai.SpeechModel(model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Speed > 0 {
		params.Speed = openai.Float(req.Speed)
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, c.readSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if emitErr := emit(chunk); emitErr != nil {
				return emitErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai speech body: %w", err)
		}
	}
}
