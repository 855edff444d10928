package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xpanvictor/voxline/pkg/Logger"
	"github.com/xpanvictor/voxline/pkg/io/stt"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
)

// TranscriptionResponse represents the response from Whisper STT service
type TranscriptionResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Segments []TranscriptionSegment `json:"segments,omitempty"`
}

// TranscriptionSegment represents a timed segment of transcription
type TranscriptionSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	ID    int     `json:"id"`
}

// WhisperClient talks to whisper-asr-webservice instances. Each model size
// runs as its own instance, so model selection is a base url lookup.
type WhisperClient struct {
	baseURL    string
	models     map[string]string
	httpClient *http.Client
	logger     *Logger.Logger
}

// NewWhisperClient creates a new Whisper client
func NewWhisperClient(baseURL string, models map[string]string, timeout time.Duration, logger *Logger.Logger) *WhisperClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhisperClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		models:     models,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (w *WhisperClient) Name() string { return "whisper" }

func (w *WhisperClient) HasModel(model string) bool {
	if model == "" {
		return w.baseURL != ""
	}
	_, ok := w.models[model]
	return ok
}

func (w *WhisperClient) urlFor(model string) string {
	if u, ok := w.models[model]; ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	return w.baseURL
}

// Transcribe implements stt.Engine. Segments are reported as interim text
// before the final transcript is returned.
func (w *WhisperClient) Transcribe(ctx context.Context, req stt.Request, onInterim func(string)) (string, error) {
	res, err := w.TranscribeAudio(ctx, req)
	if err != nil {
		return "", err
	}
	if onInterim != nil && len(res.Segments) > 1 {
		var sb strings.Builder
		for _, seg := range res.Segments[:len(res.Segments)-1] {
			sb.WriteString(seg.Text)
			onInterim(strings.TrimSpace(sb.String()))
		}
	}
	return strings.TrimSpace(res.Text), nil
}

// TranscribeAudio sends one utterance to Whisper and returns the raw response
func (w *WhisperClient) TranscribeAudio(ctx context.Context, req stt.Request) (*TranscriptionResponse, error) {
	utt := req.Utterance
	if len(utt.PCM) == 0 {
		return nil, fmt.Errorf("no audio provided")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audioring.EncodeWAV(utt.PCM, utt.SampleRate, utt.Channels)); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	q := url.Values{}
	q.Set("encode", "true")
	q.Set("task", "transcribe")
	q.Set("output", "json")
	if req.Language != "" {
		q.Set("language", req.Language)
	}
	requestURL := w.urlFor(req.Model) + "/asr?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		w.logger.Errorf("Whisper service error (status %d): %s", resp.StatusCode, string(responseBody))
		return nil, fmt.Errorf("whisper service returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	var transcription TranscriptionResponse
	if err := json.Unmarshal(responseBody, &transcription); err != nil {
		// output=txt deployments answer with the bare transcript
		text := strings.TrimSpace(string(responseBody))
		w.logger.Debugf("whisper returned non-json body, using it as text (len=%d)", len(text))
		return &TranscriptionResponse{Text: text, Language: req.Language}, nil
	}

	w.logger.Debugf("Whisper transcription: %q (language: %s)", transcription.Text, transcription.Language)
	return &transcription, nil
}
