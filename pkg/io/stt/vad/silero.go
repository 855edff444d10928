package vad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/xpanvictor/voxline/pkg/Logger"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
)

// shorter utterances are never sent to the service
const sileroMinAudio = 100 * time.Millisecond

type speechSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type sileroResponse struct {
	HasVoice   bool            `json:"has_voice"`
	Confidence float32         `json:"confidence"`
	Segments   []speechSegment `json:"segments"`
}

// speech sums segment lengths; segments are in seconds.
func (r sileroResponse) speech() time.Duration {
	var total float64
	for _, s := range r.Segments {
		if s.End > s.Start {
			total += s.End - s.Start
		}
	}
	return time.Duration(total * float64(time.Second))
}

// SileroVAD gates utterances through a Silero HTTP service. When the
// service is unreachable the energy gate decides instead.
type SileroVAD struct {
	cfg      VADConfig
	logger   *Logger.Logger
	client   *http.Client
	endpoint string
	fallback *EnergyVAD
	closed   atomic.Bool
}

func NewSileroVAD(cfg VADConfig, logger *Logger.Logger, serviceURL string) *SileroVAD {
	return &SileroVAD{
		cfg:      cfg,
		logger:   logger,
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: serviceURL + "/vad",
		fallback: NewEnergyVAD(cfg),
	}
}

func (s *SileroVAD) DetectVoice(ctx context.Context, utt audioring.Utterance) (VADResult, error) {
	if s.closed.Load() {
		return VADResult{}, fmt.Errorf("silero gate closed")
	}
	if utt.Duration() < sileroMinAudio {
		return VADResult{}, nil
	}

	res, err := s.query(ctx, utt)
	if err != nil {
		s.logger.Warnf("silero unavailable, using energy gate: %v", err)
		return s.fallback.DetectVoice(ctx, utt)
	}

	voiced := res.HasVoice
	// trust the segments when the service reports them
	if len(res.Segments) > 0 {
		voiced = res.speech() >= time.Duration(s.cfg.MinSpeechMs)*time.Millisecond
	}
	s.logger.Debugf("silero: voiced=%v confidence=%.2f speech=%s of %s",
		voiced, res.Confidence, res.speech(), utt.Duration())
	return VADResult{HasVoice: voiced, Confidence: res.Confidence}, nil
}

func (s *SileroVAD) query(ctx context.Context, utt audioring.Utterance) (*sileroResponse, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audioring.EncodeWAV(utt.PCM, utt.SampleRate, utt.Channels)); err != nil {
		return nil, err
	}
	fields := map[string]int{
		"min_speech_duration_ms":  s.cfg.MinSpeechMs,
		"min_silence_duration_ms": s.cfg.MinSilenceMs,
		"sampling_rate":           utt.SampleRate,
	}
	for k, v := range fields {
		if err := form.WriteField(k, strconv.Itoa(v)); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out sileroResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding silero response: %w", err)
	}
	return &out, nil
}

func (s *SileroVAD) Close() error {
	s.closed.Store(true)
	return nil
}
