package piper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xpanvictor/voxline/pkg/Logger"
	audioring "github.com/xpanvictor/voxline/pkg/io/stt/audioRing"
	"github.com/xpanvictor/voxline/pkg/io/tts"
)

type Piper struct {
	BaseURL string       // e.g. "http://tts:5000"
	Client  *http.Client // inject; default if nil
	Voice   string       // default voice (override per-call)
	Voices  map[string]bool
	Rate    int
	Timeout time.Duration // request timeout per phrase
	logger  *Logger.Logger
}

func New(baseURL string, voices []string, rate int, timeout time.Duration, logger *Logger.Logger) *Piper {
	p := &Piper{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Voices:  make(map[string]bool, len(voices)),
		Rate:    ifZero(rate, 22050),
		Timeout: timeout,
		logger:  logger,
	}
	for i, v := range voices {
		if i == 0 {
			p.Voice = v
		}
		p.Voices[v] = true
	}
	return p
}

func (p *Piper) Name() string    { return "piper" }
func (p *Piper) SampleRate() int { return p.Rate }

// HasVoice accepts any voice when no voice list is configured.
func (p *Piper) HasVoice(model, voice string) bool {
	if model != "" {
		return false
	}
	return voice == "" || len(p.Voices) == 0 || p.Voices[voice]
}

// Synthesize implements tts.Engine. Piper answers with a complete WAV, so the
// header is stripped and the samples are emitted as one block.
func (p *Piper) Synthesize(ctx context.Context, req tts.Request, emit func([]byte) error) error {
	rc, _, err := p.DoTTS(ctx, req.Text, req.Voice, req.Speed)
	if err != nil {
		return err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("tts read body: %w", err)
	}
	pcm, info, err := audioring.ParseWAV(body)
	if err != nil {
		return fmt.Errorf("tts returned invalid wav: %w", err)
	}
	if info.SampleRate != p.Rate {
		p.logger.Warnf("piper voice %q produced %dHz audio, configured %dHz", req.Voice, info.SampleRate, p.Rate)
	}
	return emit(pcm)
}

func (p *Piper) DoTTS(ctx context.Context, text string, optVoice string, speed float64) (io.ReadCloser, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("empty text")
	}
	voice := ifEmpty(optVoice, p.Voice)

	// rhasspy/wyoming-piper HTTP: GET /api/text-to-speech?text=...&voice=...
	u, err := url.Parse(p.BaseURL + "/api/text-to-speech")
	if err != nil {
		return nil, "", err
	}
	q := u.Query()
	q.Set("text", text)
	if voice != "" {
		q.Set("voice", voice)
	}
	if speed > 0 && speed != 1 {
		// piper slows down as length_scale grows
		q.Set("length_scale", strconv.FormatFloat(1/speed, 'f', 3, 64))
	}
	u.RawQuery = q.Encode()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx2, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, "", err
	}
	req.Header.Set("Accept", "audio/wav")

	hc := p.Client
	if hc == nil {
		hc = http.DefaultClient
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		cancel()
		return nil, "", fmt.Errorf("tts http request failed: %w (url=%s)", err, p.BaseURL)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, "", fmt.Errorf("tts http %d: %s (dur=%s)", resp.StatusCode, string(b), time.Since(start))
	}
	p.logger.Debugf("piper responded in %s for %d chars", time.Since(start), len(text))
	// caller must Close the body
	return &cancelBody{ReadCloser: resp.Body, cancel: cancel}, resp.Header.Get("Content-Type"), nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func ifEmpty(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

func ifZero(n, d int) int {
	if n == 0 {
		return d
	}
	return n
}
