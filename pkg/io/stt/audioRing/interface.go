package audioring

import "time"

type Format string

const (
	FormatPCM16 Format = "pcm_s16le"
	FormatWAV   Format = "wav"
)

// Utterance is one end-of-utterance hand-off, already decoded to
// 16-bit little endian PCM.
type Utterance struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Format     Format
	StartedAt  time.Time
}

func (u Utterance) Duration() time.Duration {
	return PCMDuration(len(u.PCM), u.SampleRate, u.Channels)
}

// IngestBuffer accumulates raw client frames for the current utterance.
// It is owned by a single session coordinator and is not safe for
// concurrent use.
type IngestBuffer interface {
	// Append stores as much of frame as fits. The remainder is returned
	// with full=true once the cap is reached.
	Append(frame []byte) (rest []byte, full bool)
	// Drain hands over the accumulated bytes and empties the buffer.
	Drain() []byte
	Clear()
	Len() int
	Capacity() int
	StartedAt() time.Time
}

// PCMDuration converts a 16-bit PCM byte count to playback time.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	if channels <= 0 {
		channels = 1
	}
	samples := n / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
