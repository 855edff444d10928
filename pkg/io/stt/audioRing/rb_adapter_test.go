package audioring

import (
	"bytes"
	"testing"
	"time"

	"github.com/xpanvictor/voxline/pkg/utils"
)

func TestIngestBufferAppendDrain(t *testing.T) {
	buffer := New(1024)

	if buffer.Capacity() != 1024 {
		t.Errorf("Expected capacity 1024, got %d", buffer.Capacity())
	}
	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer, got length %d", buffer.Len())
	}

	rest, full := buffer.Append([]byte{1, 2, 3, 4})
	if full || len(rest) != 0 {
		t.Fatalf("unexpected overflow: full=%v rest=%d", full, len(rest))
	}
	buffer.Append([]byte{5, 6})

	got := buffer.Drain()
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("drain mismatch: %v", got)
	}
	if buffer.Len() != 0 {
		t.Errorf("buffer should be empty after drain, got %d", buffer.Len())
	}
	if buffer.Drain() != nil {
		t.Error("second drain should be nil")
	}
}

func TestIngestBufferOverflowCarriesRest(t *testing.T) {
	buffer := New(8)

	rest, full := buffer.Append([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if !full {
		t.Fatal("expected full")
	}
	if !bytes.Equal(rest, []byte{9, 10}) {
		t.Errorf("rest mismatch: %v", rest)
	}
	if buffer.Len() != 8 {
		t.Errorf("expected 8 buffered bytes, got %d", buffer.Len())
	}
}

func TestIngestBufferClear(t *testing.T) {
	buffer := New(64)
	buffer.Append([]byte{1, 2, 3})
	buffer.Clear()
	if buffer.Len() != 0 {
		t.Errorf("expected empty after clear, got %d", buffer.Len())
	}
}

func TestNewForDuration(t *testing.T) {
	buffer := NewForDuration(2*time.Second, 16000, 1)
	if buffer.Capacity() != 64000 {
		t.Errorf("expected 64000 bytes, got %d", buffer.Capacity())
	}
}

func TestDecode(t *testing.T) {
	pcm := []byte{0, 1, 2, 3}

	u, err := Decode(FormatPCM16, 16000, pcm)
	if err != nil {
		t.Fatalf("pcm decode: %v", err)
	}
	if u.SampleRate != 16000 || !bytes.Equal(u.PCM, pcm) {
		t.Errorf("unexpected utterance %+v", u)
	}

	wav := EncodeWAV(pcm, 22050, 1)
	u, err = Decode(FormatWAV, 16000, wav)
	if err != nil {
		t.Fatalf("wav decode: %v", err)
	}
	if u.SampleRate != 22050 || !bytes.Equal(u.PCM, pcm) {
		t.Errorf("unexpected wav utterance %+v", u)
	}

	if _, err := Decode(FormatPCM16, 16000, []byte{1, 2, 3}); !utils.IsKind(err, utils.KindAudioFormat) {
		t.Errorf("odd pcm should be an audio format error, got %v", err)
	}
	if _, err := Decode("opus", 16000, pcm); !utils.IsKind(err, utils.KindAudioFormat) {
		t.Errorf("opus should be an audio format error, got %v", err)
	}
}

func TestPCMDuration(t *testing.T) {
	if d := PCMDuration(32000, 16000, 1); d != time.Second {
		t.Errorf("expected 1s, got %s", d)
	}
}
