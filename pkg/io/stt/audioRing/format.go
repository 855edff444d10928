package audioring

import (
	"encoding/binary"
	"fmt"

	"github.com/xpanvictor/voxline/pkg/utils"
)

// Decode validates raw client bytes in the declared format and returns PCM.
func Decode(format Format, sampleRate int, raw []byte) (Utterance, error) {
	switch format {
	case FormatPCM16, "":
		if len(raw)%2 != 0 {
			return Utterance{}, utils.Errorf(utils.KindAudioFormat, "pcm_s16le payload has odd length %d", len(raw))
		}
		return Utterance{PCM: raw, SampleRate: sampleRate, Channels: 1, Format: FormatPCM16}, nil
	case FormatWAV:
		pcm, info, err := ParseWAV(raw)
		if err != nil {
			return Utterance{}, utils.NewError(utils.KindAudioFormat, "invalid wav payload", err)
		}
		if info.BitsPerSample != 16 || info.AudioFormat != 1 {
			return Utterance{}, utils.Errorf(utils.KindAudioFormat, "wav must be 16-bit PCM, got format=%d bits=%d", info.AudioFormat, info.BitsPerSample)
		}
		return Utterance{PCM: pcm, SampleRate: info.SampleRate, Channels: info.Channels, Format: FormatWAV}, nil
	}
	return Utterance{}, utils.Errorf(utils.KindAudioFormat, "unsupported audio format %q", format)
}

type WAVInfo struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// ParseWAV walks the RIFF chunks and returns the data chunk.
func ParseWAV(b []byte) ([]byte, WAVInfo, error) {
	var info WAVInfo
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, info, fmt.Errorf("missing RIFF/WAVE header")
	}
	off := 12
	haveFmt := false
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(b) {
				return nil, info, fmt.Errorf("short fmt chunk")
			}
			info.AudioFormat = int(binary.LittleEndian.Uint16(b[body:]))
			info.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, info, fmt.Errorf("data chunk before fmt chunk")
			}
			end := body + size
			// streamed wav bodies often carry a placeholder size
			if end > len(b) || size == 0 || size == 0xFFFFFFFF {
				end = len(b)
			}
			return b[body:end], info, nil
		}
		off = body + size + size%2
	}
	return nil, info, fmt.Errorf("no data chunk")
}

// EncodeWAV wraps 16-bit PCM in a canonical 44 byte header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, 44, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	return append(out, pcm...)
}
