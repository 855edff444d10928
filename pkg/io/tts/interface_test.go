package tts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/voxline/pkg/utils"
)

type stubEngine struct {
	name   string
	models map[string]bool
	voices map[string]bool
}

func (s stubEngine) Name() string    { return s.name }
func (s stubEngine) SampleRate() int { return 22050 }

func (s stubEngine) HasVoice(model, voice string) bool {
	return (model == "" || s.models[model]) && (voice == "" || s.voices[voice])
}

func (s stubEngine) Synthesize(context.Context, Request, func([]byte) error) error { return nil }

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry("piper",
		stubEngine{name: "piper", voices: map[string]bool{"am_adam": true}},
		stubEngine{name: "openai", models: map[string]bool{"tts-1": true}, voices: map[string]bool{"alloy": true}},
	)

	e, model, err := r.Resolve("", "am_adam")
	require.NoError(t, err)
	assert.Equal(t, "piper", e.Name())
	assert.Equal(t, "", model)

	e, model, err = r.Resolve("openai:tts-1", "alloy")
	require.NoError(t, err)
	assert.Equal(t, "openai", e.Name())
	assert.Equal(t, "tts-1", model)

	_, _, err = r.Resolve("", "nobody")
	assert.True(t, utils.IsKind(err, utils.KindModelUnavailable))

	_, _, err = r.Resolve("elevenlabs:v2", "")
	assert.True(t, utils.IsFatal(err))
}

func TestChunkerKeepsSampleAlignment(t *testing.T) {
	var got [][]byte
	c := NewChunker(5, func(b []byte) error { got = append(got, b); return nil })

	require.NoError(t, c.Write(make([]byte, 3)))
	require.NoError(t, c.Write(make([]byte, 8)))
	require.NoError(t, c.Flush())

	// size rounds down to 4; 11 bytes -> 4, 4, 2 (odd tail byte dropped)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 4)
	assert.Len(t, got[1], 4)
	assert.Len(t, got[2], 2)
}
