package io

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/voxline/pkg/Logger"
	"github.com/xpanvictor/voxline/pkg/io/device/devicetest"
	"github.com/xpanvictor/voxline/pkg/utils"
)

func newTestPublisher(rec *devicetest.Recorder, epoch *atomic.Uint64, cfg PublisherConfig) *Publisher {
	return NewPublisher(rec, epoch.Load, cfg, Logger.Nop())
}

func drain(t *testing.T, p *Publisher) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestPublisherKeepsOrder(t *testing.T) {
	rec := devicetest.NewRecorder()
	var epoch atomic.Uint64
	p := newTestPublisher(rec, &epoch, PublisherConfig{})

	p.SessionInfo("s1", false)
	p.Status("listening")
	p.Transcription(0, "hi", true)
	p.LLMText(0, 0, "Hello.", true)
	p.TTSStart(0, 0)
	require.NoError(t, p.Audio(context.Background(), 0, []byte{1, 2}))
	p.TTSDone(0, 0, 0.5)
	p.Status("idle")
	drain(t, p)

	assert.Equal(t, []string{
		"session_info", "status:listening", "transcription", "llm_text",
		"tts_start", "audio", "tts_done", "status:idle",
	}, rec.Types())
	assert.Equal(t, 0.5, rec.Events()[6].JSON["duration"])
}

func TestPublisherDropsStaleEpochAtWriteTime(t *testing.T) {
	rec := devicetest.NewRecorder()
	rec.Gate = make(chan struct{})
	var epoch atomic.Uint64
	p := newTestPublisher(rec, &epoch, PublisherConfig{})

	// holds the writer at the gate
	p.Status("speaking")
	p.TTSStart(0, 0)
	require.NoError(t, p.Audio(context.Background(), 0, []byte{1, 2}))
	p.Status("interrupted")

	// the interrupt lands while everything is still queued
	epoch.Store(1)
	close(rec.Gate)
	drain(t, p)

	assert.Equal(t, []string{"status:speaking", "status:interrupted"}, rec.Types())
	assert.Equal(t, int64(2), p.Stats().StaleDropped)
}

func TestPublisherAudioBudgetBlocks(t *testing.T) {
	rec := devicetest.NewRecorder()
	rec.Gate = make(chan struct{})
	var epoch atomic.Uint64
	p := newTestPublisher(rec, &epoch, PublisherConfig{AudioBudget: 2})

	require.NoError(t, p.Audio(context.Background(), 0, []byte{1, 2}))
	require.NoError(t, p.Audio(context.Background(), 0, []byte{3, 4}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Audio(ctx, 0, []byte{5, 6}), context.DeadlineExceeded)

	close(rec.Gate)
	require.NoError(t, p.Audio(context.Background(), 0, []byte{5, 6}))
	drain(t, p)
	assert.Len(t, rec.Events(), 3)
}

func TestPublisherDropsInterimWhenCongested(t *testing.T) {
	rec := devicetest.NewRecorder()
	rec.Gate = make(chan struct{})
	var epoch atomic.Uint64
	p := newTestPublisher(rec, &epoch, PublisherConfig{InterimDropThreshold: 2})

	p.Status("processing")
	p.Status("processing")
	p.Status("processing")
	p.Transcription(0, "partial", false)
	p.Transcription(0, "final", true)
	close(rec.Gate)
	drain(t, p)

	types := rec.Types()
	assert.Equal(t, "transcription", types[len(types)-1])
	assert.Equal(t, true, rec.Events()[len(types)-1].JSON["is_final"])
	assert.Equal(t, int64(1), p.Stats().InterimDropped)
}

func TestPublisherErrorMessage(t *testing.T) {
	rec := devicetest.NewRecorder()
	var epoch atomic.Uint64
	p := newTestPublisher(rec, &epoch, PublisherConfig{})

	p.Error(utils.Errorf(utils.KindModelUnavailable, "no such model"), true)
	p.Closed()
	drain(t, p)

	evs := rec.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, "model_unavailable", evs[0].JSON["code"])
	assert.Equal(t, true, evs[0].JSON["fatal"])
	assert.Equal(t, "closed", evs[1].Type)
}

func TestPublisherWriteFailureUnblocksAudio(t *testing.T) {
	rec := devicetest.NewRecorder()
	rec.FailAfter = 1
	var epoch atomic.Uint64
	p := newTestPublisher(rec, &epoch, PublisherConfig{AudioBudget: 1})

	p.Status("speaking")
	<-p.Done()
	assert.ErrorIs(t, p.Audio(context.Background(), 0, []byte{1, 2}), ErrPublisherClosed)
	assert.Error(t, p.Err())
}
