package workpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool caps concurrent invocations of a shared engine across all sessions.
type Pool struct {
	name    string
	size    int64
	sem     *semaphore.Weighted
	running atomic.Int64
	waiting atomic.Int64
}

type Stats struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Running int64  `json:"running"`
	Waiting int64  `json:"waiting"`
}

// New creates a pool allowing size concurrent calls.
func New(name string, size int64) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{name: name, size: size, sem: semaphore.NewWeighted(size)}
}

// Do runs fn once a slot is free. Waiting honours ctx.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return err
	}
	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		p.sem.Release(1)
	}()
	return fn(ctx)
}

func (p *Pool) Stats() Stats {
	return Stats{Name: p.name, Size: p.size, Running: p.running.Load(), Waiting: p.waiting.Load()}
}
