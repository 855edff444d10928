package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxline/internal/config"
	"github.com/xpanvictor/voxline/pkg/Logger"
	"github.com/xpanvictor/voxline/pkg/utils"
)

type StoreStats struct {
	Sessions int `json:"sessions"`
	Leased   int `json:"leased"`
}

// Store holds live sessions and, when a Snapshotter is set, mirrors them so
// a resume can outlive the process.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	snaps       Snapshotter
	idleTimeout time.Duration
	leaseWait   time.Duration
	logger      *Logger.Logger
	now         func() time.Time
}

// NewStore creates an empty store. snaps may be nil.
func NewStore(cfg config.SessionConfig, snaps Snapshotter, logger *Logger.Logger) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		snaps:       snaps,
		idleTimeout: cfg.IdleTimeout,
		leaseWait:   cfg.LeaseWait,
		logger:      logger,
		now:         time.Now,
	}
}

// Create registers a new idle session at epoch 0.
func (st *Store) Create(cfg Config) *Session {
	s := newSession(uuid.NewString(), cfg, st.now())
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	st.logger.Debugf("session %s created", s.ID)
	return s
}

// Get returns a live in-memory session.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Resume returns the session if it is still within the idle window. The
// state restarts at idle; history and config carry over.
func (st *Store) Resume(ctx context.Context, id string) (*Session, error) {
	now := st.now()
	if s, ok := st.Get(id); ok {
		if st.expired(s, now) && !s.leased() {
			st.Expire(ctx, id)
			return nil, utils.Errorf(utils.KindSessionNotFound, "session %s expired", id)
		}
		s.SetState("idle")
		s.touch(now)
		return s, nil
	}
	if st.snaps == nil {
		return nil, utils.Errorf(utils.KindSessionNotFound, "session %s not found", id)
	}

	snap, err := st.snaps.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.idleTimeout > 0 && now.Sub(snap.LastActive) > st.idleTimeout {
		_ = st.snaps.Delete(ctx, id)
		return nil, utils.Errorf(utils.KindSessionNotFound, "session %s expired", id)
	}

	s := newSession(snap.ID, snap.Config, snap.CreatedAt)
	s.history = snap.History
	s.epoch.Store(snap.Epoch)
	s.lastActive = now

	st.mu.Lock()
	// a concurrent resume may have won
	if cur, ok := st.sessions[id]; ok {
		st.mu.Unlock()
		return cur, nil
	}
	st.sessions[id] = s
	st.mu.Unlock()
	st.logger.Infof("session %s restored from snapshot (%d turns)", id, len(snap.History))
	return s, nil
}

// Touch refreshes the idle timer of id.
func (st *Store) Touch(id string) {
	if s, ok := st.Get(id); ok {
		s.touch(st.now())
	}
}

// Expire revokes the active holder, forgets the session and drops its
// snapshot.
func (st *Store) Expire(ctx context.Context, id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		s.mu.RLock()
		revoke := s.revoke
		s.mu.RUnlock()
		if revoke != nil {
			revoke()
		}
	}
	if st.snaps != nil {
		if err := st.snaps.Delete(ctx, id); err != nil {
			st.logger.Warnf("session %s: snapshot delete failed: %v", id, err)
		}
	}
}

// Sweep expires sessions idle longer than the idle timeout. Sessions with a
// connected client are kept.
func (st *Store) Sweep(ctx context.Context, now time.Time) int {
	st.mu.RLock()
	var stale []string
	for id, s := range st.sessions {
		if !s.leased() && st.expired(s, now) {
			stale = append(stale, id)
		}
	}
	st.mu.RUnlock()

	for _, id := range stale {
		st.Expire(ctx, id)
	}
	return len(stale)
}

func (st *Store) expired(s *Session, now time.Time) bool {
	return st.idleTimeout > 0 && now.Sub(s.LastActive()) > st.idleTimeout
}

// Persist writes the session snapshot, if snapshots are enabled.
func (st *Store) Persist(ctx context.Context, s *Session) error {
	if st.snaps == nil {
		return nil
	}
	return st.snaps.Save(ctx, s.snapshot(), st.idleTimeout)
}

// Stats counts live and leased sessions.
func (st *Store) Stats() StoreStats {
	st.mu.RLock()
	defer st.mu.RUnlock()
	stats := StoreStats{Sessions: len(st.sessions)}
	for _, s := range st.sessions {
		if s.leased() {
			stats.Leased++
		}
	}
	return stats
}

// Lease marks exclusive ownership of a session by one pipeline.
type Lease struct {
	s    *Session
	once sync.Once
}

func (l *Lease) Session() *Session { return l.s }

// Release frees the session for the next connection. Safe to call twice.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.s.mu.Lock()
		l.s.revoke = nil
		l.s.mu.Unlock()
		<-l.s.lease
	})
}

// Acquire takes the session lease. A current holder is revoked and given
// up to the lease wait to let go.
func (st *Store) Acquire(ctx context.Context, s *Session, revoke func()) (*Lease, error) {
	select {
	case s.lease <- struct{}{}:
	default:
		s.mu.RLock()
		prev := s.revoke
		s.mu.RUnlock()
		if prev != nil {
			st.logger.Infof("session %s taken over by a new connection", s.ID)
			prev()
		}

		wait := st.leaseWait
		if wait <= 0 {
			wait = 5 * time.Second
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case s.lease <- struct{}{}:
		case <-timer.C:
			return nil, utils.Errorf(utils.KindInternal, "session %s is still held by another connection", s.ID)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	s.revoke = revoke
	s.mu.Unlock()
	return &Lease{s: s}, nil
}
