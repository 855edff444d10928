package sys_manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/pkg/Logger"
)

// SystemTask is a periodic background job.
type SystemTask interface {
	Execute(ctx context.Context) error
	GetName() string
	GetInterval() time.Duration
}

// SystemManager runs the registered tasks, each on its own ticker.
type SystemManager struct {
	tasks   []SystemTask
	logger  *Logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
	// per-run bound
	taskTimeout time.Duration
}

// NewSystemManager creates a manager with no tasks registered.
func NewSystemManager(logger *Logger.Logger) *SystemManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SystemManager{
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		taskTimeout: 30 * time.Second,
	}
}

// RegisterTask adds a new task to be managed.
func (sm *SystemManager) RegisterTask(task SystemTask) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tasks = append(sm.tasks, task)
	sm.logger.Infof("registered system task %s (every %s)", task.GetName(), task.GetInterval())
}

// Start launches one ticker goroutine per registered task.
func (sm *SystemManager) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.running {
		return fmt.Errorf("system manager is already running")
	}
	sm.running = true
	for _, task := range sm.tasks {
		sm.wg.Add(1)
		go sm.runTask(task)
	}
	sm.logger.Infof("system manager started with %d tasks", len(sm.tasks))
	return nil
}

// Stop cancels every task and waits for in-flight runs to return.
func (sm *SystemManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.running {
		return nil
	}
	sm.cancel()
	sm.wg.Wait()
	sm.running = false
	sm.logger.Info("system manager stopped")
	return nil
}

// IsRunning reports whether Start has been called without Stop.
func (sm *SystemManager) IsRunning() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.running
}

// GetTaskCount returns the number of registered tasks.
func (sm *SystemManager) GetTaskCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.tasks)
}

func (sm *SystemManager) runTask(task SystemTask) {
	defer sm.wg.Done()
	ticker := time.NewTicker(task.GetInterval())
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.executeTask(task)
		}
	}
}

func (sm *SystemManager) executeTask(task SystemTask) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(sm.ctx, sm.taskTimeout)
	defer cancel()

	if err := task.Execute(ctx); err != nil {
		sm.logger.Errorf("system task %s failed after %s: %v", task.GetName(), time.Since(start), err)
		return
	}
	sm.logger.Debugf("system task %s completed in %s", task.GetName(), time.Since(start))
}

// SessionSweepTask expires sessions that stayed idle past the idle timeout.
type SessionSweepTask struct {
	store    *session.Store
	logger   *Logger.Logger
	interval time.Duration
	now      func() time.Time
}

// NewSessionSweepTask sweeps store every interval, one minute by default.
func NewSessionSweepTask(store *session.Store, logger *Logger.Logger, interval time.Duration) *SessionSweepTask {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweepTask{store: store, logger: logger, interval: interval, now: time.Now}
}

// Execute expires the idle sessions once.
func (t *SessionSweepTask) Execute(ctx context.Context) error {
	if n := t.store.Sweep(ctx, t.now()); n > 0 {
		t.logger.Infof("expired %d idle sessions", n)
	}
	return nil
}

func (t *SessionSweepTask) GetName() string { return "SessionSweepTask" }

func (t *SessionSweepTask) GetInterval() time.Duration { return t.interval }
