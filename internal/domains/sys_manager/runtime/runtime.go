package runtime

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// Every voice session has a runtime. It is driven by a single goroutine,
// the session coordinator.
//
//	idle -> listening -> processing -> speaking -> idle
//	listening|processing|speaking -> interrupted -> idle
type SessionRuntime struct {
	SessionID    string
	StateMachine *fsm.FSM
}

func events() fsm.Events {
	s := func(ps ...RuntimePhase) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = string(p)
		}
		return out
	}
	return fsm.Events{
		{Name: string(HEAR), Src: s(IDLE), Dst: string(LISTENING)},
		{Name: string(END), Src: s(LISTENING), Dst: string(PROCESSING)},
		{Name: string(SPEAK), Src: s(PROCESSING), Dst: string(SPEAKING)},
		{Name: string(FINISH), Src: s(PROCESSING, SPEAKING), Dst: string(IDLE)},
		{Name: string(FAIL), Src: s(PROCESSING, SPEAKING), Dst: string(IDLE)},
		{Name: string(INTERRUPT), Src: s(LISTENING, PROCESSING, SPEAKING), Dst: string(INTERRUPTED)},
		{Name: string(SETTLE), Src: s(INTERRUPTED), Dst: string(IDLE)},
	}
}

// NewSessionRuntime starts in idle. onEnter runs synchronously on every
// state change and must not fire events itself.
func NewSessionRuntime(sessionID string, onEnter func(from, to RuntimePhase)) *SessionRuntime {
	callbacks := fsm.Callbacks{}
	if onEnter != nil {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			onEnter(RuntimePhase(e.Src), RuntimePhase(e.Dst))
		}
	}
	return &SessionRuntime{
		SessionID:    sessionID,
		StateMachine: fsm.NewFSM(string(IDLE), events(), callbacks),
	}
}

func (r *SessionRuntime) Phase() RuntimePhase {
	return RuntimePhase(r.StateMachine.Current())
}

// Can reports whether ev is allowed in the current phase.
func (r *SessionRuntime) Can(ev RuntimeEvents) bool {
	return r.StateMachine.Can(string(ev))
}

func (r *SessionRuntime) Is(p RuntimePhase) bool {
	return r.StateMachine.Is(string(p))
}

// Fire applies ev. Invalid transitions return an error and leave the state
// untouched.
func (r *SessionRuntime) Fire(ctx context.Context, ev RuntimeEvents) error {
	err := r.StateMachine.Event(ctx, string(ev))
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}
