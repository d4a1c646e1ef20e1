package scanner

import (
	"context"
	"time"
)

// Trigger names the event that caused a transition.
type Trigger string

const (
	TriggerMount     Trigger = "mount"
	TriggerDecode    Trigger = "decode"
	TriggerResolved  Trigger = "resolved"
	TriggerFailed    Trigger = "failed"
	TriggerTimeout   Trigger = "timeout"
	TriggerScanAgain Trigger = "scan_again"
	TriggerDwell     Trigger = "dwell"
	TriggerRefresh   Trigger = "refresh"
)

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Scanner string
	From    ScanState
	To      ScanState
	Trigger Trigger
	At      time.Time
}

// TransitionHook is executed after a transition was applied.
type TransitionHook func(ctx context.Context, tc TransitionContext)

// stateMachine holds the scan state and the allowed transition graph. It is
// owned by the scanner loop goroutine and is not safe for concurrent use.
type stateMachine struct {
	name        string
	current     ScanState
	enteredAt   time.Time
	transitions map[ScanState]map[ScanState]struct{}
	now         func() time.Time
	hooks       []TransitionHook
}

func newStateMachine(name string, now func() time.Time, hooks ...TransitionHook) *stateMachine {
	if now == nil {
		now = time.Now
	}
	return &stateMachine{
		name:      name,
		current:   StateIdle,
		enteredAt: now(),
		transitions: map[ScanState]map[ScanState]struct{}{
			StateIdle: {
				StateProcessing: {},
			},
			StateProcessing: {
				StateResult: {},
			},
			StateResult: {
				StateIdle: {},
			},
		},
		now:   now,
		hooks: hooks,
	}
}

func (sm *stateMachine) Current() ScanState {
	return sm.current
}

func (sm *stateMachine) Is(state ScanState) bool {
	return sm.current == state
}

func (sm *stateMachine) EnteredAt() time.Time {
	return sm.enteredAt
}

func (sm *stateMachine) canTransition(from, to ScanState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition moves to target when the graph allows it.
func (sm *stateMachine) Transition(ctx context.Context, target ScanState, trigger Trigger) (TransitionContext, error) {
	from := sm.current
	if target == "" {
		return TransitionContext{}, newInvalidTransition(from, target, "target state is empty")
	}

	if !sm.canTransition(from, target) {
		return TransitionContext{}, newInvalidTransition(from, target, string(trigger))
	}

	tc := TransitionContext{
		Scanner: sm.name,
		From:    from,
		To:      target,
		Trigger: trigger,
		At:      sm.now(),
	}

	sm.current = target
	sm.enteredAt = tc.At

	for _, hook := range sm.hooks {
		if hook != nil {
			hook(ctx, tc)
		}
	}

	return tc, nil
}
