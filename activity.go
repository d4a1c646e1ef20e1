package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityScanAccepted ActivityEventType = "scan.accepted"
	ActivityScanIgnored  ActivityEventType = "scan.ignored"
	ActivityScanResult   ActivityEventType = "scan.result"
	ActivityScanReset    ActivityEventType = "scan.reset"
	ActivityScanDropped  ActivityEventType = "scan.dropped"
	ActivityCameraFacing ActivityEventType = "camera.facing"
	ActivityRefresh      ActivityEventType = "scanner.refresh"
)

// ActivityEvent captures audit friendly information about a scan cycle.
type ActivityEvent struct {
	EventType  ActivityEventType
	Scanner    string
	AttemptID  uuid.UUID
	Token      Token
	FromState  ScanState
	ToState    ScanState
	Trigger    Trigger
	Outcome    *Outcome
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// MultiActivitySink forwards every event to each sink. Errors are joined,
// a failing sink does not stop the others.
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	out := make([]ActivitySink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	if len(out) == 0 {
		return noopActivitySink{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return multiActivitySink(out)
}

type multiActivitySink []ActivitySink

func (m multiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
