package scanner

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Logger is the structured logger used across the scanner packages.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// ScanState is the state of a scanner instance.
type ScanState string

const (
	// StateIdle camera active, waiting for a token
	StateIdle ScanState = "idle"
	// StateProcessing token captured, verification in flight
	StateProcessing ScanState = "processing"
	// StateResult terminal outcome on display
	StateResult ScanState = "result"
)

func (s ScanState) String() string { return string(s) }

// Token is the opaque payload decoded from a QR code.
type Token string

// Normalize trims surrounding whitespace and control characters the
// camera decoder sometimes leaves in place.
func (t Token) Normalize() Token {
	return Token(strings.TrimSpace(strings.Trim(string(t), "\x00")))
}

// IsZero reports whether the token carries no payload.
func (t Token) IsZero() bool {
	return t.Normalize() == ""
}

func (t Token) String() string { return string(t) }

// Facing is the camera facing mode.
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// Toggle returns the opposite facing mode.
func (f Facing) Toggle() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// ProcessFunc verifies or processes a token and classifies the response.
// Expected business failures are returned as outcomes, errors are reserved
// for transport or unexpected failures.
type ProcessFunc func(ctx context.Context, token Token) (Outcome, error)

// RefreshFunc runs when the header refresh action is triggered.
type RefreshFunc func(ctx context.Context) error

// DecodeEvent is emitted by a camera when a QR payload is decoded.
type DecodeEvent struct {
	Token     Token
	Source    string
	DecodedAt time.Time
}

// Camera is the capture capability the scanner drives. Implementations own
// the device details, the scanner only starts, stops and switches facing.
type Camera interface {
	Start(ctx context.Context, facing Facing) error
	Stop(ctx context.Context) error
	SetFacing(ctx context.Context, facing Facing) error
	Decodes() <-chan DecodeEvent
}

// Speaker emits text to speech utterances.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeakerFunc adapts a function to the Speaker interface.
type SpeakerFunc func(ctx context.Context, text string) error

// Speak implements Speaker.
func (f SpeakerFunc) Speak(ctx context.Context, text string) error {
	if f == nil {
		return nil
	}
	return f(ctx, text)
}

// Clock abstracts time for timers, tests provide a manual implementation.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Snapshot is the read model of a scanner at a point in time.
type Snapshot struct {
	Name      string    `json:"name"`
	State     ScanState `json:"state"`
	Token     Token     `json:"-"`
	AttemptID uuid.UUID `json:"attempt_id"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
	Facing    Facing    `json:"facing"`
	CameraOn  bool      `json:"camera_on"`
	EnteredAt time.Time `json:"entered_at"`
	Mounted   bool      `json:"mounted"`
}

// Action is a user action rendered by the scanner UI.
type Action string

const (
	ActionScanAgain    Action = "scan_again"
	ActionToggleCamera Action = "toggle_camera"
	ActionRefresh      Action = "refresh"
	ActionBack         Action = "back"
)
