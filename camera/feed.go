// Package camera provides in-process camera implementations. Feed is fed
// by whatever decodes QR codes on the device side: the HTTP bridge, a
// handheld reader wired to stdin, or tests.
package camera

import (
	"context"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	scanner "github.com/goliatone/go-scanner"
)

// Feed is a channel backed scanner.Camera. Publishing never blocks: decodes
// are dropped while the feed is stopped or the scanner has not drained the
// previous one.
type Feed struct {
	mu      sync.Mutex
	running bool
	facing  scanner.Facing
	events  chan scanner.DecodeEvent
	now     func() time.Time
	logger  glog.Logger

	starts  int
	dropped int
}

type FeedOption func(*Feed)

func WithBuffer(size int) FeedOption {
	return func(f *Feed) {
		if size > 0 {
			f.events = make(chan scanner.DecodeEvent, size)
		}
	}
}

func WithLogger(logger glog.Logger) FeedOption {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithNow(now func() time.Time) FeedOption {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

func NewFeed(opts ...FeedOption) *Feed {
	f := &Feed{
		facing: scanner.FacingBack,
		events: make(chan scanner.DecodeEvent, 1),
		now:    time.Now,
		logger: glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

func (f *Feed) Start(ctx context.Context, facing scanner.Facing) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.running = true
	f.starts++
	if facing != "" {
		f.facing = facing
	}
	f.drain()
	f.logger.Debug("camera feed started", "facing", f.facing)
	return nil
}

func (f *Feed) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.running = false
	f.drain()
	f.logger.Debug("camera feed stopped")
	return nil
}

func (f *Feed) SetFacing(ctx context.Context, facing scanner.Facing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facing = facing
	return nil
}

func (f *Feed) Decodes() <-chan scanner.DecodeEvent {
	return f.events
}

// Publish offers a decoded token and reports whether it was queued.
func (f *Feed) Publish(token scanner.Token, source string) bool {
	token = token.Normalize()
	if token == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		f.dropped++
		return false
	}

	select {
	case f.events <- scanner.DecodeEvent{Token: token, Source: source, DecodedAt: f.now()}:
		return true
	default:
		f.dropped++
		return false
	}
}

// Running reports whether the feed is started.
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Facing returns the last requested facing mode.
func (f *Feed) Facing() scanner.Facing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.facing
}

// Stats returns how often the feed was started and how many decodes were dropped.
func (f *Feed) Stats() (starts, dropped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.dropped
}

// drain discards decodes queued before a start or stop, caller holds mu.
func (f *Feed) drain() {
	for {
		select {
		case <-f.events:
		default:
			return
		}
	}
}

var _ scanner.Camera = (*Feed)(nil)
