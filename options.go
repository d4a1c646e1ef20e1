package scanner

import (
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Option customizes scanner construction.
type Option func(*Scanner)

// WithName sets the scanner name used in logs, activity and routes.
func WithName(name string) Option {
	return func(s *Scanner) {
		if name != "" {
			s.name = name
		}
	}
}

// WithCamera sets the capture device.
func WithCamera(camera Camera) Option {
	return func(s *Scanner) {
		s.camera = camera
	}
}

// WithSpeaker sets the text to speech service.
func WithSpeaker(speaker Speaker) Option {
	return func(s *Scanner) {
		s.speaker = speaker
	}
}

// WithSpeechTimeout bounds a single utterance request.
func WithSpeechTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.speechTimeout = d
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLoggerProvider resolves a named logger from provider.
func WithLoggerProvider(provider LoggerProvider) Option {
	return func(s *Scanner) {
		s.loggerProvider = provider
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock Clock) Option {
	return func(s *Scanner) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish scan events.
func WithActivitySink(sink ActivitySink) Option {
	return func(s *Scanner) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithStateListener registers a listener notified with a snapshot after
// every state change. Listeners run synchronously on the scanner loop
// goroutine: they must not block and must not call back into the Scanner
// (State, Decode, ScanAgain and the other operations wait on that same
// goroutine and would deadlock). Hand the snapshot off to another goroutine
// when further work is needed.
func WithStateListener(listener func(Snapshot)) Option {
	return func(s *Scanner) {
		if listener != nil {
			s.listeners = append(s.listeners, listener)
		}
	}
}

// WithTransitionHook adds a hook executed after each transition.
func WithTransitionHook(hook TransitionHook) Option {
	return func(s *Scanner) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// WithRefreshHandler sets the function run by the header refresh action.
func WithRefreshHandler(fn RefreshFunc) Option {
	return func(s *Scanner) {
		s.refresh = fn
	}
}

func (s *Scanner) resolveLogger() {
	provider, logger := glog.Resolve("scanner", s.loggerProvider, s.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("scanner:" + s.name); named != nil {
			logger = glog.Ensure(named)
		}
	}
	s.logger = logger
}
