package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Scanner is the QR verification core. A mounted scanner runs one goroutine
// that owns the scan state, every operation is delivered to it as a command
// so state changes never race each other.
type Scanner struct {
	name           string
	cfg            Config
	process        ProcessFunc
	camera         Camera
	speaker        Speaker
	speechTimeout  time.Duration
	logger         Logger
	loggerProvider LoggerProvider
	clock          Clock
	sink           ActivitySink
	listeners      []func(Snapshot)
	hooks          []TransitionHook
	refresh        RefreshFunc

	// mu guards the mount lifecycle only, scan state lives in the loop.
	mu      sync.Mutex
	mounted bool
	cmds    chan command
	done    chan struct{}
	cancel  context.CancelFunc
}

// New returns a scanner bound to process. The configuration is copied.
func New(cfg Config, process ProcessFunc, opts ...Option) (*Scanner, error) {
	if process == nil {
		return nil, goerrors.New("scanner process function is required", goerrors.CategoryValidation).
			WithCode(http.StatusBadRequest)
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid scanner configuration")
	}

	s := &Scanner{
		name:          "scanner",
		cfg:           cfg.clone(),
		process:       process,
		speechTimeout: DefaultSpeechTimeout,
		clock:         realClock{},
		sink:          noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.resolveLogger()

	if s.cfg.InitialFacing == "" {
		s.cfg.InitialFacing = FacingBack
	}

	return s, nil
}

// Name returns the scanner name.
func (s *Scanner) Name() string {
	return s.name
}

// Config returns a copy of the scanner configuration.
func (s *Scanner) Config() Config {
	return s.cfg.clone()
}

// Mount starts the camera and the scanner loop. The scanner starts in idle.
func (s *Scanner) Mount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return ErrScannerMounted
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l := newLoop(loopCtx, s)

	if err := l.startCamera(ctx); err != nil {
		cancel()
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to start camera")
	}

	s.cmds = make(chan command)
	s.done = make(chan struct{})
	s.cancel = cancel
	s.mounted = true

	l.done = s.done
	go l.run(s.cmds)

	s.logger.Info("scanner mounted", "scanner", s.name, "facing", l.facing)
	return nil
}

// Unmount stops the loop, cancels pending timers and the in flight call, and
// releases the camera. Results that resolve afterwards are discarded.
func (s *Scanner) Unmount() error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("scanner unmounted", "scanner", s.name)
	return nil
}

// Mounted reports whether the loop is running.
func (s *Scanner) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// Decode submits a decoded token. It reports whether the token started a
// verification; tokens decoded outside idle are ignored without error.
func (s *Scanner) Decode(ctx context.Context, token Token) (bool, error) {
	reply, err := s.send(ctx, command{kind: cmdDecode, token: token, source: "manual"})
	if err != nil {
		return false, err
	}
	return reply.accepted, reply.err
}

// ScanAgain returns the scanner from result to idle and cancels the dwell timer.
func (s *Scanner) ScanAgain(ctx context.Context) error {
	reply, err := s.send(ctx, command{kind: cmdScanAgain})
	if err != nil {
		return err
	}
	return reply.err
}

// ToggleFacing switches the camera between back and front.
func (s *Scanner) ToggleFacing(ctx context.Context) (Facing, error) {
	reply, err := s.send(ctx, command{kind: cmdToggleFacing})
	if err != nil {
		return "", err
	}
	return reply.snapshot.Facing, reply.err
}

// Refresh runs the header refresh action: a result on display is cleared
// and the refresh handler, if any, is invoked.
func (s *Scanner) Refresh(ctx context.Context) error {
	reply, err := s.send(ctx, command{kind: cmdRefresh})
	if err != nil {
		return err
	}
	if reply.err != nil {
		return reply.err
	}
	if s.refresh == nil {
		return nil
	}
	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("scanner refresh handler failed", "scanner", s.name, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "scanner refresh failed")
	}
	return nil
}

// State returns the current snapshot.
func (s *Scanner) State(ctx context.Context) (Snapshot, error) {
	reply, err := s.send(ctx, command{kind: cmdSnapshot})
	if err != nil {
		return Snapshot{Name: s.name}, err
	}
	return reply.snapshot, nil
}

func (s *Scanner) send(ctx context.Context, cmd command) (commandReply, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return commandReply{}, ErrScannerClosed
	}
	cmds, done := s.cmds, s.done
	s.mu.Unlock()

	cmd.reply = make(chan commandReply, 1)

	select {
	case cmds <- cmd:
	case <-done:
		return commandReply{}, ErrScannerClosed
	case <-ctx.Done():
		return commandReply{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled sending scanner command")
	}

	select {
	case reply := <-cmd.reply:
		return reply, nil
	case <-done:
		return commandReply{}, ErrScannerClosed
	case <-ctx.Done():
		return commandReply{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled waiting for scanner")
	}
}

type commandKind int

const (
	cmdDecode commandKind = iota
	cmdScanAgain
	cmdToggleFacing
	cmdRefresh
	cmdSnapshot
)

type command struct {
	kind   commandKind
	token  Token
	source string
	reply  chan commandReply
}

type commandReply struct {
	accepted bool
	snapshot Snapshot
	err      error
}

type processResult struct {
	attempt uuid.UUID
	outcome Outcome
	err     error
}

type timerKind int

const (
	timerDwell timerKind = iota
	timerDeadline
)

type timerEvent struct {
	kind    timerKind
	seq     uint64
	attempt uuid.UUID
}

// loop is the state owned by the scanner goroutine.
type loop struct {
	ctx  context.Context
	s    *Scanner
	sm   *stateMachine
	done chan struct{}

	facing   Facing
	cameraOn bool

	attemptID uuid.UUID
	token     Token
	outcome   *Outcome

	inflight      bool
	inflightID    uuid.UUID
	cancelProcess context.CancelFunc

	deadlineTimer Timer
	dwellTimer    Timer
	dwellSeq      uint64

	debounce *debouncer
	results  chan processResult
	timers   chan timerEvent
}

func newLoop(ctx context.Context, s *Scanner) *loop {
	l := &loop{
		ctx:      ctx,
		s:        s,
		facing:   s.cfg.InitialFacing,
		debounce: newDebouncer(s.cfg.RescanCooldown(), s.clock.Now),
		results:  make(chan processResult, 1),
		timers:   make(chan timerEvent, 4),
	}

	hooks := append([]TransitionHook{}, s.hooks...)
	l.sm = newStateMachine(s.name, s.clock.Now, hooks...)
	return l
}

func (l *loop) run(cmds <-chan command) {
	defer close(l.done)
	defer l.teardown()

	l.publish()

	for {
		// decode events are only consumed while idle, a nil channel
		// keeps the select from ever picking that case.
		var decodes <-chan DecodeEvent
		if l.acceptingDecodes() {
			decodes = l.s.camera.Decodes()
		}

		select {
		case <-l.ctx.Done():
			return
		case cmd := <-cmds:
			cmd.reply <- l.handleCommand(cmd)
		case ev, ok := <-decodes:
			if !ok {
				l.s.logger.Warn("camera decode channel closed", "scanner", l.s.name)
				l.cameraOn = false
				continue
			}
			l.handleDecode(ev.Token, sourceOr(ev.Source, "camera"))
		case res := <-l.results:
			l.handleResult(res)
		case ev := <-l.timers:
			l.handleTimer(ev)
		}
	}
}

func (l *loop) acceptingDecodes() bool {
	return l.s.camera != nil && l.cameraOn && l.sm.Is(StateIdle) && !l.inflight
}

func (l *loop) handleCommand(cmd command) commandReply {
	switch cmd.kind {
	case cmdDecode:
		accepted := l.handleDecode(cmd.token, sourceOr(cmd.source, "manual"))
		return commandReply{accepted: accepted, snapshot: l.snapshot()}
	case cmdScanAgain:
		return commandReply{snapshot: l.snapshot(), err: l.handleScanAgain()}
	case cmdToggleFacing:
		err := l.handleToggleFacing()
		return commandReply{snapshot: l.snapshot(), err: err}
	case cmdRefresh:
		err := l.handleRefresh()
		return commandReply{snapshot: l.snapshot(), err: err}
	default:
		return commandReply{snapshot: l.snapshot()}
	}
}

func (l *loop) handleDecode(raw Token, source string) bool {
	token := raw.Normalize()
	if token == "" {
		return false
	}

	if !l.sm.Is(StateIdle) {
		l.ignore(token, source, "state "+string(l.sm.Current()))
		return false
	}

	if l.inflight {
		l.ignore(token, source, "previous verification still draining")
		return false
	}

	if l.debounce.Suppress(token) {
		l.ignore(token, source, "rescan cooldown")
		return false
	}

	attempt := uuid.New()
	tc, err := l.sm.Transition(l.ctx, StateProcessing, TriggerDecode)
	if err != nil {
		l.s.logger.Error("scanner transition failed", "scanner", l.s.name, "error", err)
		return false
	}

	l.attemptID = attempt
	l.token = token
	l.outcome = nil

	timeout := l.s.cfg.ProcessTimeout()
	pctx, cancel := context.WithTimeout(l.ctx, timeout)
	l.inflight = true
	l.inflightID = attempt
	l.cancelProcess = cancel

	go l.execute(pctx, attempt, token)

	l.deadlineTimer = l.s.clock.AfterFunc(timeout, func() {
		l.post(timerEvent{kind: timerDeadline, attempt: attempt})
	})

	l.s.logger.Info("scan accepted", "scanner", l.s.name, "attempt_id", attempt, "source", source)
	l.record(ActivityEvent{
		EventType: ActivityScanAccepted,
		AttemptID: attempt,
		Token:     token,
		FromState: tc.From,
		ToState:   tc.To,
		Trigger:   tc.Trigger,
		Metadata:  map[string]any{"source": source},
	})
	l.publish()
	return true
}

func (l *loop) execute(ctx context.Context, attempt uuid.UUID, token Token) {
	outcome, err := safeProcess(ctx, l.s.process, token)
	select {
	case l.results <- processResult{attempt: attempt, outcome: outcome, err: err}:
	case <-l.done:
	}
}

func safeProcess(ctx context.Context, fn ProcessFunc, token Token) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{}
			err = goerrors.New(fmt.Sprintf("process function panicked: %v", r), goerrors.CategoryInternal).
				WithCode(http.StatusInternalServerError)
		}
	}()
	return fn(ctx, token)
}

func (l *loop) handleResult(res processResult) {
	// select picks among ready cases at random, a result racing Unmount
	// must not produce a transition.
	if l.ctx.Err() != nil {
		return
	}
	if l.inflight && res.attempt == l.inflightID {
		l.inflight = false
		if l.cancelProcess != nil {
			l.cancelProcess()
			l.cancelProcess = nil
		}
	}

	if !l.sm.Is(StateProcessing) || res.attempt != l.attemptID {
		l.s.logger.Debug("stale verification result dropped", "scanner", l.s.name, "attempt_id", res.attempt)
		l.record(ActivityEvent{
			EventType: ActivityScanDropped,
			AttemptID: res.attempt,
			FromState: l.sm.Current(),
			ToState:   l.sm.Current(),
		})
		return
	}

	outcome, trigger := l.resolveOutcome(res.outcome, res.err)
	l.finish(outcome, trigger, res.err)
}

func (l *loop) resolveOutcome(out Outcome, err error) (Outcome, Trigger) {
	cfg := l.s.cfg

	if err != nil {
		switch {
		case IsTransportFailure(err) && errors.Is(err, context.DeadlineExceeded):
			return cfg.Fallback(cfg.TimeoutMessage), TriggerTimeout
		case Classify(err) == OutcomeDenied:
			cp := cfg.CopyFor(OutcomeDenied)
			message := deniedMessage(err)
			if message == "" {
				message = cp.ActionLabel
			}
			return Outcome{
				Status:      OutcomeDenied,
				Message:     message,
				ActionLabel: cp.ActionLabel,
				Speech:      cp.Speech,
			}, TriggerFailed
		default:
			return cfg.Fallback(""), TriggerFailed
		}
	}

	if !out.Status.Valid() {
		l.s.logger.Warn("process returned unknown outcome status", "scanner", l.s.name, "status", out.Status)
		return cfg.Fallback(""), TriggerFailed
	}

	return out, TriggerResolved
}

func deniedMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}
	return ""
}

func (l *loop) finish(outcome Outcome, trigger Trigger, cause error) {
	l.stopDeadline()

	tc, err := l.sm.Transition(l.ctx, StateResult, trigger)
	if err != nil {
		l.s.logger.Error("scanner transition failed", "scanner", l.s.name, "error", err)
		return
	}

	l.outcome = &outcome

	if cause != nil {
		l.s.logger.Warn("verification failed",
			"scanner", l.s.name,
			"attempt_id", l.attemptID,
			"trigger", trigger,
			"error", cause,
		)
	} else {
		l.s.logger.Info("verification resolved",
			"scanner", l.s.name,
			"attempt_id", l.attemptID,
			"status", outcome.Status,
		)
	}

	if outcome.HasSpeech() {
		l.speak(outcome.Speech)
	}

	if l.s.cfg.PauseCameraOnResult {
		l.stopCamera()
	}

	if l.s.cfg.AutoReset {
		l.armDwell()
	}

	l.record(ActivityEvent{
		EventType: ActivityScanResult,
		AttemptID: l.attemptID,
		Token:     l.token,
		FromState: tc.From,
		ToState:   tc.To,
		Trigger:   tc.Trigger,
		Outcome:   &outcome,
	})
	l.publish()
}

func (l *loop) handleTimer(ev timerEvent) {
	if l.ctx.Err() != nil {
		return
	}
	switch ev.kind {
	case timerDeadline:
		if !l.sm.Is(StateProcessing) || ev.attempt != l.attemptID {
			return
		}
		if l.cancelProcess != nil {
			l.cancelProcess()
		}
		cause := NewTransportFailure(context.DeadlineExceeded, "verification timed out", map[string]any{
			"timeout": l.s.cfg.ProcessTimeout().String(),
		})
		l.finish(l.s.cfg.Fallback(l.s.cfg.TimeoutMessage), TriggerTimeout, cause)
	case timerDwell:
		if !l.sm.Is(StateResult) || ev.seq != l.dwellSeq {
			return
		}
		l.reset(TriggerDwell)
	}
}

func (l *loop) handleScanAgain() error {
	switch l.sm.Current() {
	case StateResult:
		l.reset(TriggerScanAgain)
		return nil
	case StateIdle:
		// the dwell timer already reset the scanner
		return nil
	default:
		return newActionUnavailable(ActionScanAgain, l.sm.Current())
	}
}

func (l *loop) handleToggleFacing() error {
	if !l.s.cfg.AllowCameraToggle {
		return newActionDisabled(ActionToggleCamera)
	}
	if l.sm.Is(StateProcessing) {
		return newActionUnavailable(ActionToggleCamera, l.sm.Current())
	}

	next := l.facing.Toggle()
	if l.s.camera != nil && l.cameraOn {
		if err := l.s.camera.SetFacing(l.ctx, next); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to switch camera facing")
		}
	}

	prev := l.facing
	l.facing = next
	l.record(ActivityEvent{
		EventType: ActivityCameraFacing,
		FromState: l.sm.Current(),
		ToState:   l.sm.Current(),
		Metadata:  map[string]any{"from": prev, "to": next},
	})
	l.publish()
	return nil
}

func (l *loop) handleRefresh() error {
	if !l.s.cfg.AllowRefresh {
		return newActionDisabled(ActionRefresh)
	}

	switch l.sm.Current() {
	case StateProcessing:
		return newActionUnavailable(ActionRefresh, l.sm.Current())
	case StateResult:
		l.reset(TriggerRefresh)
	default:
		if l.s.camera != nil && !l.cameraOn {
			if err := l.startCamera(l.ctx); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to restart camera")
			}
			l.publish()
		}
	}

	l.record(ActivityEvent{
		EventType: ActivityRefresh,
		FromState: l.sm.Current(),
		ToState:   l.sm.Current(),
		Trigger:   TriggerRefresh,
	})
	return nil
}

func (l *loop) reset(trigger Trigger) {
	l.stopDwell()

	tc, err := l.sm.Transition(l.ctx, StateIdle, trigger)
	if err != nil {
		l.s.logger.Error("scanner transition failed", "scanner", l.s.name, "error", err)
		return
	}

	l.debounce.Mark(l.token)
	outcome := l.outcome
	l.outcome = nil

	if l.s.camera != nil && !l.cameraOn {
		if err := l.startCamera(l.ctx); err != nil {
			l.s.logger.Error("failed to resume camera", "scanner", l.s.name, "error", err)
		}
	}

	l.record(ActivityEvent{
		EventType: ActivityScanReset,
		AttemptID: l.attemptID,
		FromState: tc.From,
		ToState:   tc.To,
		Trigger:   tc.Trigger,
		Outcome:   outcome,
	})
	l.publish()
}

func (l *loop) armDwell() {
	dwell := l.s.cfg.Dwell()
	if dwell <= 0 {
		return
	}
	l.dwellSeq++
	seq := l.dwellSeq
	l.dwellTimer = l.s.clock.AfterFunc(dwell, func() {
		l.post(timerEvent{kind: timerDwell, seq: seq})
	})
}

func (l *loop) stopDwell() {
	// bumping the sequence invalidates a dwell event already queued
	l.dwellSeq++
	if l.dwellTimer != nil {
		l.dwellTimer.Stop()
		l.dwellTimer = nil
	}
}

func (l *loop) stopDeadline() {
	if l.deadlineTimer != nil {
		l.deadlineTimer.Stop()
		l.deadlineTimer = nil
	}
}

func (l *loop) post(ev timerEvent) {
	select {
	case l.timers <- ev:
	case <-l.done:
	}
}

func (l *loop) ignore(token Token, source, reason string) {
	l.s.logger.Debug("scan ignored", "scanner", l.s.name, "source", source, "reason", reason)
	l.record(ActivityEvent{
		EventType: ActivityScanIgnored,
		AttemptID: l.attemptID,
		Token:     token,
		FromState: l.sm.Current(),
		ToState:   l.sm.Current(),
		Metadata:  map[string]any{"reason": reason, "source": source},
	})
}

func (l *loop) speak(text string) {
	speaker := l.s.speaker
	if speaker == nil {
		return
	}
	logger, name, timeout := l.s.logger, l.s.name, l.s.speechTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := speaker.Speak(ctx, text); err != nil {
			logger.Debug("speech request failed", "scanner", name, "error", err)
		}
	}()
}

func (l *loop) startCamera(ctx context.Context) error {
	if l.s.camera == nil {
		return nil
	}
	if err := l.s.camera.Start(ctx, l.facing); err != nil {
		l.cameraOn = false
		return err
	}
	l.cameraOn = true
	return nil
}

func (l *loop) stopCamera() {
	if l.s.camera == nil || !l.cameraOn {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.s.camera.Stop(ctx); err != nil {
		l.s.logger.Warn("failed to stop camera", "scanner", l.s.name, "error", err)
	}
	l.cameraOn = false
}

func (l *loop) teardown() {
	l.stopDeadline()
	l.stopDwell()
	if l.cancelProcess != nil {
		l.cancelProcess()
		l.cancelProcess = nil
	}
	l.stopCamera()
}

func (l *loop) record(event ActivityEvent) {
	event.Scanner = l.s.name
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.s.clock.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sink := normalizeActivitySink(l.s.sink)
	if err := sink.Record(ctx, event); err != nil {
		l.s.logger.Warn("scanner activity sink error", "scanner", l.s.name, "error", err)
	}
}

func (l *loop) snapshot() Snapshot {
	snap := Snapshot{
		Name:      l.s.name,
		State:     l.sm.Current(),
		Token:     l.token,
		AttemptID: l.attemptID,
		Facing:    l.facing,
		CameraOn:  l.cameraOn,
		EnteredAt: l.sm.EnteredAt(),
		Mounted:   true,
	}
	if l.outcome != nil {
		out := *l.outcome
		snap.Outcome = &out
	}
	if snap.State == StateIdle {
		snap.Token = ""
	}
	return snap
}

func (l *loop) publish() {
	if len(l.s.listeners) == 0 {
		return
	}
	snap := l.snapshot()
	for _, listener := range l.s.listeners {
		listener(snap)
	}
}

func sourceOr(source, def string) string {
	if strings.TrimSpace(source) == "" {
		return def
	}
	return source
}
