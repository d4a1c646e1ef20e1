package scanner_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	scanner "github.com/goliatone/go-scanner"
	"github.com/stretchr/testify/mock"
)

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) scanner.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// Pending counts armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeCamera struct {
	mu      sync.Mutex
	events  chan scanner.DecodeEvent
	running bool
	facing  scanner.Facing
	starts  int
	stops   int
	err     error
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{events: make(chan scanner.DecodeEvent, 8)}
}

func (c *fakeCamera) Start(_ context.Context, facing scanner.Facing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.running = true
	c.facing = facing
	c.starts++
	return nil
}

func (c *fakeCamera) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.stops++
	return nil
}

func (c *fakeCamera) SetFacing(_ context.Context, facing scanner.Facing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facing = facing
	return nil
}

func (c *fakeCamera) Decodes() <-chan scanner.DecodeEvent {
	return c.events
}

func (c *fakeCamera) Emit(token string) {
	c.events <- scanner.DecodeEvent{Token: scanner.Token(token), Source: "fake"}
}

func (c *fakeCamera) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *fakeCamera) Facing() scanner.Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

func (c *fakeCamera) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

type recordingSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	return nil
}

func (s *recordingSpeaker) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []scanner.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event scanner.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Count(eventType scanner.ActivityEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func (s *recordingSink) Last(eventType scanner.ActivityEventType) (scanner.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].EventType == eventType {
			return s.events[i], true
		}
	}
	return scanner.ActivityEvent{}, false
}

// MockOperator implements scanner.Operator
type MockOperator struct {
	mock.Mock
}

func (m *MockOperator) Name() string {
	return m.Called().String(0)
}

func (m *MockOperator) Config() scanner.Config {
	return m.Called().Get(0).(scanner.Config)
}

func (m *MockOperator) Decode(ctx context.Context, token scanner.Token) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockOperator) ScanAgain(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockOperator) ToggleFacing(ctx context.Context) (scanner.Facing, error) {
	args := m.Called(ctx)
	return args.Get(0).(scanner.Facing), args.Error(1)
}

func (m *MockOperator) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockOperator) State(ctx context.Context) (scanner.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(scanner.Snapshot), args.Error(1)
}

// MockDirectory implements scanner.Directory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Lookup(name string) (scanner.Operator, error) {
	args := m.Called(name)
	op, _ := args.Get(0).(scanner.Operator)
	return op, args.Error(1)
}

// MockHistory implements scanner.HistoryReader
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) List(ctx context.Context, filter scanner.HistoryFilter) (scanner.HistoryPage, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(scanner.HistoryPage), args.Error(1)
}

// MockContext implements router.Context. Params, queries and headers are
// read from the fixture maps, everything else goes through mock.Called.
type MockContext struct {
	mock.Mock
	ParamsM    map[string]string
	QueriesM   map[string]string
	HeadersM   map[string]string
	NextCalled bool
}

func newMockContext() *MockContext {
	return &MockContext{
		ParamsM:  map[string]string{},
		QueriesM: map[string]string{},
		HeadersM: map[string]string{},
	}
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Method() string {
	return m.Called().String(0)
}

func (m *MockContext) Path() string {
	return m.Called().String(0)
}

func (m *MockContext) Param(name string, defaultValue ...string) string {
	if v, ok := m.ParamsM[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	return m.Called(key, defaultValue).Int(0)
}

func (m *MockContext) Query(name string, defaultValue string) string {
	if v, ok := m.QueriesM[name]; ok {
		return v
	}
	return defaultValue
}

func (m *MockContext) QueryInt(name string, defaultValue int) int {
	return m.Called(name, defaultValue).Int(0)
}

func (m *MockContext) Queries() map[string]string {
	out := make(map[string]string, len(m.QueriesM))
	for k, v := range m.QueriesM {
		out[k] = v
	}
	return out
}

func (m *MockContext) Body() []byte {
	return m.Called().Get(0).([]byte)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	return m.Called(key).Get(0)
}

func (m *MockContext) Render(name string, bind any, layouts ...string) error {
	return m.Called(name, bind).Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	return m.Called(key).String(0)
}

func (m *MockContext) CookieParser(out any) error {
	return m.Called(out).Error(0)
}

func (m *MockContext) Redirect(location string, status ...int) error {
	return m.Called(location).Error(0)
}

func (m *MockContext) RedirectToRoute(routeName string, params router.ViewContext, status ...int) error {
	return m.Called(routeName, params).Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	return m.Called(fallback).Error(0)
}

func (m *MockContext) Header(key string) string {
	return m.HeadersM[key]
}

func (m *MockContext) Referer() string {
	return m.Called().String(0)
}

func (m *MockContext) OriginalURL() string {
	return m.Called().String(0)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) Send(body []byte) error {
	return m.Called(body).Error(0)
}

func (m *MockContext) SendString(body string) error {
	return m.Called(body).Error(0)
}

func (m *MockContext) JSON(code int, v any) error {
	return m.Called(code, v).Error(0)
}

func (m *MockContext) NoContent(code int) error {
	return m.Called(code).Error(0)
}

func (m *MockContext) SetHeader(key, value string) router.Context {
	m.Called(key, value)
	return m
}

func (m *MockContext) Set(key string, value any) {
	m.Called(key, value)
}

func (m *MockContext) Get(key string, def any) any {
	return m.Called(key, def).Get(0)
}

func (m *MockContext) GetString(key string, def string) string {
	return m.Called(key, def).String(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	return m.Called(key, def).Int(0)
}

func (m *MockContext) GetBool(key string, def bool) bool {
	return m.Called(key, def).Bool(0)
}

func (m *MockContext) Bind(v any) error {
	return m.Called(v).Error(0)
}

var _ router.Context = (*MockContext)(nil)
