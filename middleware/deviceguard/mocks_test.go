package deviceguard_test

import (
	"context"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

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
