// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// -- Browser Driver Mock --

// MockBrowserDriver mocks schemas.BrowserDriver.
type MockBrowserDriver struct {
	mock.Mock
}

func (m *MockBrowserDriver) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockBrowserDriver) FillField(ctx context.Context, selector, value string) error {
	args := m.Called(ctx, selector, value)
	return args.Error(0)
}

func (m *MockBrowserDriver) Click(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockBrowserDriver) Snapshot(ctx context.Context) (schemas.PageSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.PageSnapshot), args.Error(1)
}

func (m *MockBrowserDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// -- Store Mocks --

// MockProfileStore mocks schemas.ProfileStore.
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetProfileByName(ctx context.Context, name string) (schemas.Profile, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(schemas.Profile), args.Error(1)
}

// MockTemplateStore mocks schemas.TemplateStore.
type MockTemplateStore struct {
	mock.Mock
}

func (m *MockTemplateStore) GetTemplate(ctx context.Context, url string) (schemas.FormTemplate, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(schemas.FormTemplate), args.Error(1)
}

func (m *MockTemplateStore) SaveTemplate(ctx context.Context, tpl schemas.FormTemplate) error {
	args := m.Called(ctx, tpl)
	return args.Error(0)
}

// -- Captcha Solver Mock --

// MockCaptchaSolver mocks schemas.CaptchaSolver.
type MockCaptchaSolver struct {
	mock.Mock
}

func (m *MockCaptchaSolver) Solve(ctx context.Context, driver schemas.BrowserDriver, form schemas.DetectedForm) error {
	args := m.Called(ctx, driver, form)
	return args.Error(0)
}

// -- Event Sink --

// RecordingSink collects published events for assertions. Unlike the mock
// types above it has no expectations; tests inspect what arrived.
type RecordingSink struct {
	mu     sync.Mutex
	events []schemas.Event
}

func (s *RecordingSink) Publish(event schemas.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything published so far.
func (s *RecordingSink) Events() []schemas.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.Event, len(s.events))
	copy(out, s.events)
	return out
}

// CountByType tallies events of the given type.
func (s *RecordingSink) CountByType(t schemas.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
