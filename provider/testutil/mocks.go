package testutil

import (
	"context"
	"fmt"
	"sync"

	"hermitcrab/provider"
)

// MockCompleter implements provider.Completer for testing. It replays
// Responses in order and records every request it sees.
type MockCompleter struct {
	// Configurable behaviour; when nil the scripted responses are replayed
	CompleteFunc func(ctx context.Context, req *provider.Request) (*provider.Response, error)

	Responses []*provider.Response
	Errors    []error

	mu       sync.Mutex
	requests []*provider.Request
	calls    int
}

// NewMockCompleter creates a mock that replays responses in order
func NewMockCompleter(responses ...*provider.Response) *MockCompleter {
	return &MockCompleter{Responses: responses}
}

func (m *MockCompleter) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req.Clone())
	n := m.calls
	m.calls++
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if n < len(m.Errors) && m.Errors[n] != nil {
		return nil, m.Errors[n]
	}
	if n >= len(m.Responses) {
		return nil, fmt.Errorf("mock completer: no response scripted for call %d", n+1)
	}
	return m.Responses[n], nil
}

// Requests returns copies of the requests received so far
func (m *MockCompleter) Requests() []*provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*provider.Request(nil), m.requests...)
}

// Calls returns how many times Complete ran
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
