package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockResponse is a canned reply for the Mock invoker.
type MockResponse struct {
	Text string
	Err  error
}

// MockCall records one request the Mock received.
type MockCall struct {
	Method string // "classify" or "generate"
	Text   string
	System string
}

// Mock is a deterministic Invoker for testing. It returns canned responses
// in FIFO order and records all calls.
type Mock struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []MockCall
}

// NewMock creates a Mock with the given canned responses.
func NewMock(responses ...MockResponse) *Mock {
	return &Mock{responses: responses}
}

// Classify returns the next canned response.
func (m *Mock) Classify(_ context.Context, text, system string) (string, error) {
	return m.next("classify", text, system)
}

// Generate returns the next canned response.
func (m *Mock) Generate(_ context.Context, text, system string) (string, error) {
	return m.next("generate", text, system)
}

func (m *Mock) next(method, text, system string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Method: method, Text: text, System: system})

	if len(m.responses) == 0 {
		return "", fmt.Errorf("llm mock: response queue empty")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]

	if resp.Err != nil {
		return "", resp.Err
	}
	return resp.Text, nil
}
