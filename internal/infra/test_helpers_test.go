package infra

import (
	"context"
	"errors"
	"sync"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// mockSink records what transports push into the handshake.
type mockSink struct {
	mu        sync.Mutex
	delivered map[string]string
	rejected  map[string]string
}

func newMockSink() *mockSink {
	return &mockSink{
		delivered: make(map[string]string),
		rejected:  make(map[string]string),
	}
}

func (m *mockSink) Deliver(requestID, signature string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[requestID] = signature
	return true
}

func (m *mockSink) Reject(requestID, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[requestID] = reason
	return true
}

// mockTransport is a scripted signing transport.
type mockTransport struct {
	name       string
	available  bool
	err        error
	dispatched []domain.SigningRequest
}

func (m *mockTransport) Name() string    { return m.name }
func (m *mockTransport) Available() bool { return m.available }

func (m *mockTransport) Dispatch(ctx context.Context, req domain.SigningRequest, callbackURL string) error {
	m.dispatched = append(m.dispatched, req)
	return m.err
}

// mockCommandRunner records launched commands.
type mockCommandRunner struct {
	started  [][]string
	startErr error
	onPath   map[string]bool
}

func (m *mockCommandRunner) Start(name string, args ...string) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, append([]string{name}, args...))
	return nil
}

func (m *mockCommandRunner) LookPath(name string) (string, error) {
	if m.onPath[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func testRequest() domain.SigningRequest {
	return domain.SigningRequest{
		RequestID:        "req-1",
		Payload:          "ABC XYZ+/=",
		CorrelationToken: "tok-1",
	}
}
