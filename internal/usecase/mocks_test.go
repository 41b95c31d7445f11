package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// scriptedSurface is an in-memory auction page.
type scriptedSurface struct {
	mu sync.Mutex

	enableAfter int // bid button reads before it turns enabled; 0 = never
	buttonReads int
	timerText   string
	statusText  string
	readErr     map[domain.SelectorRole]error

	signData       string
	successAppears bool

	triggers   map[domain.SelectorRole]int
	triggerErr map[domain.SelectorRole]error
	onTrigger  func(ctx context.Context, role domain.SelectorRole) error // runs unlocked before a click
	filled     map[domain.SelectorRole]string
	shots      []string
}

func newScriptedSurface() *scriptedSurface {
	return &scriptedSurface{
		readErr:        make(map[domain.SelectorRole]error),
		triggers:       make(map[domain.SelectorRole]int),
		triggerErr:     make(map[domain.SelectorRole]error),
		filled:         make(map[domain.SelectorRole]string),
		signData:       "ABCXYZ",
		successAppears: true,
	}
}

func (s *scriptedSurface) ReadState(ctx context.Context, role domain.SelectorRole) (domain.ElementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readErr[role]; err != nil {
		return domain.ElementState{}, err
	}
	switch role {
	case domain.RoleBidButton:
		s.buttonReads++
		return domain.ElementState{Enabled: s.enableAfter > 0 && s.buttonReads >= s.enableAfter}, nil
	case domain.RoleTimer:
		if s.timerText == "" {
			return domain.ElementState{}, domain.ErrElementAbsent
		}
		return domain.ElementState{Text: s.timerText}, nil
	case domain.RoleStatus:
		if s.statusText == "" {
			return domain.ElementState{}, domain.ErrElementAbsent
		}
		return domain.ElementState{Text: s.statusText}, nil
	case domain.RoleSignData:
		if s.signData == "" {
			return domain.ElementState{}, domain.ErrElementAbsent
		}
		return domain.ElementState{Value: s.signData}, nil
	}
	return domain.ElementState{}, domain.ErrElementAbsent
}

func (s *scriptedSurface) Trigger(ctx context.Context, role domain.SelectorRole, timeout time.Duration) error {
	if s.onTrigger != nil {
		if err := s.onTrigger(ctx, role); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.triggerErr[role]; err != nil {
		return err
	}
	s.triggers[role]++
	return nil
}

func (s *scriptedSurface) Fill(ctx context.Context, role domain.SelectorRole, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filled[role] = value
	return nil
}

func (s *scriptedSurface) WaitFor(ctx context.Context, role domain.SelectorRole, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch role {
	case domain.RoleSignData:
		if s.signData == "" {
			return fmt.Errorf("%s: %w", role, domain.ErrElementAbsent)
		}
	case domain.RoleSuccessIndicator:
		if !s.successAppears {
			return fmt.Errorf("%s: %w", role, domain.ErrElementAbsent)
		}
	}
	return nil
}

func (s *scriptedSurface) Screenshot(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shots = append(s.shots, name)
	return "/tmp/" + name + ".png", nil
}

func (s *scriptedSurface) triggerCount(role domain.SelectorRole) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggers[role]
}

// fakeInvoker answers like a signing agent: after delay it delivers signature
// (or rejects) through the sink. An empty signature and reject never answers.
type fakeInvoker struct {
	sink      domain.SignatureSink
	signature string
	reject    string
	delay     time.Duration
	err       error

	mu       sync.Mutex
	payloads []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, req domain.SigningRequest, callbackURL string) (string, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, req.Payload)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	go func() {
		time.Sleep(f.delay)
		switch {
		case f.reject != "":
			f.sink.Reject(req.RequestID, f.reject)
		case f.signature != "":
			f.sink.Deliver(req.RequestID, f.signature)
		}
	}()
	return "http", nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Send(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type recordingResults struct {
	outcomes []domain.BidOutcome
	err      error
}

func (r *recordingResults) Append(outcome domain.BidOutcome) error {
	r.outcomes = append(r.outcomes, outcome)
	return r.err
}

type recordingMetrics struct {
	sessions int
	triggers []domain.DetectionMethod
	outcomes []domain.BidOutcome
}

func (m *recordingMetrics) SessionStarted(*domain.MonitoringSession) { m.sessions++ }

func (m *recordingMetrics) TriggerIssued(_ *domain.MonitoringSession, d domain.DetectionResult) {
	m.triggers = append(m.triggers, d.Method)
}

func (m *recordingMetrics) OutcomeRecorded(_ *domain.MonitoringSession, o domain.BidOutcome) {
	m.outcomes = append(m.outcomes, o)
}

var errSurfaceGone = errors.New("target page, context or browser has been closed")
