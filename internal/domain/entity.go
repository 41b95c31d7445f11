// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle state of a monitoring session.
type SessionState string

const (
	StateIdle              SessionState = "idle"
	StatePolling           SessionState = "polling"
	StateTriggering        SessionState = "triggering"
	StateAwaitingSignature SessionState = "awaiting_signature"
	StateConfirming        SessionState = "confirming"
	StateSucceeded         SessionState = "succeeded"
	StateFailed            SessionState = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s SessionState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// allowedTransitions encodes the single-attempt state machine.
// Once Triggering is entered there is no edge back to Polling.
var allowedTransitions = map[SessionState][]SessionState{
	StateIdle:              {StatePolling, StateFailed},
	StatePolling:           {StateTriggering, StateFailed},
	StateTriggering:        {StateAwaitingSignature, StateFailed},
	StateAwaitingSignature: {StateConfirming, StateFailed},
	StateConfirming:        {StateSucceeded, StateFailed},
}

// MonitoringSession is one attempt to catch an auction opening.
// It is mutated only by the orchestrator that created it.
type MonitoringSession struct {
	ID             string
	StartedAt      time.Time
	PollInterval   time.Duration
	OverallTimeout time.Duration
	State          SessionState
}

// NewMonitoringSession creates a session in the Idle state.
func NewMonitoringSession(id string, pollInterval, overallTimeout time.Duration) *MonitoringSession {
	return &MonitoringSession{
		ID:             id,
		StartedAt:      time.Now(),
		PollInterval:   pollInterval,
		OverallTimeout: overallTimeout,
		State:          StateIdle,
	}
}

// Transition moves the session to the next state if the edge exists.
func (s *MonitoringSession) Transition(to SessionState) error {
	for _, next := range allowedTransitions[s.State] {
		if next == to {
			s.State = to
			return nil
		}
	}
	return fmt.Errorf("illegal session transition %s -> %s", s.State, to)
}

// Deadline returns the hard deadline of the session.
func (s *MonitoringSession) Deadline() time.Time {
	return s.StartedAt.Add(s.OverallTimeout)
}

// DetectionMethod names the heuristic that fired.
type DetectionMethod string

const (
	MethodNone            DetectionMethod = ""
	MethodButtonEnabled   DetectionMethod = "button_enabled"
	MethodTimerExpired    DetectionMethod = "timer_expired"
	MethodStatusTextMatch DetectionMethod = "status_text_match"
)

// DetectionResult is produced fresh on every poll tick.
type DetectionResult struct {
	Detected   bool
	Method     DetectionMethod
	ObservedAt time.Time
}

// SigningRequest is one outstanding request to the external signing agent.
type SigningRequest struct {
	RequestID        string
	Payload          string
	IssuedAt         time.Time
	CorrelationToken string
}

// SigningResult is the signature delivered for a request.
type SigningResult struct {
	RequestID  string
	Signature  string
	ReceivedAt time.Time
}

// BidOutcome is the immutable record of a session that fired its trigger.
type BidOutcome struct {
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	Success        bool      `json:"success"`
	ReactionTimeMs float64   `json:"reaction_time_ms"`
	DetectionLagMs float64   `json:"detection_lag_ms,omitempty"` // page change observed → click issued
	Error          ErrorCode `json:"error"`
	Message        string    `json:"message,omitempty"`
	Partial        bool      `json:"partial,omitempty"`
	Transport      string    `json:"transport,omitempty"`
	DetectedBy     string    `json:"detected_by,omitempty"`
	URL            string    `json:"url,omitempty"`
	PriceLimit     int64     `json:"price_limit,omitempty"`
}

// SelectorRole is the logical role of an element on the auction page.
type SelectorRole string

const (
	RoleBidButton        SelectorRole = "bid_button"
	RoleTimer            SelectorRole = "timer"
	RoleStatus           SelectorRole = "status"
	RoleSignData         SelectorRole = "sign_data"
	RoleSignatureInput   SelectorRole = "signature_input"
	RoleConfirmButton    SelectorRole = "confirm_button"
	RoleSuccessIndicator SelectorRole = "success_indicator"
)

// RequiredRoles are the roles every auction configuration must map.
var RequiredRoles = []SelectorRole{
	RoleBidButton,
	RoleTimer,
	RoleStatus,
	RoleSignData,
	RoleSignatureInput,
}

// ElementState is a snapshot of one element on the surface.
type ElementState struct {
	Enabled bool
	Text    string
	Value   string // the element's "value" attribute
}
