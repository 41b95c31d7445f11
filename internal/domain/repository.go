package domain

import (
	"context"
	"time"
)

// Surface is the auction page as seen by the bot.
// Implementation: playwright-driven Chromium page.
type Surface interface {
	// ReadState returns the current state of the element bound to role.
	// Returns ErrElementAbsent when nothing matches.
	ReadState(ctx context.Context, role SelectorRole) (ElementState, error)

	// Trigger clicks the element bound to role within timeout.
	Trigger(ctx context.Context, role SelectorRole, timeout time.Duration) error

	// Fill types value into the input bound to role.
	Fill(ctx context.Context, role SelectorRole, value string) error

	// WaitFor blocks until the element bound to role is attached or timeout elapses.
	WaitFor(ctx context.Context, role SelectorRole, timeout time.Duration) error
}

// Screenshotter is implemented by surfaces that can capture the page.
type Screenshotter interface {
	// Screenshot saves the page and returns the file path.
	Screenshot(name string) (string, error)
}

// SigningTransport is one way of handing a payload to the signing agent.
// Implementations: local HTTP RPC, OS URI-scheme invocation.
type SigningTransport interface {
	// Name returns the transport name (e.g., "http", "uri")
	Name() string

	// Available returns true if this transport can be used on this system
	Available() bool

	// Dispatch starts the agent's work. A nil error means the agent accepted
	// the request; the signature itself arrives through the handshake.
	Dispatch(ctx context.Context, req SigningRequest, callbackURL string) error
}

// SigningInvoker dispatches a request over the first transport that accepts it.
type SigningInvoker interface {
	// Invoke returns the name of the transport that accepted the request.
	Invoke(ctx context.Context, req SigningRequest, callbackURL string) (string, error)
}

// SignatureSink receives signatures and explicit refusals for issued requests.
// Implementation: the signature handshake.
type SignatureSink interface {
	// Deliver resolves requestID with signature. Returns false if the request
	// is not the live one or is already settled.
	Deliver(requestID, signature string) bool

	// Reject settles requestID as explicitly refused by the agent.
	Reject(requestID, reason string) bool
}

// SignatureHandshake correlates signing requests with asynchronous callbacks.
type SignatureHandshake interface {
	SignatureSink

	// Issue creates and arms a new request, superseding any unresolved one.
	Issue(payload string) SigningRequest

	// CallbackURL is the URL the agent must call back for req.
	CallbackURL(req SigningRequest) string

	// AwaitSignature blocks until the request resolves, the timeout elapses or ctx ends.
	AwaitSignature(ctx context.Context, requestID string, timeout time.Duration) (SigningResult, error)
}

// Notifier is a fire-and-forget message sink (Telegram, log).
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// ResultLog is the append-only record of bid outcomes.
type ResultLog interface {
	Append(outcome BidOutcome) error
}

// OutcomeHistory reads back recorded outcomes, oldest first.
type OutcomeHistory interface {
	List() ([]BidOutcome, error)
}

// MetricsSink observes the session lifecycle.
// Implementation: Prometheus counters and histograms.
type MetricsSink interface {
	SessionStarted(session *MonitoringSession)
	TriggerIssued(session *MonitoringSession, detection DetectionResult)
	OutcomeRecorded(session *MonitoringSession, outcome BidOutcome)
}

// ProcessFinder locates OS processes.
// Implementation: uses gopsutil for cross-platform support.
type ProcessFinder interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// SecretStore provides encrypted persistent storage for secrets
// such as the key storage password and the Telegram bot token.
type SecretStore interface {
	// GetSecret retrieves a secret by key.
	GetSecret(key string) (string, error)

	// SetSecret stores a secret.
	SetSecret(key, value string) error

	// Close releases resources (e.g., database connection).
	Close() error
}
