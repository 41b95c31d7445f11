// Package handshake correlates signing requests with the asynchronous callback
// the external signing agent sends to a local HTTP listener.
//
// Each request owns a cycle. The cycle starts armed and is settled exactly once
// (resolved, rejected, expired or superseded) by a compare-and-set on its state,
// so a callback racing a timeout, or a late callback for an older request,
// can never complete the wrong cycle.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

const (
	// DefaultAddr is the loopback address the callback listener binds to.
	DefaultAddr = "127.0.0.1:13600"

	// DefaultTimeout bounds how long a request stays armed.
	DefaultTimeout = 30 * time.Second

	// CallbackPath is the single route the agent posts signatures to.
	CallbackPath = "/callback"
)

// Await errors; aliases of the domain sentinels.
var (
	ErrSigningTimeout = domain.ErrSigningTimeout
	ErrAgentRejected  = domain.ErrAgentRejected
	ErrSuperseded     = domain.ErrSuperseded
)

// Config holds listener configuration.
type Config struct {
	Addr              string        // host:port to bind; port 0 picks a free port
	Timeout           time.Duration // lifetime of an armed request
	ReadHeaderTimeout time.Duration
}

// DefaultConfig returns default handshake configuration.
func DefaultConfig() Config {
	return Config{
		Addr:              DefaultAddr,
		Timeout:           DefaultTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

const (
	stateArmed int32 = iota
	stateResolved
	stateRejected
	stateExpired
	stateSuperseded
)

// cycle is the completion gate for one signing request.
type cycle struct {
	req       domain.SigningRequest
	expiresAt time.Time
	state     atomic.Int32
	done      chan struct{}

	// written once by the goroutine that wins settle, read after done is closed
	result domain.SigningResult
	reason string
}

func newCycle(req domain.SigningRequest, ttl time.Duration) *cycle {
	return &cycle{
		req:       req,
		expiresAt: req.IssuedAt.Add(ttl),
		done:      make(chan struct{}),
	}
}

// settle moves the cycle out of armed. Only the caller that wins the CAS
// runs fill and closes done.
func (c *cycle) settle(to int32, fill func()) bool {
	if !c.state.CompareAndSwap(stateArmed, to) {
		return false
	}
	if fill != nil {
		fill()
	}
	close(c.done)
	return true
}

// outcome converts a settled cycle into the await result.
func (c *cycle) outcome() (domain.SigningResult, error) {
	switch c.state.Load() {
	case stateResolved:
		return c.result, nil
	case stateRejected:
		return domain.SigningResult{}, fmt.Errorf("%w: %s", ErrAgentRejected, c.reason)
	case stateSuperseded:
		return domain.SigningResult{}, ErrSuperseded
	default:
		return domain.SigningResult{}, ErrSigningTimeout
	}
}

// Handshake is the process-lifetime callback listener plus the pending-request slot.
type Handshake struct {
	config Config
	logger *zap.Logger

	live atomic.Pointer[cycle]

	startOnce sync.Once
	startErr  error
	listener  net.Listener
	server    *http.Server
	served    chan struct{}
}

// New creates a handshake. The listener is not started until Start.
func New(config Config, logger *zap.Logger) *Handshake {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	return &Handshake{
		config: config,
		logger: logger,
		served: make(chan struct{}),
	}
}

// Start binds the listener and serves callbacks in the background.
// Safe to call many times; only the first call binds.
func (h *Handshake) Start() error {
	h.startOnce.Do(func() {
		ln, err := net.Listen("tcp", h.config.Addr)
		if err != nil {
			h.startErr = fmt.Errorf("failed to bind callback listener on %s: %w", h.config.Addr, err)
			close(h.served)
			return
		}
		h.listener = ln
		h.server = &http.Server{
			Handler:           h.Routes(),
			ReadHeaderTimeout: h.config.ReadHeaderTimeout,
		}

		go func() {
			defer close(h.served)
			if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.logger.Error("callback listener stopped", zap.Error(err))
			}
		}()

		h.logger.Info("callback listener started", zap.String("addr", ln.Addr().String()))
	})
	return h.startErr
}

// Shutdown stops the listener and expires any armed request.
func (h *Handshake) Shutdown(ctx context.Context) error {
	if c := h.live.Load(); c != nil {
		c.settle(stateExpired, nil)
	}
	if h.server == nil {
		return nil
	}
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop callback listener: %w", err)
	}
	<-h.served
	h.logger.Info("callback listener stopped")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (h *Handshake) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.config.Addr
}

// CallbackURL is the URL the agent must post the signature for req to.
func (h *Handshake) CallbackURL(req domain.SigningRequest) string {
	u := url.URL{
		Scheme:   "http",
		Host:     h.Addr(),
		Path:     CallbackPath,
		RawQuery: url.Values{"token": {req.CorrelationToken}}.Encode(),
	}
	return u.String()
}

// Issue creates a new request and arms it. Any unresolved earlier request
// is superseded and can no longer be satisfied.
func (h *Handshake) Issue(payload string) domain.SigningRequest {
	req := domain.SigningRequest{
		RequestID:        uuid.NewString(),
		Payload:          payload,
		IssuedAt:         time.Now(),
		CorrelationToken: uuid.NewString(),
	}

	prev := h.live.Swap(newCycle(req, h.config.Timeout))
	if prev != nil && prev.settle(stateSuperseded, nil) {
		h.logger.Warn("unresolved signing request superseded",
			zap.String("request_id", prev.req.RequestID))
	}

	h.logger.Debug("signing request armed",
		zap.String("request_id", req.RequestID),
		zap.Int("payload_len", len(payload)))
	return req
}

// Deliver resolves the live request if it is requestID.
func (h *Handshake) Deliver(requestID, signature string) bool {
	c := h.live.Load()
	if c == nil || c.req.RequestID != requestID {
		h.logger.Info("discarding signature for request that is not live",
			zap.String("request_id", requestID))
		return false
	}
	return h.resolve(c, signature)
}

// Reject settles the live request as refused by the agent.
func (h *Handshake) Reject(requestID, reason string) bool {
	c := h.live.Load()
	if c == nil || c.req.RequestID != requestID {
		return false
	}
	ok := c.settle(stateRejected, func() { c.reason = reason })
	if ok {
		h.logger.Warn("signing agent rejected request",
			zap.String("request_id", requestID),
			zap.String("reason", reason))
	}
	return ok
}

// deliverByToken resolves the live request from a callback. An empty token
// addresses whatever request is live.
func (h *Handshake) deliverByToken(token, signature string) bool {
	c := h.live.Load()
	if c == nil {
		h.logger.Info("discarding callback: no signing request was issued")
		return false
	}
	if token != "" && token != c.req.CorrelationToken {
		h.logger.Warn("discarding callback with stale correlation token",
			zap.String("live_request_id", c.req.RequestID))
		return false
	}
	return h.resolve(c, signature)
}

func (h *Handshake) resolve(c *cycle, signature string) bool {
	if time.Now().After(c.expiresAt) {
		c.settle(stateExpired, nil)
		h.logger.Info("discarding signature for expired request",
			zap.String("request_id", c.req.RequestID))
		return false
	}

	ok := c.settle(stateResolved, func() {
		c.result = domain.SigningResult{
			RequestID:  c.req.RequestID,
			Signature:  signature,
			ReceivedAt: time.Now(),
		}
	})
	if !ok {
		h.logger.Info("discarding duplicate signature for settled request",
			zap.String("request_id", c.req.RequestID))
		return false
	}

	h.logger.Info("signature received",
		zap.String("request_id", c.req.RequestID),
		zap.Duration("latency", c.result.ReceivedAt.Sub(c.req.IssuedAt)))
	return true
}

// AwaitSignature blocks until requestID resolves, timeout elapses, the request's
// own deadline passes or ctx ends. A request that was never armed times out at once.
func (h *Handshake) AwaitSignature(ctx context.Context, requestID string, timeout time.Duration) (domain.SigningResult, error) {
	c := h.live.Load()
	if c == nil || c.req.RequestID != requestID {
		return domain.SigningResult{}, fmt.Errorf("request %s is not armed: %w", requestID, ErrSigningTimeout)
	}

	if timeout <= 0 {
		timeout = h.config.Timeout
	}
	if remaining := time.Until(c.expiresAt); remaining < timeout {
		timeout = remaining
	}
	if timeout <= 0 {
		c.settle(stateExpired, nil)
		// a concurrent resolve may have won settle and still be filling
		<-c.done
		return c.outcome()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		if c.settle(stateExpired, nil) {
			h.logger.Warn("signature wait timed out",
				zap.String("request_id", requestID),
				zap.Duration("timeout", timeout))
		}
	case <-ctx.Done():
		if c.settle(stateExpired, nil) {
			return domain.SigningResult{}, ctx.Err()
		}
	}

	<-c.done
	return c.outcome()
}

// Ensure Handshake implements domain.SignatureHandshake.
var _ domain.SignatureHandshake = (*Handshake)(nil)
