package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// ErrSessionActive is returned when Run is called while another session is live.
var ErrSessionActive = errors.New("a monitoring session is already active in this process")

// activeSession enforces one live session per process.
var activeSession atomic.Bool

// OrchestratorConfig holds timing and labelling for one bid session.
type OrchestratorConfig struct {
	PollInterval     time.Duration
	SessionTimeout   time.Duration
	TriggerTimeout   time.Duration // bid and confirm clicks
	PayloadTimeout   time.Duration // sign data to appear after the bid click
	SignatureTimeout time.Duration
	SuccessWait      time.Duration // success indicator after confirm
	NotifyTimeout    time.Duration

	URL            string
	PriceLimit     int64
	Screenshots    bool
	NotifyProgress bool
}

// DefaultOrchestratorConfig returns default orchestrator configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PollInterval:     200 * time.Millisecond,
		SessionTimeout:   time.Hour,
		TriggerTimeout:   5 * time.Second,
		PayloadTimeout:   10 * time.Second,
		SignatureTimeout: 30 * time.Second,
		SuccessWait:      3 * time.Second,
		NotifyTimeout:    10 * time.Second,
	}
}

// OrchestratorDeps are the collaborators of a session. Metrics is optional.
type OrchestratorDeps struct {
	Surface   domain.Surface
	Detector  *Detector
	Invoker   domain.SigningInvoker
	Handshake domain.SignatureHandshake
	Results   domain.ResultLog
	Notifier  domain.Notifier
	Metrics   domain.MetricsSink
}

// Report is what a finished session leaves behind.
type Report struct {
	Session   *domain.MonitoringSession
	Detection domain.DetectionResult
	// Outcome is nil when the trigger never fired.
	Outcome *domain.BidOutcome
	Code    domain.ErrorCode
	Err     error
}

// Orchestrator runs detection, trigger, signing handshake and confirmation
// as a single-attempt session.
type Orchestrator struct {
	config OrchestratorConfig
	deps   OrchestratorDeps
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(config OrchestratorConfig, deps OrchestratorDeps, logger *zap.Logger) *Orchestrator {
	defaults := DefaultOrchestratorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = defaults.SessionTimeout
	}
	if config.TriggerTimeout <= 0 {
		config.TriggerTimeout = defaults.TriggerTimeout
	}
	if config.PayloadTimeout <= 0 {
		config.PayloadTimeout = defaults.PayloadTimeout
	}
	if config.SignatureTimeout <= 0 {
		config.SignatureTimeout = defaults.SignatureTimeout
	}
	if config.SuccessWait <= 0 {
		config.SuccessWait = defaults.SuccessWait
	}
	if config.NotifyTimeout <= 0 {
		config.NotifyTimeout = defaults.NotifyTimeout
	}
	if deps.Detector == nil {
		deps.Detector = NewDetector(deps.Surface, nil, logger)
	}
	return &Orchestrator{config: config, deps: deps, logger: logger}
}

// Run executes one session to a terminal state. It never panics on
// collaborator errors and never returns an error; the outcome is in the Report.
func (o *Orchestrator) Run(ctx context.Context) Report {
	if !activeSession.CompareAndSwap(false, true) {
		o.logger.Error("refusing to start a second session", zap.Error(ErrSessionActive))
		return Report{Code: domain.CodeInternal, Err: ErrSessionActive}
	}
	defer activeSession.Store(false)

	session := domain.NewMonitoringSession(uuid.NewString(), o.config.PollInterval, o.config.SessionTimeout)
	logger := o.logger.With(zap.String("session_id", session.ID))
	report := Report{Session: session}

	if o.deps.Metrics != nil {
		o.deps.Metrics.SessionStarted(session)
	}
	_ = session.Transition(domain.StatePolling)
	logger.Info("monitoring started",
		zap.String("url", o.config.URL),
		zap.Duration("poll_interval", o.config.PollInterval),
		zap.Time("deadline", session.Deadline()))
	o.progress(ctx, fmt.Sprintf("🚀 Monitoring started\n%s", html.EscapeString(o.config.URL)))

	sessionCtx, cancel := context.WithDeadline(ctx, session.Deadline())
	defer cancel()

	detection, err := o.deps.Detector.WaitForOpening(sessionCtx, o.config.PollInterval)
	if err != nil {
		code := domain.CodeSessionTimeout
		if ctx.Err() != nil {
			code = domain.CodeCancelled
		}
		_ = session.Transition(domain.StateFailed)
		logger.Warn("monitoring ended without detection", zap.String("code", string(code)))
		o.notify(ctx, logger, formatNoDetection(code, o.config.SessionTimeout))

		report.Code = code
		report.Err = domain.NewBidError(code, err)
		return report
	}
	report.Detection = detection

	// Single attempt: from here the session can only end.
	_ = session.Transition(domain.StateTriggering)
	triggeredAt := time.Now()
	if o.deps.Metrics != nil {
		o.deps.Metrics.TriggerIssued(session, detection)
	}
	logger.Info("bidding window open, triggering bid",
		zap.String("method", string(detection.Method)),
		zap.Duration("detection_lag", triggeredAt.Sub(detection.ObservedAt)))

	transport, err := o.submit(sessionCtx, ctx, session, logger)
	reaction := time.Since(triggeredAt)

	outcome := domain.BidOutcome{
		SessionID:      session.ID,
		Timestamp:      time.Now().UTC(),
		Success:        err == nil,
		ReactionTimeMs: float64(reaction) / float64(time.Millisecond),
		DetectionLagMs: float64(triggeredAt.Sub(detection.ObservedAt)) / float64(time.Millisecond),
		Error:          domain.CodeOf(err),
		Partial:        domain.IsPartial(err),
		Transport:      transport,
		DetectedBy:     string(detection.Method),
		URL:            o.config.URL,
		PriceLimit:     o.config.PriceLimit,
	}
	if err != nil {
		outcome.Message = err.Error()
		_ = session.Transition(domain.StateFailed)
		logger.Error("bid failed",
			zap.String("code", string(outcome.Error)),
			zap.Bool("partial", outcome.Partial),
			zap.Float64("reaction_time_ms", outcome.ReactionTimeMs),
			zap.Error(err))
	} else {
		_ = session.Transition(domain.StateSucceeded)
		logger.Info("bid submitted",
			zap.Float64("reaction_time_ms", outcome.ReactionTimeMs),
			zap.String("transport", transport))
	}

	if err := o.deps.Results.Append(outcome); err != nil {
		logger.Error("failed to append bid outcome", zap.Error(err))
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.OutcomeRecorded(session, outcome)
	}
	if outcome.Success {
		o.screenshot(logger, "bid_success")
	} else {
		o.screenshot(logger, "bid_error")
	}
	o.notify(ctx, logger, formatOutcome(outcome))

	report.Outcome = &outcome
	report.Code = outcome.Error
	report.Err = err
	return report
}

// submit runs steps trigger → payload → dispatch → await → confirm and
// returns the transport that carried the request.
func (o *Orchestrator) submit(ctx, parent context.Context, session *domain.MonitoringSession, logger *zap.Logger) (string, error) {
	surface := o.deps.Surface

	if err := surface.Trigger(ctx, domain.RoleBidButton, o.config.TriggerTimeout); err != nil {
		return "", o.classify(ctx, parent, domain.CodeTriggerFailed, false, fmt.Errorf("bid click: %w", err))
	}
	// Taken after the click so it never delays the bid.
	o.screenshot(logger, "bid_clicked")

	payload, err := o.readPayload(ctx)
	if err != nil {
		return "", o.classify(ctx, parent, domain.CodePayloadMissing, false, err)
	}
	logger.Info("sign data read", zap.Int("payload_len", len(payload)))

	req := o.deps.Handshake.Issue(payload)
	transport, err := o.deps.Invoker.Invoke(ctx, req, o.deps.Handshake.CallbackURL(req))
	if err != nil {
		return "", o.classify(ctx, parent, domain.CodeSigningDispatchFailed, false, err)
	}
	_ = session.Transition(domain.StateAwaitingSignature)

	result, err := o.deps.Handshake.AwaitSignature(ctx, req.RequestID, o.config.SignatureTimeout)
	if err != nil {
		code := domain.CodeSigningTimeout
		if errors.Is(err, domain.ErrAgentRejected) {
			code = domain.CodeSigningRejected
		}
		return transport, o.classify(ctx, parent, code, true, err)
	}
	logger.Info("signature obtained",
		zap.String("request_id", result.RequestID),
		zap.Duration("signing_latency", result.ReceivedAt.Sub(req.IssuedAt)))

	_ = session.Transition(domain.StateConfirming)
	if err := o.confirm(ctx, result.Signature); err != nil {
		return transport, o.classify(ctx, parent, domain.CodeConfirmationFailed, true, err)
	}
	return transport, nil
}

// readPayload waits for the sign data element and reads its value, falling back to text.
func (o *Orchestrator) readPayload(ctx context.Context) (string, error) {
	surface := o.deps.Surface
	if err := surface.WaitFor(ctx, domain.RoleSignData, o.config.PayloadTimeout); err != nil {
		return "", fmt.Errorf("sign data did not appear: %w", err)
	}
	state, err := surface.ReadState(ctx, domain.RoleSignData)
	if err != nil {
		return "", fmt.Errorf("sign data unreadable: %w", err)
	}
	payload := strings.TrimSpace(state.Value)
	if payload == "" {
		payload = strings.TrimSpace(state.Text)
	}
	if payload == "" {
		return "", errors.New("sign data is empty")
	}
	return payload, nil
}

func (o *Orchestrator) confirm(ctx context.Context, signature string) error {
	surface := o.deps.Surface
	if err := surface.Fill(ctx, domain.RoleSignatureInput, signature); err != nil {
		return fmt.Errorf("signature fill: %w", err)
	}
	if err := surface.Trigger(ctx, domain.RoleConfirmButton, o.config.TriggerTimeout); err != nil {
		return fmt.Errorf("confirm click: %w", err)
	}
	if err := surface.WaitFor(ctx, domain.RoleSuccessIndicator, o.config.SuccessWait); err != nil {
		return fmt.Errorf("no success indicator: %w", err)
	}
	return nil
}

// classify wraps err with code unless the session was stopped or ran out of time,
// which take precedence over the step that happened to be interrupted. The
// partial flag always comes from the step: an interrupted click is not a press.
func (o *Orchestrator) classify(ctx, parent context.Context, code domain.ErrorCode, partial bool, err error) error {
	var be *domain.BidError
	if errors.As(err, &be) && ctx.Err() == nil {
		be.Partial = be.Partial || partial
		return be
	}
	switch {
	case parent.Err() != nil:
		code = domain.CodeCancelled
	case ctx.Err() != nil:
		code = domain.CodeSessionTimeout
	}
	if partial {
		return domain.NewPartialBidError(code, err)
	}
	return domain.NewBidError(code, err)
}

func (o *Orchestrator) screenshot(logger *zap.Logger, name string) {
	if !o.config.Screenshots {
		return
	}
	shooter, ok := o.deps.Surface.(domain.Screenshotter)
	if !ok {
		return
	}
	path, err := shooter.Screenshot(name)
	if err != nil {
		logger.Warn("screenshot failed", zap.Error(err))
		return
	}
	logger.Info("screenshot saved", zap.String("path", path))
}

// notify sends the terminal message. It survives cancellation of ctx so a
// stopped session still reports, and its failures are only logged.
func (o *Orchestrator) notify(ctx context.Context, logger *zap.Logger, message string) {
	if o.deps.Notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.NotifyTimeout)
	defer cancel()
	if err := o.deps.Notifier.Send(sendCtx, message); err != nil {
		logger.Error("failed to send notification", zap.Error(err))
	}
}

func (o *Orchestrator) progress(ctx context.Context, message string) {
	if o.config.NotifyProgress {
		o.notify(ctx, o.logger, message)
	}
}

func formatNoDetection(code domain.ErrorCode, timeout time.Duration) string {
	if code == domain.CodeCancelled {
		return "🛑 Monitoring stopped by operator before the auction opened"
	}
	return fmt.Sprintf("⏰ Monitoring stopped: auction did not open within %s", timeout)
}

func formatOutcome(outcome domain.BidOutcome) string {
	if outcome.Success {
		return fmt.Sprintf("✅ <b>Bid submitted</b>\nReaction time: %.0f ms\nDetected by: %s\nTransport: %s",
			outcome.ReactionTimeMs, outcome.DetectedBy, outcome.Transport)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "❌ <b>Bid failed</b>: %s\n%s", outcome.Error, outcome.Error.Describe())
	if outcome.Partial {
		b.WriteString("\n⚠️ The bid button was already pressed; check the auction page manually.")
	}
	if outcome.Message != "" {
		fmt.Fprintf(&b, "\n<code>%s</code>", html.EscapeString(outcome.Message))
	}
	return b.String()
}
