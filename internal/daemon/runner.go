// Package daemon runs a monitoring session together with the
// process-lifetime services it depends on.
package daemon

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/usecase"
)

// Session is one bid session run to completion.
type Session interface {
	Run(ctx context.Context) usecase.Report
}

// Service is a background listener owned by the runner.
type Service interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// RunnerConfig holds runner configuration.
type RunnerConfig struct {
	AgentCheckInterval time.Duration // How often to check the signing agent process
	HeartbeatInterval  time.Duration // How often to log that monitoring is alive
	ShutdownTimeout    time.Duration // Bound on stopping listeners
}

// DefaultRunnerConfig returns default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		AgentCheckInterval: 30 * time.Second,
		HeartbeatInterval:  time.Minute,
		ShutdownTimeout:    5 * time.Second,
	}
}

// RunnerDeps are the resources a run owns. Metrics and Supervisor are optional.
type RunnerDeps struct {
	Session    Session
	Callback   Service // signature callback listener, required
	Metrics    Service
	Supervisor *AgentSupervisor
	Closers    []io.Closer // released after the session, e.g. the browser surface
}

// Runner starts the listeners, runs the session in its own goroutine and
// supervises until the session reaches a terminal state.
type Runner struct {
	config RunnerConfig
	deps   RunnerDeps
	logger *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(config RunnerConfig, deps RunnerDeps, logger *zap.Logger) *Runner {
	defaults := DefaultRunnerConfig()
	if config.AgentCheckInterval <= 0 {
		config.AgentCheckInterval = defaults.AgentCheckInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	return &Runner{config: config, deps: deps, logger: logger}
}

// Run blocks until the session finishes. Cancelling ctx stops the session,
// which still reports its terminal state before Run returns.
func (r *Runner) Run(ctx context.Context) (usecase.Report, error) {
	defer r.release()

	if err := r.deps.Callback.Start(); err != nil {
		return usecase.Report{}, err
	}
	if r.deps.Metrics != nil {
		if err := r.deps.Metrics.Start(); err != nil {
			// metrics are optional; the bid must still go ahead
			r.logger.Warn("metrics endpoint unavailable", zap.Error(err))
			r.deps.Metrics = nil
		}
	}

	if r.deps.Supervisor != nil {
		r.deps.Supervisor.Check()
	}

	started := time.Now()
	done := make(chan usecase.Report, 1)
	go func() {
		done <- r.deps.Session.Run(ctx)
	}()

	r.logger.Info("runner started")

	agentTicker := time.NewTicker(r.config.AgentCheckInterval)
	heartbeatTicker := time.NewTicker(r.config.HeartbeatInterval)
	defer func() {
		agentTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case report := <-done:
			r.logger.Info("runner finished",
				zap.String("code", string(report.Code)),
				zap.Duration("elapsed", time.Since(started)))
			return report, nil

		case <-agentTicker.C:
			if r.deps.Supervisor != nil {
				r.deps.Supervisor.Check()
			}

		case <-heartbeatTicker.C:
			r.logger.Info("monitoring", zap.Duration("uptime", time.Since(started).Round(time.Second)))
		}
	}
}

// release stops listeners and closes owned resources, logging failures.
func (r *Runner) release() {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.ShutdownTimeout)
	defer cancel()

	if err := r.deps.Callback.Shutdown(ctx); err != nil {
		r.logger.Warn("failed to stop callback listener", zap.Error(err))
	}
	if r.deps.Metrics != nil {
		if err := r.deps.Metrics.Shutdown(ctx); err != nil {
			r.logger.Warn("failed to stop metrics endpoint", zap.Error(err))
		}
	}
	for _, c := range r.deps.Closers {
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
}
