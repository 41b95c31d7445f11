package daemon

import (
	"go.uber.org/zap"
)

// AgentChecker reports the PIDs of the running signing agent.
type AgentChecker interface {
	Running() []int
}

// AgentSupervisor watches the signing agent process and logs when it
// appears or disappears. It only observes; the agent is started by the operator.
type AgentSupervisor struct {
	checker AgentChecker
	logger  *zap.Logger

	checked bool
	up      bool
}

// NewAgentSupervisor creates a supervisor around checker.
func NewAgentSupervisor(checker AgentChecker, logger *zap.Logger) *AgentSupervisor {
	return &AgentSupervisor{checker: checker, logger: logger}
}

// Check probes the agent once and returns whether it is running.
// Not safe for concurrent use; the runner loop is the only caller.
func (s *AgentSupervisor) Check() bool {
	pids := s.checker.Running()
	up := len(pids) > 0

	switch {
	case !s.checked && up:
		s.logger.Info("signing agent running", zap.Ints("pids", pids))
	case !s.checked && !up:
		s.logger.Warn("signing agent not running, signing will fail until it is started")
	case s.up && !up:
		s.logger.Warn("signing agent stopped")
	case !s.up && up:
		s.logger.Info("signing agent started", zap.Ints("pids", pids))
	}

	s.checked = true
	s.up = up
	return up
}
