package infra

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// DefaultAgentProcessNames are process name fragments of known signing agents.
var DefaultAgentProcessNames = []string{"NCALayer", "ncalayer"}

// ProcessFinderImpl implements domain.ProcessFinder using gopsutil.
type ProcessFinderImpl struct{}

// NewProcessFinder creates a new process finder.
func NewProcessFinder() *ProcessFinderImpl {
	return &ProcessFinderImpl{}
}

// FindByName returns PIDs of processes whose name or command line contains
// pattern (case-insensitive). Java-hosted agents only show up in the cmdline.
func (pf *ProcessFinderImpl) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	patternLower := strings.ToLower(pattern)

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.Contains(strings.ToLower(name), patternLower) {
			found = append(found, int(p.Pid))
			continue
		}
		if cmdline, err := p.Cmdline(); err == nil && strings.Contains(strings.ToLower(cmdline), patternLower) {
			found = append(found, int(p.Pid))
		}
	}

	return found, nil
}

// AgentProbe reports whether the signing agent process is running.
type AgentProbe struct {
	finder domain.ProcessFinder
	names  []string
	logger *zap.Logger
}

// NewAgentProbe creates a probe looking for any of names.
func NewAgentProbe(finder domain.ProcessFinder, logger *zap.Logger, names ...string) *AgentProbe {
	if len(names) == 0 {
		names = DefaultAgentProcessNames
	}
	return &AgentProbe{finder: finder, names: names, logger: logger}
}

// Running returns the PIDs of the agent, or nil when it is not running.
func (a *AgentProbe) Running() []int {
	seen := make(map[int]bool)
	var pids []int
	for _, name := range a.names {
		found, err := a.finder.FindByName(name)
		if err != nil {
			a.logger.Debug("process lookup failed", zap.String("name", name), zap.Error(err))
			continue
		}
		for _, pid := range found {
			if !seen[pid] {
				seen[pid] = true
				pids = append(pids, pid)
			}
		}
	}
	return pids
}

// Ensure ProcessFinderImpl implements domain.ProcessFinder.
var _ domain.ProcessFinder = (*ProcessFinderImpl)(nil)
