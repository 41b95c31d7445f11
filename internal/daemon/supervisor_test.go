package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAgentSupervisor_LogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	checker := &mockChecker{}
	s := NewAgentSupervisor(checker, zap.New(core))

	steps := []struct {
		pids    []int
		wantUp  bool
		wantMsg string
	}{
		{pids: nil, wantUp: false, wantMsg: "signing agent not running, signing will fail until it is started"},
		{pids: nil, wantUp: false, wantMsg: ""},
		{pids: []int{7}, wantUp: true, wantMsg: "signing agent started"},
		{pids: []int{7}, wantUp: true, wantMsg: ""},
		{pids: nil, wantUp: false, wantMsg: "signing agent stopped"},
	}

	for i, step := range steps {
		checker.pids = step.pids
		before := logs.Len()

		assert.Equal(t, step.wantUp, s.Check(), "step %d", i)

		entries := logs.All()[before:]
		if step.wantMsg == "" {
			assert.Empty(t, entries, "step %d", i)
			continue
		}
		if assert.Len(t, entries, 1, "step %d", i) {
			assert.Equal(t, step.wantMsg, entries[0].Message)
		}
	}
}

func TestAgentSupervisor_FirstCheckRunning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewAgentSupervisor(&mockChecker{pids: []int{1, 2}}, zap.New(core))

	assert.True(t, s.Check())
	assert.Equal(t, 1, logs.FilterMessage("signing agent running").Len())
}
