package heuristic

import (
	"context"
	"strings"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// StatusStartedCues are status-line phrases announcing the start of trading.
var StatusStartedCues = []string{
	"начался",
	"начались",
	"старт",
	"started",
	"has begun",
}

// StatusStarted reports whether a status text announces the start of trading.
func StatusStarted(text string) bool {
	text = strings.ToLower(text)
	for _, cue := range StatusStartedCues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

// StatusText fires when the status line announces the start of trading.
type StatusText struct{}

// NewStatusText creates the status-text heuristic.
func NewStatusText() *StatusText {
	return &StatusText{}
}

func (h *StatusText) Method() domain.DetectionMethod {
	return domain.MethodStatusTextMatch
}

func (h *StatusText) Role() domain.SelectorRole {
	return domain.RoleStatus
}

func (h *StatusText) Evaluate(ctx context.Context, surface domain.Surface) (bool, error) {
	state, err := surface.ReadState(ctx, domain.RoleStatus)
	if err != nil {
		return false, err
	}
	return StatusStarted(state.Text), nil
}

// Ensure StatusText implements Heuristic.
var _ Heuristic = (*StatusText)(nil)
