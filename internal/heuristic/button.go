package heuristic

import (
	"context"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// ButtonEnabled fires when the bid button reports it can be clicked.
// It is authoritative when the button is on the page, so it runs first.
type ButtonEnabled struct{}

// NewButtonEnabled creates the action-affordance heuristic.
func NewButtonEnabled() *ButtonEnabled {
	return &ButtonEnabled{}
}

func (h *ButtonEnabled) Method() domain.DetectionMethod {
	return domain.MethodButtonEnabled
}

func (h *ButtonEnabled) Role() domain.SelectorRole {
	return domain.RoleBidButton
}

func (h *ButtonEnabled) Evaluate(ctx context.Context, surface domain.Surface) (bool, error) {
	state, err := surface.ReadState(ctx, domain.RoleBidButton)
	if err != nil {
		return false, err
	}
	return state.Enabled, nil
}

// Ensure ButtonEnabled implements Heuristic.
var _ Heuristic = (*ButtonEnabled)(nil)
