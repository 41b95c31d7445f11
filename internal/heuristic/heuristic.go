// Package heuristic implements the Strategy pattern for auction-opening detection.
// Each heuristic inspects one element of the auction page and decides whether
// the bidding window is open.
package heuristic

import (
	"context"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// Heuristic is one independent detection rule.
type Heuristic interface {
	// Method identifies the heuristic in DetectionResult.
	Method() domain.DetectionMethod

	// Role is the page element the heuristic reads.
	Role() domain.SelectorRole

	// Evaluate reads the surface once. A domain.ErrElementAbsent error means
	// the element is not on the page; any other error is a read failure.
	Evaluate(ctx context.Context, surface domain.Surface) (bool, error)
}
