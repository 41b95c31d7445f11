// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
	"github.com/eliteGoblin/bidbot/internal/heuristic"
)

// Detector decides whether the auction bidding window has opened.
type Detector struct {
	surface  domain.Surface
	registry *heuristic.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewDetector creates a detector evaluating registry's heuristics against surface.
func NewDetector(surface domain.Surface, registry *heuristic.Registry, logger *zap.Logger) *Detector {
	if registry == nil {
		registry = heuristic.NewDefaultRegistry()
	}
	return &Detector{
		surface:  surface,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Poll evaluates the heuristics once, in precedence order, stopping at the
// first positive. Read failures never escape: an absent element skips that
// heuristic, any other failure ends the tick as not detected.
func (d *Detector) Poll(ctx context.Context) domain.DetectionResult {
	for _, h := range d.registry.All() {
		ok, err := h.Evaluate(ctx, d.surface)
		if err != nil {
			if errors.Is(err, domain.ErrElementAbsent) {
				d.logger.Debug("detection element absent",
					zap.String("method", string(h.Method())),
					zap.String("role", string(h.Role())))
				continue
			}
			d.logger.Debug("detection read failed",
				zap.String("method", string(h.Method())),
				zap.String("code", string(domain.CodeDetectionIOError)),
				zap.Error(err))
			return domain.DetectionResult{ObservedAt: d.now()}
		}
		if ok {
			return domain.DetectionResult{
				Detected:   true,
				Method:     h.Method(),
				ObservedAt: d.now(),
			}
		}
	}
	return domain.DetectionResult{ObservedAt: d.now()}
}

// WaitForOpening polls immediately and then once per interval until a
// heuristic fires or ctx ends. Polls never overlap.
func (d *Detector) WaitForOpening(ctx context.Context, interval time.Duration) (domain.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.DetectionResult{}, err
	}
	if result := d.Poll(ctx); result.Detected {
		d.logger.Info("auction already open", zap.String("method", string(result.Method)))
		return result, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ticks := 1
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("detection loop stopped", zap.Int("ticks", ticks), zap.Error(ctx.Err()))
			return domain.DetectionResult{}, ctx.Err()
		case <-ticker.C:
			ticks++
			// A tick and cancellation can be ready together; cancellation wins.
			if ctx.Err() != nil {
				continue
			}
			if result := d.Poll(ctx); result.Detected {
				d.logger.Info("auction opening detected",
					zap.String("method", string(result.Method)),
					zap.Int("ticks", ticks))
				return result, nil
			}
		}
	}
}
