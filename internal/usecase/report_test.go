package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

func TestBuildReport(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []domain.BidOutcome
		check    func(t *testing.T, r PerformanceReport)
	}{
		{
			name: "empty history",
			check: func(t *testing.T, r PerformanceReport) {
				assert.Zero(t, r.Total)
				assert.Equal(t, "No bid outcomes recorded yet", r.String())
			},
		},
		{
			name:     "single outcome has zero deviation",
			outcomes: []domain.BidOutcome{{Success: true, ReactionTimeMs: 500}},
			check: func(t *testing.T, r PerformanceReport) {
				assert.Equal(t, 1, r.Total)
				assert.Equal(t, 100.0, r.SuccessRate)
				assert.Equal(t, 500.0, r.Median)
				assert.Zero(t, r.StdDev)
			},
		},
		{
			name: "mixed outcomes",
			outcomes: []domain.BidOutcome{
				{Success: true, ReactionTimeMs: 400},
				{Success: false, ReactionTimeMs: 30000, Error: domain.CodeSigningTimeout, Partial: true},
				{Success: true, ReactionTimeMs: 600},
				{Success: false, ReactionTimeMs: 200, Error: domain.CodeTriggerFailed},
			},
			check: func(t *testing.T, r PerformanceReport) {
				assert.Equal(t, 4, r.Total)
				assert.Equal(t, 2, r.Successful)
				assert.Equal(t, 1, r.Partial)
				assert.Equal(t, 50.0, r.SuccessRate)
				assert.Equal(t, 200.0, r.Min)
				assert.Equal(t, 30000.0, r.Max)
				assert.Equal(t, 500.0, r.Median)
				assert.Equal(t, 7800.0, r.Mean)
				assert.InDelta(t, 14800.9, r.StdDev, 0.1)
				assert.Equal(t, map[domain.ErrorCode]int{
					domain.CodeSigningTimeout: 1,
					domain.CodeTriggerFailed:  1,
				}, r.ByCode)
				assert.Contains(t, r.String(), "SigningTimeout")
				assert.Contains(t, r.String(), "Success rate:        50.0%")
			},
		},
		{
			name: "detection lag skips outcomes without one",
			outcomes: []domain.BidOutcome{
				{Success: true, ReactionTimeMs: 400, DetectionLagMs: 20},
				{Success: true, ReactionTimeMs: 450},
				{Success: false, ReactionTimeMs: 500, DetectionLagMs: 60, Error: domain.CodeTriggerFailed},
			},
			check: func(t *testing.T, r PerformanceReport) {
				assert.Equal(t, 2, r.LagSamples)
				assert.Equal(t, 40.0, r.LagMean)
				assert.Equal(t, 60.0, r.LagMax)
				assert.Contains(t, r.String(), "Mean detection lag:  40.00 ms")
				assert.Contains(t, r.String(), "Max detection lag:   60.00 ms")
			},
		},
		{
			name:     "no lag recorded omits lag lines",
			outcomes: []domain.BidOutcome{{Success: true, ReactionTimeMs: 500}},
			check: func(t *testing.T, r PerformanceReport) {
				assert.Zero(t, r.LagSamples)
				assert.NotContains(t, r.String(), "detection lag")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, BuildReport(tt.outcomes))
		})
	}
}
