package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// PerformanceReport summarises recorded outcomes. Times are milliseconds.
type PerformanceReport struct {
	Total       int
	Successful  int
	Partial     int
	SuccessRate float64 // percent
	Mean        float64
	Median      float64
	Min         float64
	Max         float64
	StdDev      float64 // sample standard deviation
	ByCode      map[domain.ErrorCode]int

	// Detection lag: opening observed → bid click issued. Outcomes recorded
	// without a lag are left out.
	LagSamples int
	LagMean    float64
	LagMax     float64
}

// BuildReport computes reaction-time statistics over every recorded outcome.
func BuildReport(outcomes []domain.BidOutcome) PerformanceReport {
	report := PerformanceReport{ByCode: make(map[domain.ErrorCode]int)}
	if len(outcomes) == 0 {
		return report
	}

	times := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		report.Total++
		if o.Success {
			report.Successful++
		} else {
			report.ByCode[o.Error]++
		}
		if o.Partial {
			report.Partial++
		}
		times = append(times, o.ReactionTimeMs)
		if o.DetectionLagMs > 0 {
			report.LagSamples++
			report.LagMean += o.DetectionLagMs
			report.LagMax = math.Max(report.LagMax, o.DetectionLagMs)
		}
	}
	if report.LagSamples > 0 {
		report.LagMean /= float64(report.LagSamples)
	}
	report.SuccessRate = float64(report.Successful) / float64(report.Total) * 100

	sort.Float64s(times)
	report.Min = times[0]
	report.Max = times[len(times)-1]

	var sum float64
	for _, t := range times {
		sum += t
	}
	report.Mean = sum / float64(len(times))

	mid := len(times) / 2
	if len(times)%2 == 0 {
		report.Median = (times[mid-1] + times[mid]) / 2
	} else {
		report.Median = times[mid]
	}

	if len(times) > 1 {
		var sq float64
		for _, t := range times {
			sq += (t - report.Mean) * (t - report.Mean)
		}
		report.StdDev = math.Sqrt(sq / float64(len(times)-1))
	}
	return report
}

// String renders the report for the terminal.
func (r PerformanceReport) String() string {
	if r.Total == 0 {
		return "No bid outcomes recorded yet"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total bids:          %d\n", r.Total)
	fmt.Fprintf(&b, "Successful:          %d\n", r.Successful)
	fmt.Fprintf(&b, "Success rate:        %.1f%%\n", r.SuccessRate)
	fmt.Fprintf(&b, "Partial failures:    %d\n", r.Partial)
	fmt.Fprintf(&b, "Mean reaction:       %.2f ms\n", r.Mean)
	fmt.Fprintf(&b, "Median reaction:     %.2f ms\n", r.Median)
	fmt.Fprintf(&b, "Fastest:             %.2f ms\n", r.Min)
	fmt.Fprintf(&b, "Slowest:             %.2f ms\n", r.Max)
	fmt.Fprintf(&b, "Standard deviation:  %.2f ms\n", r.StdDev)
	if r.LagSamples > 0 {
		fmt.Fprintf(&b, "Mean detection lag:  %.2f ms\n", r.LagMean)
		fmt.Fprintf(&b, "Max detection lag:   %.2f ms\n", r.LagMax)
	}

	if len(r.ByCode) > 0 {
		codes := make([]string, 0, len(r.ByCode))
		for code := range r.ByCode {
			codes = append(codes, string(code))
		}
		sort.Strings(codes)
		b.WriteString("Failures by code:\n")
		for _, code := range codes {
			fmt.Fprintf(&b, "  %-22s %d\n", code, r.ByCode[domain.ErrorCode(code)])
		}
	}
	return b.String()
}
