package monitor

import (
	"fmt"
	"time"
)

// Health grades the engine over the trailing window.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Report is the human-readable assessment built from Metrics.
type Report struct {
	Health          Health
	IssueCount      int
	Issues          []string
	Recommendations []string
}

// Success-rate thresholds. Exactly 0.5 is degraded, exactly 0.9 healthy.
const (
	unhealthyBelow = 0.5
	degradedBelow  = 0.9
)

var recommendations = map[Reason]string{
	ReasonClipboardBusy:     "Close or disable clipboard-history tools; they hold the clipboard open.",
	ReasonNoTarget:          "Ensure the target window has focus before dictating.",
	ReasonTimeout:           "Increase the injection timeout or lower the per-character delay.",
	ReasonSynthesisRejected: "Set this application's preferred method to paste.",
	ReasonUnsupportedChar:   "Allow clipboard fallback for text with special characters.",
	ReasonEngineBusy:        "Wait for the previous dictation to finish before starting another.",
}

// Report classifies health over the trailing window and derives one
// recommendation per observed failure reason. With no attempts in the
// window the engine is idle, not failing, so it reports healthy.
func (m *Monitor) Report(windowDuration time.Duration) Report {
	met := m.Metrics(windowDuration)

	rep := Report{Health: HealthHealthy}
	if met.Total == 0 {
		return rep
	}

	switch {
	case met.SuccessRate < unhealthyBelow:
		rep.Health = HealthUnhealthy
	case met.SuccessRate < degradedBelow:
		rep.Health = HealthDegraded
	}

	if rep.Health != HealthHealthy {
		rep.Issues = append(rep.Issues, fmt.Sprintf(
			"success rate %.0f%% over %d attempts in the last %s",
			met.SuccessRate*100, met.Total, windowDuration))
	}

	counts := make(map[Reason]int)
	var order []Reason
	for _, a := range met.RecentFailures {
		reason := a.Reason
		if reason == ReasonNone {
			reason = ReasonSynthesisRejected
		}
		if counts[reason] == 0 {
			order = append(order, reason)
		}
		counts[reason]++
	}

	for _, reason := range order {
		rep.Issues = append(rep.Issues, fmt.Sprintf("%d failure(s): %s", counts[reason], reason))
		if reason == ReasonCancelled {
			// User-interrupted deliveries are not actionable.
			continue
		}
		if advice, ok := recommendations[reason]; ok {
			rep.Recommendations = append(rep.Recommendations, advice)
		}
	}

	rep.IssueCount = len(rep.Issues)
	return rep
}
