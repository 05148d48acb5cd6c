// Package health computes network health scores from component-level
// measurements and tracked metrics.
package health

import "time"

// Status is the coarse health classification derived from the overall
// score.
type Status string

const (
	StatusHealthy  Status = "Healthy"
	StatusWarning  Status = "Warning"
	StatusCritical Status = "Critical"
	StatusUnknown  Status = "Unknown"
)

// ComponentScores are the per-category inputs to the overall score, each on
// a 0-100 scale.
type ComponentScores struct {
	Connectivity uint8 `json:"connectivity"`
	Throughput   uint8 `json:"throughput"`
	Latency      uint8 `json:"latency"`
	Consensus    uint8 `json:"consensus"`
	Availability uint8 `json:"availability"`
}

// Trends are signed percentage-point deltas versus historical snapshots,
// each clamped to [-100, 100].
type Trends struct {
	Daily   int `json:"daily"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
}

// Score is a full health report.
type Score struct {
	Overall    uint8           `json:"overall"`
	Status     Status          `json:"status"`
	Components ComponentScores `json:"components"`
	Freshness  uint8           `json:"freshness"`
	Trends     Trends          `json:"trends"`
	Warnings   []string        `json:"warnings"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Component weights. Connectivity carries the most because a partitioned
// network invalidates every other signal.
const (
	weightConnectivity = 0.25
	weightThroughput   = 0.20
	weightLatency      = 0.20
	weightConsensus    = 0.20
	weightAvailability = 0.15
)

func validScore(v uint8) bool { return v <= 100 }

// Compute aggregates component scores into an overall health score. The
// weighted sum is truncated, not rounded: the truncation is load-bearing at
// the Healthy boundary (e.g. 89.9 is Warning, not Healthy). Any component
// outside 0-100 yields Unknown.
func Compute(c ComponentScores) Score {
	score := Score{Components: c, ComputedAt: time.Now()}

	if !validScore(c.Connectivity) || !validScore(c.Throughput) ||
		!validScore(c.Latency) || !validScore(c.Consensus) || !validScore(c.Availability) {
		score.Status = StatusUnknown
		return score
	}

	weighted := weightConnectivity*float64(c.Connectivity) +
		weightThroughput*float64(c.Throughput) +
		weightLatency*float64(c.Latency) +
		weightConsensus*float64(c.Consensus) +
		weightAvailability*float64(c.Availability)
	score.Overall = uint8(weighted)

	switch {
	case score.Overall >= 90:
		score.Status = StatusHealthy
	case score.Overall >= 70:
		score.Status = StatusWarning
		score.Warnings = append(score.Warnings, "Warning: network health degraded")
	default:
		score.Status = StatusCritical
		score.Warnings = append(score.Warnings, "Critical: network health severely degraded")
	}
	return score
}

// FreshnessScore maps a metric's age to a staleness penalty on a 0-100
// scale.
func FreshnessScore(age time.Duration) uint8 {
	switch {
	case age < 300*time.Second:
		return 100
	case age < 600*time.Second:
		return 80
	case age < 1800*time.Second:
		return 60
	case age < 3600*time.Second:
		return 40
	default:
		return 20
	}
}
