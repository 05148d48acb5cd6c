// Package zk implements the verifiable metric pipeline: the circuit
// catalog, proof generation and verification with content-addressed
// caching, and the asynchronous proof scheduler.
package zk

import (
	"github.com/holiman/uint256"
)

// Circuit is a fixed-capacity template describing what shape of
// private-to-public computation a proof can cover. Circuits are immutable
// once registered with a catalog.
type Circuit struct {
	ID             uint32 `json:"circuit_id"`
	MaxDataPoints  int    `json:"max_data_points"`
	MaxDataSources int    `json:"max_data_sources"`
	Description    string `json:"description"`
}

// Complexity is the cost model used for circuit selection and completion
// estimates.
type Complexity struct {
	ConstraintCount         int `json:"constraint_count"`
	WitnessCount            int `json:"witness_count"`
	EstimatedGenerationMs   int `json:"estimated_generation_time_ms"`
	EstimatedVerificationMs int `json:"estimated_verification_time_ms"`
	EstimatedMemoryUsageMB  int `json:"memory_usage_mb"`
}

// EstimateComplexity models constraint and witness counts for a submission
// shape. Base constraints cover range checks and aggregate wiring; each data
// point adds range plus aggregation constraints, each source adds
// reliability checks.
func (c *Circuit) EstimateComplexity(dataPoints, sources int) Complexity {
	constraints := 50 + dataPoints*5 + sources*3 + 20
	witnesses := dataPoints + sources*2 + (dataPoints + sources + 10)

	return Complexity{
		ConstraintCount:         constraints,
		WitnessCount:            witnesses,
		EstimatedGenerationMs:   constraints/1000 + witnesses/500,
		EstimatedVerificationMs: constraints/5000 + 10,
		EstimatedMemoryUsageMB:  (constraints + witnesses) / 10000,
	}
}

// Fits reports whether the circuit has capacity for the submission shape.
func (c *Circuit) Fits(dataPoints, sources int) bool {
	return c.MaxDataPoints >= dataPoints && c.MaxDataSources >= sources
}

// VerifyConstraints is the pre-proof sanity gate. It rejects submissions a
// malicious submitter could otherwise sneak past the prover: aggregates
// diverging from the private readings beyond 5% relative tolerance, and
// quality scores significantly above what the sources' reliability supports.
func (c *Circuit) VerifyConstraints(privateData []*uint256.Int, sourceReliabilities []uint8, publicMetric *uint256.Int, qualityScore uint8) bool {
	if len(privateData) > c.MaxDataPoints {
		return false
	}
	if len(sourceReliabilities) > c.MaxDataSources {
		return false
	}
	if len(sourceReliabilities) < 2 {
		return false
	}

	if len(privateData) > 0 && publicMetric != nil {
		sum := new(uint256.Int)
		for _, v := range privateData {
			if _, overflow := sum.AddOverflow(sum, v); overflow {
				return false
			}
		}
		avg := new(uint256.Int).Div(sum, uint256.NewInt(uint64(len(privateData))))

		// 5% relative tolerance against the claimed aggregate.
		tolerance := new(uint256.Int).Div(publicMetric, uint256.NewInt(20))
		diff := new(uint256.Int)
		if avg.Cmp(publicMetric) >= 0 {
			diff.Sub(avg, publicMetric)
		} else {
			diff.Sub(publicMetric, avg)
		}
		if diff.Gt(tolerance) {
			return false
		}
	}

	if qualityScore > 100 {
		return false
	}

	// Quality cannot significantly exceed the mean reliability of the
	// sources backing it.
	var reliabilitySum uint32
	for _, r := range sourceReliabilities {
		reliabilitySum += uint32(r)
	}
	avgReliability := reliabilitySum / uint32(len(sourceReliabilities))
	if uint32(qualityScore) > avgReliability+10 {
		return false
	}

	return true
}
