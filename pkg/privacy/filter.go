// Package privacy applies tiered disclosure transforms to metric values
// before they leave the core. Transforms are pure: same input, same tier,
// same output.
package privacy

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/polyvisor/pulse/pkg/metrics"
)

// Tier orders disclosure levels from most to least private.
type Tier uint8

const (
	TierMaximum Tier = iota
	TierHigh
	TierMedium
	TierLow
	TierMinimal
)

var tierNames = map[Tier]string{
	TierMaximum: "maximum",
	TierHigh:    "high",
	TierMedium:  "medium",
	TierLow:     "low",
	TierMinimal: "minimal",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// ParseTier maps a tier name to its Tier, case-insensitively.
func ParseTier(s string) (Tier, error) {
	for t, name := range tierNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown privacy tier %q", s)
}

// AnonymizedSource replaces the source node identity for every tier except
// Minimal.
const AnonymizedSource = "anonymous"

// floorToMultiple rounds v down to the nearest multiple of m. It is a
// projection: applying it twice is the same as applying it once.
func floorToMultiple(v *uint256.Int, m uint64) *uint256.Int {
	mult := uint256.NewInt(m)
	out := new(uint256.Int).Div(v, mult)
	return out.Mul(out, mult)
}

// Apply filters a metric value for disclosure at the given tier. The input
// is not mutated; a filtered copy is returned.
func Apply(v *metrics.Value, tier Tier) *metrics.Value {
	out := &metrics.Value{
		MetricType:   v.MetricType,
		Value:        new(uint256.Int).Set(v.Value),
		Timestamp:    v.Timestamp,
		ProofID:      v.ProofID,
		QualityScore: v.QualityScore,
		SourceNode:   v.SourceNode,
	}

	switch tier {
	case TierMaximum:
		out.Value = floorToMultiple(out.Value, 1000)
		out.QualityScore = 0
		out.SourceNode = AnonymizedSource
	case TierHigh:
		out.Value = floorToMultiple(out.Value, 100)
		out.QualityScore = out.QualityScore / 10 * 10
		out.SourceNode = AnonymizedSource
	case TierMedium:
		out.Value = floorToMultiple(out.Value, 10)
		out.SourceNode = AnonymizedSource
	case TierLow:
		out.SourceNode = AnonymizedSource
	case TierMinimal:
		// Raw passthrough.
	default:
		// Unknown tiers disclose nothing beyond the most private level.
		out.Value = floorToMultiple(out.Value, 1000)
		out.QualityScore = 0
		out.SourceNode = AnonymizedSource
	}
	return out
}
