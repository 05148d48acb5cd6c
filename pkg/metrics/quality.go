package metrics

import "math"

// Quality score component weights. Source reliability carries the most
// because it is the only externally attested input.
const (
	qualityWeightFreshness   = 0.3
	qualityWeightReliability = 0.4
	qualityWeightConsensus   = 0.3
)

// ComputeQualityScore folds freshness, source reliability and consensus
// level (each 0-100) into a single quality score. Unlike the health
// aggregate this rounds rather than truncates; no status boundary depends
// on it.
func ComputeQualityScore(freshness, reliability, consensus uint8) uint8 {
	weighted := qualityWeightFreshness*float64(freshness) +
		qualityWeightReliability*float64(reliability) +
		qualityWeightConsensus*float64(consensus)
	return uint8(math.Round(weighted))
}
