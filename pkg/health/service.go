package health

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/store"
	"github.com/polyvisor/pulse/pkg/utils"
)

// targetBlockTimeMs is the block time the connectivity score measures
// deviation against.
const targetBlockTimeMs = 6000

// Service computes health reports from the metric store. Component scores
// are derived from the latest accepted value of each tracked metric type.
type Service struct {
	metricStore store.MetricStore
	logger      *zap.Logger
	now         func() time.Time
}

// NewService builds a health service over the metric store.
func NewService(metricStore store.MetricStore, logger *zap.Logger) *Service {
	return &Service{
		metricStore: metricStore,
		logger:      logger.Named("health"),
		now:         time.Now,
	}
}

// trackedCategories are the metric types folded into the freshness average.
var trackedCategories = []string{
	metrics.TypeBlockTime,
	metrics.TypeTransactionVolume,
	metrics.TypeValidatorUptime,
	metrics.TypeNetworkCongestion,
	metrics.TypeNodeAvailability,
}

func clampScore(v uint64) uint8 {
	if v > 100 {
		return 100
	}
	return uint8(v)
}

// valueAsUint64 saturates a metric value into a uint64 for scoring math.
func valueAsUint64(v *uint256.Int) uint64 {
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// connectivityScore measures block-time deviation from the target: a chain
// producing blocks on schedule scores 100, dropping linearly with relative
// deviation.
func connectivityScore(blockTimeMs uint64) uint8 {
	var deviation uint64
	if blockTimeMs > targetBlockTimeMs {
		deviation = blockTimeMs - targetBlockTimeMs
	} else {
		deviation = targetBlockTimeMs - blockTimeMs
	}
	penalty := deviation * 100 / targetBlockTimeMs
	if penalty >= 100 {
		return 0
	}
	return uint8(100 - penalty)
}

// componentScoresAsOf derives component scores from metric values at or
// before the given instant. Missing categories score zero.
func (s *Service) componentScoresAsOf(ctx context.Context, asOf time.Time) ComponentScores {
	load := func(metricType string) (*metrics.Value, bool) {
		v, err := s.metricStore.LoadMetricAsOf(ctx, metricType, asOf)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("metric load failed",
					zap.String("metric_type", metricType),
					zap.Error(err))
			}
			return nil, false
		}
		return v, true
	}

	var c ComponentScores
	if v, ok := load(metrics.TypeBlockTime); ok {
		c.Connectivity = connectivityScore(valueAsUint64(v.Value))
	}
	if v, ok := load(metrics.TypeTransactionVolume); ok {
		c.Throughput = clampScore(valueAsUint64(v.Value) / 100)
	}
	if v, ok := load(metrics.TypeNetworkCongestion); ok {
		congestion := valueAsUint64(v.Value)
		if congestion < 100 {
			c.Latency = uint8(100 - congestion)
		}
	}
	if v, ok := load(metrics.TypeValidatorUptime); ok {
		c.Consensus = clampScore(valueAsUint64(v.Value))
	}
	if v, ok := load(metrics.TypeNodeAvailability); ok {
		c.Availability = clampScore(valueAsUint64(v.Value))
	}
	return c
}

// freshness averages per-category age scores; categories with no recorded
// metric are excluded rather than penalized.
func (s *Service) freshness(ctx context.Context, now time.Time) uint8 {
	var sum, count uint64
	for _, metricType := range trackedCategories {
		v, err := s.metricStore.LoadMetric(ctx, metricType)
		if err != nil {
			continue
		}
		sum += uint64(FreshnessScore(v.Age(now)))
		count++
	}
	if count == 0 {
		return 0
	}
	return uint8(sum / count)
}

// trendDelta is the signed percentage-point difference between the current
// overall score and the overall score at the snapshot instant.
func (s *Service) trendDelta(ctx context.Context, current uint8, snapshotAt time.Time) int {
	past := Compute(s.componentScoresAsOf(ctx, snapshotAt))
	if past.Status == StatusUnknown {
		return 0
	}
	return utils.ClampTrend(int(current) - int(past.Overall))
}

// Report computes the full health report from current metrics, including
// freshness and daily/weekly/monthly trends against historical snapshots.
func (s *Service) Report(ctx context.Context) Score {
	now := s.now()
	score := Compute(s.componentScoresAsOf(ctx, now))
	score.Freshness = s.freshness(ctx, now)
	score.Trends = Trends{
		Daily:   s.trendDelta(ctx, score.Overall, now.Add(-24*time.Hour)),
		Weekly:  s.trendDelta(ctx, score.Overall, now.Add(-7*24*time.Hour)),
		Monthly: s.trendDelta(ctx, score.Overall, now.Add(-30*24*time.Hour)),
	}
	return score
}
