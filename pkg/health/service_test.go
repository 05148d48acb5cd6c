package health

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/store"
)

func newTestService(t *testing.T, now time.Time) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	svc := NewService(st, zaptest.NewLogger(t))
	svc.now = func() time.Time { return now }
	return svc, st
}

func storeValue(t *testing.T, st *store.Memory, metricType string, value uint64, at time.Time) {
	t.Helper()
	require.NoError(t, st.StoreMetric(context.Background(), &metrics.Value{
		MetricType:   metricType,
		Value:        uint256.NewInt(value),
		Timestamp:    uint64(at.Unix()),
		ProofID:      "proof-" + metricType,
		QualityScore: 90,
		SourceNode:   "node-a",
	}))
}

func TestReportDerivesComponents(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, st := newTestService(t, now)

	storeValue(t, st, metrics.TypeBlockTime, 6000, now.Add(-time.Minute))         // on target: 100
	storeValue(t, st, metrics.TypeTransactionVolume, 8500, now.Add(-time.Minute)) // 8500/100 = 85
	storeValue(t, st, metrics.TypeNetworkCongestion, 12, now.Add(-time.Minute))   // 100-12 = 88
	storeValue(t, st, metrics.TypeValidatorUptime, 92, now.Add(-time.Minute))
	storeValue(t, st, metrics.TypeNodeAvailability, 96, now.Add(-time.Minute))

	score := svc.Report(context.Background())
	assert.Equal(t, ComponentScores{
		Connectivity: 100,
		Throughput:   85,
		Latency:      88,
		Consensus:    92,
		Availability: 96,
	}, score.Components)
	assert.Equal(t, uint8(100), score.Freshness)
	assert.Equal(t, StatusHealthy, score.Status)
}

func TestConnectivityScoreDeviation(t *testing.T) {
	tests := []struct {
		blockTimeMs uint64
		want        uint8
	}{
		{6000, 100},
		{6600, 90},  // 10% slow
		{5400, 90},  // 10% fast
		{9000, 50},  // 50% slow
		{12000, 0},  // twice the target
		{20000, 0},  // saturates at zero
		{0, 0},      // full deviation downward
		{3000, 50},  // half the target
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, connectivityScore(tc.blockTimeMs), "block time %dms", tc.blockTimeMs)
	}
}

func TestReportMissingCategoriesScoreZero(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, st := newTestService(t, now)

	storeValue(t, st, metrics.TypeBlockTime, 6000, now.Add(-time.Minute))

	score := svc.Report(context.Background())
	assert.Equal(t, uint8(100), score.Components.Connectivity)
	assert.Equal(t, uint8(0), score.Components.Throughput)
	assert.Equal(t, uint8(0), score.Components.Consensus)
	// Connectivity alone: 0.25 * 100 = 25.
	assert.Equal(t, uint8(25), score.Overall)
	assert.Equal(t, StatusCritical, score.Status)
}

func TestReportFreshnessExcludesMissingCategories(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, st := newTestService(t, now)

	storeValue(t, st, metrics.TypeBlockTime, 6000, now.Add(-time.Minute))     // 100
	storeValue(t, st, metrics.TypeValidatorUptime, 95, now.Add(-20*time.Minute)) // 60

	score := svc.Report(context.Background())
	// (100 + 60) / 2; the three absent categories are not averaged in.
	assert.Equal(t, uint8(80), score.Freshness)
}

func TestReportEmptyStore(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, _ := newTestService(t, now)

	score := svc.Report(context.Background())
	assert.Equal(t, uint8(0), score.Overall)
	assert.Equal(t, StatusCritical, score.Status)
	assert.Equal(t, uint8(0), score.Freshness)
	assert.Equal(t, Trends{}, score.Trends)
}

func TestReportTrends(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, st := newTestService(t, now)

	fill := func(uptime, availability uint64, at time.Time) {
		storeValue(t, st, metrics.TypeBlockTime, 6000, at)
		storeValue(t, st, metrics.TypeTransactionVolume, 10000, at)
		storeValue(t, st, metrics.TypeNetworkCongestion, 0, at)
		storeValue(t, st, metrics.TypeValidatorUptime, uptime, at)
		storeValue(t, st, metrics.TypeNodeAvailability, availability, at)
	}

	// A weaker snapshot two days ago, full marks now.
	fill(50, 50, now.Add(-48*time.Hour))
	fill(100, 100, now.Add(-time.Minute))

	score := svc.Report(context.Background())
	require.Equal(t, uint8(100), score.Overall)

	// Daily snapshot (24h ago) sees the old values: overall 82, so +18.
	assert.Equal(t, 18, score.Trends.Daily)
	// Weekly and monthly snapshots predate all data. Missing categories
	// score zero there, so the past overall is 0 and the delta is the
	// full current score.
	assert.Equal(t, 100, score.Trends.Weekly)
	assert.Equal(t, 100, score.Trends.Monthly)
}
