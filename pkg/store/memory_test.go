package store

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/reputation"
	"github.com/polyvisor/pulse/pkg/zk"
)

func metricValue(metricType string, value, timestamp uint64) *metrics.Value {
	return &metrics.Value{
		MetricType:   metricType,
		Value:        uint256.NewInt(value),
		Timestamp:    timestamp,
		ProofID:      "proof-1",
		QualityScore: 90,
		SourceNode:   "node-a",
	}
}

func TestLoadMetricReturnsLatest(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeBlockTime, 6000, 1000)))
	require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeBlockTime, 6100, 2000)))
	// Out-of-order write lands in its timestamp slot, not at the head.
	require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeBlockTime, 5900, 1500)))

	latest, err := m.LoadMetric(ctx, metrics.TypeBlockTime)
	require.NoError(t, err)
	assert.Equal(t, uint64(6100), latest.Value.Uint64())
}

func TestLoadMetricUnknownType(t *testing.T) {
	m := NewMemory()
	_, err := m.LoadMetric(context.Background(), metrics.TypeBlockTime)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMetricAsOf(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeBlockTime, 6000, 1000)))
	require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeBlockTime, 6100, 2000)))
	require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeBlockTime, 6200, 3000)))

	tests := []struct {
		asOf uint64
		want uint64
	}{
		{1000, 6000}, // cutoff is inclusive
		{1500, 6000},
		{2000, 6100},
		{2999, 6100},
		{5000, 6200},
	}
	for _, tc := range tests {
		v, err := m.LoadMetricAsOf(ctx, metrics.TypeBlockTime, time.Unix(int64(tc.asOf), 0))
		require.NoError(t, err, "asOf %d", tc.asOf)
		assert.Equal(t, tc.want, v.Value.Uint64(), "asOf %d", tc.asOf)
	}

	_, err := m.LoadMetricAsOf(ctx, metrics.TypeBlockTime, time.Unix(999, 0))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetricTypesSorted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeValidatorUptime, 99, 1000)))
	require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeBlockTime, 6000, 1000)))

	types, err := m.MetricTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{metrics.TypeBlockTime, metrics.TypeValidatorUptime}, types)
}

func TestHistoryBounded(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := range maxHistoryPerMetric + 10 {
		require.NoError(t, m.StoreMetric(ctx, metricValue(metrics.TypeBlockTime, uint64(i), uint64(i))))
	}

	hist, ok := m.metricsByType.Load(metrics.TypeBlockTime)
	require.True(t, ok)
	assert.Len(t, hist.values, maxHistoryPerMetric)

	// The oldest entries were trimmed, the newest survives.
	latest, err := m.LoadMetric(ctx, metrics.TypeBlockTime)
	require.NoError(t, err)
	assert.Equal(t, uint64(maxHistoryPerMetric+9), latest.Value.Uint64())
}

func TestProofRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	proof := &zk.Proof{CircuitID: 1, ProofData: []byte{0x01, 0x02}, Algorithm: "mock-blake2b"}
	require.NoError(t, m.StoreProof(ctx, "proof-1", proof))

	got, err := m.LoadProof(ctx, "proof-1")
	require.NoError(t, err)
	assert.Equal(t, proof, got)

	_, err = m.LoadProof(ctx, "proof-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContributorRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	record := &reputation.Record{Address: "node-a", TotalContributions: 3, AverageQuality: 90, ReputationScore: 270}
	require.NoError(t, m.StoreContributor(ctx, record))

	got, err := m.LoadContributor(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, record, got)

	_, err = m.LoadContributor(ctx, "node-b")
	assert.ErrorIs(t, err, ErrNotFound)
}
