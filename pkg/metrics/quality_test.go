package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polyvisor/pulse/pkg/metrics"
)

func TestComputeQualityScore(t *testing.T) {
	tests := []struct {
		name                              string
		freshness, reliability, consensus uint8
		want                              uint8
	}{
		{"all perfect", 100, 100, 100, 100},
		{"all zero", 0, 0, 0, 0},
		{"mixed", 80, 90, 70, 81}, // 24 + 36 + 21
		{"reliability dominates", 0, 100, 0, 40},
		{"freshness only", 100, 0, 0, 30},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := metrics.ComputeQualityScore(tc.freshness, tc.reliability, tc.consensus)
			assert.Equal(t, tc.want, got)
		})
	}
}
