package metrics_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyvisor/pulse/pkg/metrics"
)

func validSubmission() *metrics.Submission {
	return &metrics.Submission{
		MetricType: metrics.TypeBlockTime,
		PrivateData: []*uint256.Int{
			uint256.NewInt(6000),
			uint256.NewInt(6100),
		},
		DataSources: []metrics.DataSource{
			{SourceType: metrics.SourceValidatorNode, SourceID: "val-1", Timestamp: 1700000000, ReliabilityScore: 95},
			{SourceType: metrics.SourceFullNode, SourceID: "full-1", Timestamp: 1700000000, ReliabilityScore: 90},
		},
		PublicMetric:    uint256.NewInt(6050),
		QualityScore:    90,
		TimeWindowHours: 1,
		Contributor:     "node-a",
	}
}

func TestValidateAcceptsWellFormedSubmission(t *testing.T) {
	require.NoError(t, metrics.Validate(validSubmission()))
}

func TestValidateQualityScoreBoundary(t *testing.T) {
	s := validSubmission()
	s.QualityScore = 100
	assert.NoError(t, metrics.Validate(s))

	s.QualityScore = 101
	err := metrics.Validate(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, metrics.ErrInvalidSubmission)
}

func TestValidateTimeWindowBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		window  uint8
		wantErr bool
	}{
		{"zero window", 0, true},
		{"minimum window", 1, false},
		{"maximum window", 24, false},
		{"over maximum", 25, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			s.TimeWindowHours = tt.window
			err := metrics.Validate(s)
			if tt.wantErr {
				assert.ErrorIs(t, err, metrics.ErrInvalidSubmission)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRejectsEmptyPrivateData(t *testing.T) {
	s := validSubmission()
	s.PrivateData = nil
	assert.ErrorIs(t, metrics.Validate(s), metrics.ErrInvalidSubmission)
}

func TestValidateRequiresTwoSources(t *testing.T) {
	s := validSubmission()
	s.DataSources = s.DataSources[:1]
	assert.ErrorIs(t, metrics.Validate(s), metrics.ErrInvalidSubmission)
}

func TestValidateRejectsBadSourceReliability(t *testing.T) {
	s := validSubmission()
	s.DataSources[1].ReliabilityScore = 101
	assert.ErrorIs(t, metrics.Validate(s), metrics.ErrInvalidSubmission)
}

func TestValidateRejectsMissingPublicMetric(t *testing.T) {
	s := validSubmission()
	s.PublicMetric = nil
	assert.ErrorIs(t, metrics.Validate(s), metrics.ErrInvalidSubmission)
}
