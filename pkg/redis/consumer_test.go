package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestNewStreamConsumerValidation(t *testing.T) {
	_, err := NewStreamConsumer(&Client{}, StreamConsumerConfig{})
	assert.Error(t, err, "stream name is required")

	sc, err := NewStreamConsumer(&Client{}, StreamConsumerConfig{
		Stream: AcceptedStream,
		Logger: zaptest.NewLogger(t),
	})
	assert.NoError(t, err)
	assert.NotNil(t, sc)
}

func TestMessageFieldHelpers(t *testing.T) {
	msg := Message{
		ID:     "1700000000-0",
		Stream: AcceptedStream,
		Values: map[string]interface{}{
			"metric_type":   "block_time",
			"value":         "6050",
			"timestamp":     "1700000000",
			"proof_id":      "proof-1",
			"quality_score": "90",
			"source_node":   []byte("node-a"),
		},
	}

	assert.Equal(t, "block_time", msg.MetricType())
	assert.Equal(t, "proof-1", msg.ProofID())
	assert.Equal(t, uint64(1700000000), msg.Timestamp())
	assert.Equal(t, uint8(90), msg.QualityScore())
	assert.Equal(t, "node-a", msg.GetString("source_node"))
	assert.Equal(t, "", msg.GetString("missing"))
}

func TestMessageQualityScoreOutOfRange(t *testing.T) {
	msg := Message{Values: map[string]interface{}{"quality_score": "300"}}
	assert.Equal(t, uint8(0), msg.QualityScore())
}

func TestParseUint64(t *testing.T) {
	tests := []struct {
		in   interface{}
		want uint64
	}{
		{uint64(42), 42},
		{int64(42), 42},
		{int(42), 42},
		{float64(42), 42},
		{"42", 42},
		{"0", 0},
		{"", 0},
		{"not-a-number", 0},
		{"12x", 0},
		{nil, 0},
		{true, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, parseUint64(tc.in), "input %v", tc.in)
	}
}

func TestChannelMetricAccepted(t *testing.T) {
	assert.Equal(t, "pulse:block_time:metric.accepted", ChannelMetricAccepted("block_time"))
}
