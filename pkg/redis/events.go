package redis

import (
	"context"
	"fmt"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/metrics"
)

// AcceptedStream is the durable feed of every accepted metric, across all
// metric types.
const AcceptedStream = "pulse:metrics:accepted"

// MetricAcceptedPattern matches the per-type Pub/Sub channels.
const MetricAcceptedPattern = "pulse:*:metric.accepted"

// ChannelMetricAccepted names the Pub/Sub channel for one metric type.
func ChannelMetricAccepted(metricType string) string {
	return fmt.Sprintf("pulse:%s:metric.accepted", metricType)
}

// MetricAcceptedEvent is the wire form of an accepted-metric notification.
type MetricAcceptedEvent struct {
	MetricType   string `json:"metric_type"`
	Value        string `json:"value"`
	Timestamp    uint64 `json:"timestamp"`
	ProofID      string `json:"proof_id"`
	QualityScore uint8  `json:"quality_score"`
	SourceNode   string `json:"source_node"`
}

// EventFromValue builds the wire event for an accepted metric. The value is
// rendered in decimal so consumers need no 128-bit integer support.
func EventFromValue(v *metrics.Value) MetricAcceptedEvent {
	return MetricAcceptedEvent{
		MetricType:   v.MetricType,
		Value:        v.Value.Dec(),
		Timestamp:    v.Timestamp,
		ProofID:      v.ProofID,
		QualityScore: v.QualityScore,
		SourceNode:   v.SourceNode,
	}
}

// PublishMetricAccepted fans an accepted metric out to the per-type Pub/Sub
// channel and appends it to the durable stream. Both paths are best-effort.
func (c *Client) PublishMetricAccepted(ctx context.Context, v *metrics.Value) {
	event := EventFromValue(v)
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Warn("Failed to encode metric event",
			zap.String("metric_type", v.MetricType),
			zap.Error(err))
		return
	}

	c.Publish(ctx, ChannelMetricAccepted(v.MetricType), payload)
	c.XAdd(ctx, AcceptedStream, map[string]interface{}{
		"metric_type":   event.MetricType,
		"value":         event.Value,
		"timestamp":     event.Timestamp,
		"proof_id":      event.ProofID,
		"quality_score": event.QualityScore,
		"source_node":   event.SourceNode,
	})
}
