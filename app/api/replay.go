package api

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/redis"
	"github.com/polyvisor/pulse/pkg/store"
)

// startAcceptedTail replays the durable accepted-metric stream into the
// store and keeps tailing it. With the in-memory store this restores metric
// history across restarts and keeps multiple API replicas consistent.
// Events this process produced itself are skipped via the proof id.
func startAcceptedTail(ctx context.Context, client *redis.Client, st store.MetricStore, logger *zap.Logger) error {
	consumer, err := redis.NewStreamConsumer(client, redis.StreamConsumerConfig{
		Stream: redis.AcceptedStream,
		LastID: "0",
		Logger: logger.Named("accepted-tail"),
	})
	if err != nil {
		return err
	}

	go func() {
		err := consumer.Run(ctx, func(ctx context.Context, msg redis.Message) error {
			metricType := msg.MetricType()
			proofID := msg.ProofID()
			if metricType == "" || proofID == "" {
				return nil // malformed entry, drop
			}

			// Already applied, either by a previous replay or by this
			// process accepting the submission directly.
			if current, loadErr := st.LoadMetric(ctx, metricType); loadErr == nil && current.ProofID == proofID {
				return nil
			}

			value, parseErr := uint256.FromDecimal(msg.GetString("value"))
			if parseErr != nil {
				logger.Warn("Unparseable value in accepted stream",
					zap.String("metric_type", metricType),
					zap.String("proof_id", proofID),
					zap.Error(parseErr))
				return nil
			}

			return st.StoreMetric(ctx, &metrics.Value{
				MetricType:   metricType,
				Value:        value,
				Timestamp:    msg.Timestamp(),
				ProofID:      proofID,
				QualityScore: msg.QualityScore(),
				SourceNode:   msg.GetString("source_node"),
			})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Accepted-metric tail stopped", zap.Error(err))
		}
	}()

	return nil
}
