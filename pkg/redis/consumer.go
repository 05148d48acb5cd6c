package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamConsumerConfig configures a StreamConsumer.
type StreamConsumerConfig struct {
	// Stream is the Redis stream to consume from (required).
	Stream string

	// Group is the consumer group name. Leave empty for a simple consumer.
	Group string

	// Consumer is the consumer name within the group. Required if Group is
	// set.
	Consumer string

	// LastID is the starting position: "0" for the beginning, "$" for only
	// new entries, or a concrete entry ID. Default: "0".
	LastID string

	// Count is the max entries per batch. Default: 100.
	Count int64

	// Block is how long to wait for new entries. Default: 5 seconds.
	Block time.Duration

	// AutoAck acknowledges messages after successful handling. Only applies
	// with consumer groups. Default: true.
	AutoAck bool

	// RetryInterval is the initial backoff after a read error. Default: 1s.
	RetryInterval time.Duration

	// MaxRetryInterval caps the exponential backoff. Default: 30s.
	MaxRetryInterval time.Duration

	// Logger for logging. If nil, uses a no-op logger.
	Logger *zap.Logger
}

// MessageHandler processes one stream message. Returning nil acknowledges
// it (with AutoAck); an error skips the ack so the entry is redelivered.
type MessageHandler func(ctx context.Context, msg Message) error

// Message is a single stream entry with parsed fields.
type Message struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// StreamConsumer tails a Redis stream with automatic reconnection and
// optional consumer-group delivery. It backs the websocket fanout and any
// downstream process that must not miss accepted metrics.
type StreamConsumer struct {
	client *Client
	config StreamConsumerConfig
	logger *zap.Logger
}

// NewStreamConsumer validates the config and applies defaults.
func NewStreamConsumer(client *Client, config StreamConsumerConfig) (*StreamConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Stream == "" {
		return nil, errors.New("stream name is required")
	}
	if config.Group != "" && config.Consumer == "" {
		return nil, errors.New("consumer name is required when using consumer groups")
	}

	if config.LastID == "" {
		config.LastID = "0"
	}
	if config.Count == 0 {
		config.Count = 100
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = 1 * time.Second
	}
	if config.MaxRetryInterval == 0 {
		config.MaxRetryInterval = 30 * time.Second
	}
	if config.Group != "" {
		config.AutoAck = true
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamConsumer{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Run consumes messages and calls handler for each one. Blocks until the
// context is cancelled; read errors back off exponentially and retry.
func (sc *StreamConsumer) Run(ctx context.Context, handler MessageHandler) error {
	if sc.config.Group != "" {
		if err := sc.client.XGroupCreateMkStream(ctx, sc.config.Stream, sc.config.Group, "0"); err != nil {
			return err
		}
		sc.logger.Info("Consumer group ready",
			zap.String("stream", sc.config.Stream),
			zap.String("group", sc.config.Group),
			zap.String("consumer", sc.config.Consumer))
	}

	lastID := sc.config.LastID
	retryInterval := sc.config.RetryInterval

	for {
		select {
		case <-ctx.Done():
			sc.logger.Info("Stream consumer shutting down",
				zap.String("stream", sc.config.Stream),
				zap.String("group", sc.config.Group))
			return ctx.Err()
		default:
		}

		messages, newLastID, err := sc.readMessages(ctx, lastID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				// Blocking read timed out with no entries.
				continue
			}

			sc.logger.Warn("Error reading from stream, will retry",
				zap.String("stream", sc.config.Stream),
				zap.Error(err),
				zap.Duration("retryIn", retryInterval))

			select {
			case <-time.After(retryInterval):
				retryInterval = min(retryInterval*2, sc.config.MaxRetryInterval)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		retryInterval = sc.config.RetryInterval

		// Simple consumers track their own position; groups use ">".
		if sc.config.Group == "" && newLastID != "" {
			lastID = newLastID
		}

		for _, msg := range messages {
			if err := sc.processMessage(ctx, handler, msg); err != nil {
				sc.logger.Error("Error processing message",
					zap.String("stream", sc.config.Stream),
					zap.String("id", msg.ID),
					zap.Error(err))
			}
		}
	}
}

func (sc *StreamConsumer) readMessages(ctx context.Context, lastID string) ([]Message, string, error) {
	var streams []redis.XStream
	var err error

	if sc.config.Group != "" {
		streams, err = sc.client.XReadGroup(ctx,
			sc.config.Group,
			sc.config.Consumer,
			[]string{sc.config.Stream},
			[]string{">"},
			sc.config.Count,
			sc.config.Block,
		)
	} else {
		streams, err = sc.client.XRead(ctx,
			[]string{sc.config.Stream},
			[]string{lastID},
			sc.config.Count,
			sc.config.Block,
		)
	}
	if err != nil {
		return nil, "", err
	}

	var messages []Message
	var newLastID string
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			messages = append(messages, Message{
				ID:     xmsg.ID,
				Stream: stream.Stream,
				Values: xmsg.Values,
			})
			newLastID = xmsg.ID
		}
	}
	return messages, newLastID, nil
}

func (sc *StreamConsumer) processMessage(ctx context.Context, handler MessageHandler, msg Message) error {
	if err := handler(ctx, msg); err != nil {
		return err
	}

	if sc.config.Group != "" && sc.config.AutoAck {
		if _, ackErr := sc.client.XAck(ctx, sc.config.Stream, sc.config.Group, msg.ID); ackErr != nil {
			sc.logger.Warn("Failed to acknowledge message",
				zap.String("stream", sc.config.Stream),
				zap.String("id", msg.ID),
				zap.Error(ackErr))
		}
	}
	return nil
}

// GetString extracts a string field from the entry, or "".
func (m *Message) GetString(field string) string {
	if v, ok := m.Values[field].(string); ok {
		return v
	}
	if v, ok := m.Values[field].([]byte); ok {
		return string(v)
	}
	return ""
}

// MetricType extracts the metric type of an accepted-metric entry.
func (m *Message) MetricType() string { return m.GetString("metric_type") }

// ProofID extracts the proof id of an accepted-metric entry.
func (m *Message) ProofID() string { return m.GetString("proof_id") }

// Timestamp extracts the submission timestamp, or 0.
func (m *Message) Timestamp() uint64 {
	return parseUint64(m.Values["timestamp"])
}

// QualityScore extracts the quality score, or 0.
func (m *Message) QualityScore() uint8 {
	v := parseUint64(m.Values["quality_score"])
	if v > 255 {
		return 0
	}
	return uint8(v)
}

// parseUint64 converts the types Redis hands back into a uint64.
func parseUint64(v interface{}) uint64 {
	switch val := v.(type) {
	case uint64:
		return val
	case int64:
		return uint64(val)
	case float64:
		return uint64(val)
	case int:
		return uint64(val)
	case string:
		// Redis returns numbers as strings.
		var result uint64
		for _, c := range val {
			if c < '0' || c > '9' {
				return 0
			}
			result = result*10 + uint64(c-'0')
		}
		return result
	}
	return 0
}
