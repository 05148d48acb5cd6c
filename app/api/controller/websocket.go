package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/app/api/controller/types"
	pulseredis "github.com/polyvisor/pulse/pkg/redis"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to specific origins in production
		return true
	},
}

// clientSubscriptions tracks which metric types a client is watching.
type clientSubscriptions struct {
	mu    sync.RWMutex
	types map[string]bool
}

// NewClientSubscriptions creates a new clientSubscriptions tracker.
// Exported for testing.
func NewClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{
		types: make(map[string]bool),
	}
}

// Subscribe adds a metric type to the subscription list.
func (cs *clientSubscriptions) Subscribe(metricType string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.types[metricType] = true
}

// Unsubscribe removes a metric type from the subscription list.
func (cs *clientSubscriptions) Unsubscribe(metricType string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.types, metricType)
}

// IsSubscribed checks a metric type; wildcard (*) matches everything.
func (cs *clientSubscriptions) IsSubscribed(metricType string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.types["*"] {
		return true
	}
	return cs.types[metricType]
}

// HandleWebSocket upgrades the connection and streams accepted-metric
// events.
//
// Protocol:
// Client sends: {"action": "subscribe", "metric_type": "block_time"}
// Client sends: {"action": "subscribe", "metric_type": "*"}
// Client sends: {"action": "unsubscribe", "metric_type": "block_time"}
//
// Server sends:
// - {"type": "metric.accepted", "payload": {...}}
// - {"type": "subscribed"/"unsubscribed", "payload": {"metric_type": "..."}}
// - {"type": "error"/"info", "payload": {"message": "..."}}
//
// All goroutines have panic recovery to prevent crashes.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Error("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := NewClientSubscriptions()
	send := make(chan types.WSServerMessage, 256)
	var wg sync.WaitGroup

	recovered := func(name string) {
		if rec := recover(); rec != nil {
			c.App.Logger.Error("Panic in websocket goroutine",
				zap.String("goroutine", name),
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())),
				zap.String("remote_addr", r.RemoteAddr))
			cancel()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recovered("redis-subscriber")
		c.subscribeToRedis(ctx, send, subs)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recovered("ping-ticker")
		c.sendPings(ctx, conn)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recovered("message-writer")
		c.writeMessages(conn, send)
	}()

	// Blocks until the connection closes.
	c.readClientMessages(ctx, conn, cancel, subs, send)

	close(send)
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis watches the accepted-metric pattern and forwards events
// matching the client's subscriptions. Reconnects with exponential backoff
// when Redis drops.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- types.WSServerMessage, subs *clientSubscriptions) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	attemptNum := 0

	for {
		select {
		case <-ctx.Done():
			c.App.Logger.Info("Redis subscription cancelled")
			return
		default:
		}

		attemptNum++
		subscriptionErr := c.attemptRedisSubscription(ctx, send, subs, attemptNum)
		if ctx.Err() != nil {
			c.App.Logger.Info("Redis subscription cancelled")
			return
		}

		if subscriptionErr != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(subscriptionErr),
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		} else {
			c.App.Logger.Warn("Redis subscription channel closed, will retry",
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		}

		select {
		case send <- types.WSServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attemptNum,
				"recoverable": true,
			},
		}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			c.App.Logger.Info("Redis subscription cancelled during backoff")
			return
		}

		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

// attemptRedisSubscription runs a single subscription until it fails or the
// context is cancelled.
func (c *Controller) attemptRedisSubscription(ctx context.Context, send chan<- types.WSServerMessage, subs *clientSubscriptions, attemptNum int) error {
	pattern := pulseredis.MetricAcceptedPattern

	c.App.Logger.Info("Attempting Redis subscription",
		zap.String("pattern", pattern),
		zap.Int("attempt", attemptNum))

	pubsub := c.App.RedisClient.PSubscribe(ctx, pattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Error("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	c.App.Logger.Info("Successfully subscribed to Redis pattern",
		zap.String("pattern", pattern),
		zap.Int("attempt", attemptNum))

	select {
	case send <- types.WSServerMessage{
		Type: "info",
		Payload: map[string]interface{}{
			"message": "Redis connection established",
			"attempt": attemptNum,
		},
	}:
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.processRedisMessages(ctx, pubsub, send, subs)
}

// processRedisMessages forwards matching events until the channel closes.
func (c *Controller) processRedisMessages(ctx context.Context, pubsub *goredis.PubSub, send chan<- types.WSServerMessage, subs *clientSubscriptions) error {
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				// Channel closed: the normal Redis disconnection case.
				return nil
			}

			metricType := ExtractMetricTypeFromChannel(msg.Channel)
			if metricType == "" {
				c.App.Logger.Warn("Failed to extract metric type from channel",
					zap.String("channel", msg.Channel))
				continue
			}

			// Server-side filtering: only forward if the client watches it.
			if !subs.IsSubscribed(metricType) {
				continue
			}

			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse Redis message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			select {
			case send <- types.WSServerMessage{Type: "metric.accepted", Payload: payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// CalculateNextBackoff grows the backoff exponentially with jitter so
// reconnecting clients spread out. Exported for testing.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}
	return nextWithJitter
}

// ExtractMetricTypeFromChannel parses "pulse:<metric_type>:metric.accepted".
// Exported for testing.
func ExtractMetricTypeFromChannel(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// sendPings keeps the connection alive; pong replies reset the read
// deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages drains the send channel into the connection.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan types.WSServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

// readClientMessages handles subscription requests and detects closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- types.WSServerMessage) {
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg types.WSClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.App.Logger.Error("WebSocket read error", zap.Error(err))
				}
				cancel()
				return
			}

			if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
				c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
				return
			}

			switch msg.Action {
			case "subscribe":
				if msg.MetricType == "" {
					send <- types.WSServerMessage{Type: "error", Payload: map[string]string{"message": "metric_type is required"}}
					continue
				}
				subs.Subscribe(msg.MetricType)
				c.App.Logger.Debug("Client subscribed", zap.String("metric_type", msg.MetricType))
				send <- types.WSServerMessage{Type: "subscribed", Payload: map[string]string{"metric_type": msg.MetricType}}

			case "unsubscribe":
				if msg.MetricType == "" {
					send <- types.WSServerMessage{Type: "error", Payload: map[string]string{"message": "metric_type is required"}}
					continue
				}
				subs.Unsubscribe(msg.MetricType)
				c.App.Logger.Debug("Client unsubscribed", zap.String("metric_type", msg.MetricType))
				send <- types.WSServerMessage{Type: "unsubscribed", Payload: map[string]string{"metric_type": msg.MetricType}}

			default:
				send <- types.WSServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
			}
		}
	}
}
