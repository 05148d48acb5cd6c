package types

// WSClientMessage represents a message from a WebSocket client.
type WSClientMessage struct {
	Action     string `json:"action"`      // "subscribe" or "unsubscribe"
	MetricType string `json:"metric_type"` // metric type to watch, or "*" for all
}

// WSServerMessage represents a message to a WebSocket client.
type WSServerMessage struct {
	Type    string      `json:"type"` // "metric.accepted", "subscribed", "unsubscribed", "error", "info"
	Payload interface{} `json:"payload"`
}
