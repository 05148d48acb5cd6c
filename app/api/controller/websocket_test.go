package controller

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apptypes "github.com/polyvisor/pulse/app/api/types"
)

func TestCalculateNextBackoff(t *testing.T) {
	tests := []struct {
		name         string
		current      time.Duration
		max          time.Duration
		factor       float64
		jitterFactor float64
		expectMin    time.Duration
		expectMax    time.Duration
	}{
		{
			name:         "initial backoff doubles",
			current:      1 * time.Second,
			max:          30 * time.Second,
			factor:       2.0,
			jitterFactor: 0.1,
			expectMin:    1800 * time.Millisecond, // 2s - 10% jitter
			expectMax:    2200 * time.Millisecond, // 2s + 10% jitter
		},
		{
			name:         "respects maximum",
			current:      20 * time.Second,
			max:          30 * time.Second,
			factor:       2.0,
			jitterFactor: 0.1,
			expectMin:    27 * time.Second, // 30s - 10% jitter
			expectMax:    30 * time.Second, // capped at max
		},
		{
			name:         "no jitter produces exact value",
			current:      5 * time.Second,
			max:          30 * time.Second,
			factor:       2.0,
			jitterFactor: 0.0,
			expectMin:    10 * time.Second,
			expectMax:    10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Run multiple times to account for randomness in jitter
			for i := 0; i < 10; i++ {
				result := CalculateNextBackoff(tt.current, tt.max, tt.factor, tt.jitterFactor)
				assert.GreaterOrEqual(t, result, tt.expectMin, "backoff should be >= minimum")
				assert.LessOrEqual(t, result, tt.expectMax, "backoff should be <= maximum")
			}
		})
	}
}

func TestExtractMetricTypeFromChannel(t *testing.T) {
	tests := []struct {
		name     string
		channel  string
		expected string
	}{
		{
			name:     "valid channel format",
			channel:  "pulse:block_time:metric.accepted",
			expected: "block_time",
		},
		{
			name:     "invalid format - too few parts",
			channel:  "pulse:metric.accepted",
			expected: "",
		},
		{
			name:     "invalid format - too many parts",
			channel:  "pulse:block_time:extra:metric.accepted",
			expected: "",
		},
		{
			name:     "empty channel",
			channel:  "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractMetricTypeFromChannel(tt.channel))
		})
	}
}

func TestClientSubscriptions(t *testing.T) {
	t.Run("subscribe and check", func(t *testing.T) {
		subs := NewClientSubscriptions()

		subs.Subscribe("block_time")
		assert.True(t, subs.IsSubscribed("block_time"))
		assert.False(t, subs.IsSubscribed("validator_uptime"))
	})

	t.Run("wildcard subscription", func(t *testing.T) {
		subs := NewClientSubscriptions()

		subs.Subscribe("*")
		assert.True(t, subs.IsSubscribed("*"))
		assert.True(t, subs.IsSubscribed("block_time"))
		assert.True(t, subs.IsSubscribed("network_congestion"))
	})

	t.Run("unsubscribe", func(t *testing.T) {
		subs := NewClientSubscriptions()

		subs.Subscribe("block_time")
		assert.True(t, subs.IsSubscribed("block_time"))

		subs.Unsubscribe("block_time")
		assert.False(t, subs.IsSubscribed("block_time"))
	})

	t.Run("concurrent access", func(t *testing.T) {
		subs := NewClientSubscriptions()
		done := make(chan bool)

		go func() {
			for i := 0; i < 100; i++ {
				subs.Subscribe("block_time")
			}
			done <- true
		}()

		go func() {
			for i := 0; i < 100; i++ {
				subs.Unsubscribe("block_time")
			}
			done <- true
		}()

		go func() {
			for i := 0; i < 100; i++ {
				_ = subs.IsSubscribed("block_time")
			}
			done <- true
		}()

		<-done
		<-done
		<-done
	})
}

func TestHandleWebSocketWithoutRedis(t *testing.T) {
	c := &Controller{App: &apptypes.App{}}

	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	rec := httptest.NewRecorder()
	c.HandleWebSocket(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
