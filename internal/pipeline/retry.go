package pipeline

import "time"

// RetryConfig governs both the send and ack-wait pipelines.
type RetryConfig struct {
	SendRetries int
	AckTimeout  time.Duration
	AckRetries  int
}

// DefaultRetryConfig mirrors the teacher's connect/ping timeout
// magnitudes (client/transport.go's heartbeat constants), scaled to the
// message-ack use case.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{SendRetries: 3, AckTimeout: 5 * time.Second, AckRetries: 2}
}
