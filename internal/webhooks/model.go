package webhooks

import (
	"time"
)

// EventPACPublished is sent when a new PAC file becomes the latest one.
const EventPACPublished = "pac.published"

// SignatureHeader carries the HMAC-SHA256 of the request body when a
// secret is configured.
const SignatureHeader = "X-QPAC-Signature"

// Event is the JSON body POSTed to every target.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Config lists the webhook targets.
type Config struct {
	URLs   []string
	Secret string // optional HMAC key; deliveries are unsigned when empty

	// Timeout bounds each delivery attempt. Defaults to 10s.
	Timeout time.Duration

	// Backoff holds the wait before each retry; its length is the number of
	// retries. Defaults to 1s, 5s, 25s.
	Backoff []time.Duration
}
