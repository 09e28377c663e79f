// Package webhooks tells external listeners when a new PAC file is
// published, e.g. to purge a CDN or prompt clients to reload.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/qpac/internal/pac"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "qpac_webhook_deliveries_total",
	Help: "Webhook delivery attempts by result.",
}, []string{"result"})

// Notifier fans PAC publications out to the configured URLs.
type Notifier struct {
	ctx        context.Context
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.Mutex
	lastHash string
	inflight sync.WaitGroup
}

// NewNotifier creates a Notifier. Pending deliveries and retries are
// abandoned once ctx is done.
func NewNotifier(ctx context.Context, cfg Config, logger *zap.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second}
	}
	return &Notifier{
		ctx:        ctx,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Published dispatches EventPACPublished for a. Repeated calls with the
// hash that was last dispatched are ignored, so passes that regenerate an
// identical file stay silent. It never blocks on delivery.
func (n *Notifier) Published(a pac.Artifact) {
	n.mu.Lock()
	if a.Hash == n.lastHash {
		n.mu.Unlock()
		return
	}
	n.lastHash = a.Hash
	n.mu.Unlock()

	n.Dispatch(EventPACPublished, map[string]string{
		"hash": a.Hash,
		"path": "/" + a.Hash,
	})
}

// Dispatch sends one event to every target concurrently.
func (n *Notifier) Dispatch(eventType string, payload map[string]string) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	id := uuid.NewString()
	for _, url := range n.cfg.URLs {
		n.inflight.Add(1)
		go func(url string) {
			defer n.inflight.Done()
			n.deliver(url, id, body)
		}(url)
	}
}

// Wait blocks until every dispatched delivery has finished or given up.
func (n *Notifier) Wait() {
	n.inflight.Wait()
}

// deliver POSTs body to url, retrying per cfg.Backoff.
func (n *Notifier) deliver(url, id string, body []byte) {
	attempts := len(n.cfg.Backoff) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(n.cfg.Backoff[attempt-2]):
			case <-n.ctx.Done():
				return
			}
		}

		err := n.doDelivery(url, id, body)
		if err == nil {
			deliveriesTotal.WithLabelValues("success").Inc()
			n.logger.Debug("webhook delivered", zap.String("url", url), zap.Int("attempt", attempt))
			return
		}
		deliveriesTotal.WithLabelValues("failure").Inc()
		n.logger.Warn("webhook: delivery failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if n.ctx.Err() != nil {
			return
		}
	}
}

// doDelivery performs a single HTTP POST.
func (n *Notifier) doDelivery(url, id string, body []byte) error {
	req, err := http.NewRequestWithContext(n.ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-QPAC-Delivery", id)
	if n.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, n.cfg.Secret))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the SignatureHeader value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
