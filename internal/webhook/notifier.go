// Package webhook handles asynchronous notifications to registered webhook URLs
// when a high-risk transaction is detected.
//
// Notifications are sent in a goroutine so they never block the stream or the
// HTTP response. Failed deliveries are logged and counted but not retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/metrics"
	"sentinelpay/monitor/internal/store"
)

// EventHighRisk is the event name carried by every payload.
const EventHighRisk = "high_risk_transaction"

// Notifier sends webhook payloads to all registered, active endpoints.
type Notifier struct {
	hooks  *store.Webhooks
	client *http.Client
	wg     sync.WaitGroup
}

// New creates a Notifier with a sensible default HTTP client timeout.
func New(hooks *store.Webhooks) *Notifier {
	return &Notifier{
		hooks: hooks,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// NotifyAsync fires webhook calls in the background for the given transaction.
// It checks every active webhook and triggers those whose threshold is met.
func (n *Notifier) NotifyAsync(tx *domain.AnalyzedTransaction) {
	for _, wh := range n.hooks.ListActive() {
		if tx.RiskScore >= wh.Threshold {
			n.wg.Add(1)
			go func(wh *domain.WebhookConfig) {
				defer n.wg.Done()
				n.send(wh, tx)
			}(wh)
		}
	}
}

// Wait blocks until every in-flight delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// send delivers a single webhook call and logs the outcome.
func (n *Notifier) send(wh *domain.WebhookConfig, tx *domain.AnalyzedTransaction) {
	payload := domain.WebhookPayload{
		Event:       EventHighRisk,
		TriggeredAt: time.Now().UTC(),
		Transaction: *tx,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("webhook: failed to marshal payload", "webhook_id", wh.ID, "error", err)
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		slog.Error("webhook: failed to build request", "webhook_id", wh.ID, "error", err)
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SentinelPay-Event", EventHighRisk)

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("webhook: delivery failed", "webhook_id", wh.ID, "url", wh.URL, "error", err)
		metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		return
	}
	defer resp.Body.Close()

	result := "delivered"
	if resp.StatusCode >= 300 {
		result = "rejected"
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(result).Inc()

	slog.Info("webhook: "+result,
		"webhook_id", wh.ID,
		"url", wh.URL,
		"status", resp.StatusCode,
		"transaction_id", tx.ID,
		"risk_score", tx.RiskScore,
	)
}
