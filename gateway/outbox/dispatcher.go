package outbox

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"meritledger/observability/metrics"
)

// Destination is one webhook receiver. Payloads are signed with the shared
// secret so the receiver can verify origin.
type Destination struct {
	Name   string
	URL    string
	Secret string
}

// Dispatcher drains the outbox towards every destination.
type Dispatcher struct {
	outbox       *Outbox
	destinations []Destination
	client       *http.Client
	logger       *slog.Logger
	interval     time.Duration
	maxAttempts  int
}

// NewDispatcher wires a dispatcher over the outbox.
func NewDispatcher(ob *Outbox, destinations []Destination, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		outbox:       ob,
		destinations: destinations,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		interval:     5 * time.Second,
		maxAttempts:  10,
	}
}

// Run drains the outbox until the context is cancelled. Safe to run in its
// own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	if len(d.destinations) == 0 {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	entries, err := d.outbox.Pending(64)
	if err != nil {
		d.logger.Error("outbox: listing pending entries failed", "err", err)
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if d.deliver(ctx, entry) {
			if err := d.outbox.MarkDelivered(entry.Sequence); err != nil {
				d.logger.Error("outbox: marking delivery failed", "sequence", entry.Sequence, "err", err)
			}
			continue
		}
		dropped, err := d.outbox.RecordAttempt(entry.Sequence, d.maxAttempts)
		if err != nil {
			d.logger.Error("outbox: recording attempt failed", "sequence", entry.Sequence, "err", err)
			continue
		}
		if dropped {
			d.logger.Warn("outbox: entry dropped after retry cap",
				"sequence", entry.Sequence, "type", entry.Type)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, entry Entry) bool {
	payload, err := json.Marshal(map[string]any{
		"sequence":   entry.Sequence,
		"type":       entry.Type,
		"attributes": entry.Attributes,
		"enqueuedAt": entry.EnqueuedAt,
	})
	if err != nil {
		d.logger.Error("outbox: encoding payload failed", "sequence", entry.Sequence, "err", err)
		return false
	}
	delivered := true
	for _, destination := range d.destinations {
		if err := d.post(ctx, destination, payload); err != nil {
			d.logger.Warn("outbox: delivery failed",
				"destination", destination.Name, "sequence", entry.Sequence, "err", err)
			metrics.Ledger().ObserveWebhookRetry(destination.Name)
			delivered = false
		}
	}
	return delivered
}

func (d *Dispatcher) post(ctx context.Context, destination Destination, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if destination.Secret != "" {
		mac := hmac.New(sha256.New, []byte(destination.Secret))
		mac.Write(payload)
		req.Header.Set("X-Meritledger-Signature", hex.EncodeToString(mac.Sum(nil)))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("destination returned status %d", resp.StatusCode)
	}
	return nil
}
