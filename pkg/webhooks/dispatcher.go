package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/campuscms/campuscms/pkg/async"
	"github.com/campuscms/campuscms/pkg/observability"
)

const (
	headerEvent     = "X-Campus-Event"
	headerSignature = "X-Campus-Signature"
	headerDelivery  = "X-Campus-Delivery"

	deliveryTimeout = 30 * time.Second
	maxAttempts     = 3
	initialBackoff  = 2 * time.Second
)

// Dispatcher fans content events out to matching subscriptions. Delivery
// happens off the request path on a worker pool; a slow or failing
// receiver never delays an editor.
type Dispatcher struct {
	store   *Store
	pool    *async.Pool
	client  *http.Client
	logger  *observability.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewDispatcher creates a dispatcher with workers delivery goroutines.
// Shut it down before the store's database handle closes.
func NewDispatcher(ctx context.Context, store *Store, workers int, logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		pool:    async.NewPool(ctx, workers, "webhook-delivery", deliveryTimeout, logger),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		backoff: initialBackoff,
		now:     time.Now,
	}
}

// ContentChanged queues deliveries for one content mutation. It returns
// immediately; failures surface only in logs.
func (d *Dispatcher) ContentChanged(ctx context.Context, contentType, operation string, contentID int64) {
	event := Event{
		Name:        contentType + "." + operation,
		ContentType: contentType,
		Operation:   operation,
		ContentID:   contentID,
		OccurredAt:  d.now().UTC(),
	}

	err := d.pool.Submit(func(ctx context.Context) error {
		return d.dispatch(ctx, event)
	})
	if err != nil {
		d.logger.WithError(err).WithField("event", event.Name).Warn("webhook event dropped")
	}
}

// Shutdown drains in-flight deliveries
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	return d.pool.Shutdown(timeout)
}

func (d *Dispatcher) dispatch(ctx context.Context, event Event) error {
	subs, err := d.store.ListActiveForEvent(ctx, event.Name)
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	for _, sub := range subs {
		if err := d.deliver(ctx, &sub, event.Name, body); err != nil {
			d.logger.WithError(err).WithFields(map[string]interface{}{
				"subscription": sub.Name,
				"event":        event.Name,
			}).Warn("webhook delivery failed")
		}
	}
	return nil
}

// deliver POSTs the payload, retrying transient failures with a doubling
// backoff. A 4xx response is the receiver rejecting the payload and is
// not retried.
func (d *Dispatcher) deliver(ctx context.Context, sub *Subscription, event string, body []byte) error {
	deliveryID := uuid.NewString()

	var lastErr error
	backoff := d.backoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		retry, err := d.send(ctx, sub, event, deliveryID, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxAttempts, lastErr)
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event, deliveryID string, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerDelivery, deliveryID)
	if sub.Secret != "" {
		req.Header.Set(headerSignature, Sign(sub.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf("receiver rejected delivery with status %d", resp.StatusCode)
	default:
		return true, fmt.Errorf("receiver returned status %d", resp.StatusCode)
	}
}
