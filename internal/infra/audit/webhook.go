// Package audit delivers audit events to an external webhook on a
// best-effort basis. Delivery is asynchronous behind a bounded queue;
// a saturated queue or a failed POST drops the event and counts it,
// never failing the operation that produced it.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/infra/observability"
	"github.com/rentfolio/ledger-core/internal/infra/resilience"
)

var tracer = otel.Tracer("audit")

// deliveryTimeout bounds a single event delivery including retries.
const deliveryTimeout = 15 * time.Second

// WebhookSink posts audit events as JSON to a configured endpoint.
type WebhookSink struct {
	httpClient *http.Client
	url        string
	secret     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
	metrics    *observability.Metrics

	queue chan domain.AuditEvent
	done  chan struct{}
}

// NewWebhookSink creates the sink and starts its delivery worker.
func NewWebhookSink(httpClient *http.Client, url, secret string, cfg resilience.Config, logger *zap.Logger, metrics *observability.Metrics) *WebhookSink {
	s := &WebhookSink{
		httpClient: httpClient,
		url:        url,
		secret:     secret,
		cb:         resilience.NewCircuitBreaker("audit-webhook"),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		queue:      make(chan domain.AuditEvent, 256),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues an event without blocking. A full queue drops the event.
func (s *WebhookSink) Record(ctx context.Context, event domain.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case s.queue <- event:
	default:
		s.metrics.IncrAuditDelivery("dropped")
		s.logger.Warn("audit: queue full, event dropped",
			zap.String("action", event.Action),
			zap.String("entity_id", event.EntityID),
		)
	}
}

// Close stops accepting events and waits for the worker to drain the queue.
func (s *WebhookSink) Close() {
	close(s.queue)
	<-s.done
}

func (s *WebhookSink) run() {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := s.deliver(ctx, event); err != nil {
			s.metrics.IncrAuditDelivery("failure")
			s.logger.Warn("audit: delivery failed",
				zap.String("action", event.Action),
				zap.String("entity_id", event.EntityID),
				zap.Error(err),
			)
		} else {
			s.metrics.IncrAuditDelivery("success")
		}
		cancel()
	}
}

func (s *WebhookSink) deliver(ctx context.Context, event domain.AuditEvent) error {
	ctx, span := tracer.Start(ctx, "Audit.Deliver")
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	_, err = s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if s.secret != "" {
				req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.secret))
			}

			resp, err := s.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
			}
			return nil
		})
	})
	return err
}

// NopSink discards all events. Wired when no webhook URL is configured.
type NopSink struct{}

// Record implements port.AuditTrail.
func (NopSink) Record(context.Context, domain.AuditEvent) {}
