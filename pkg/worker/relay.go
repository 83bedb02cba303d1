package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/healtheasy/booking-engine/internal/model"
	"github.com/healtheasy/booking-engine/internal/store"
	"github.com/healtheasy/booking-engine/pkg/logger"
	"github.com/healtheasy/booking-engine/pkg/messaging"
	"github.com/healtheasy/booking-engine/pkg/metrics"
)

type RelayConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	PublishRate   rate.Limit
	PublishBurst  int
}

// Relay drains pending outbox events to the broker. The outbox is an
// ordinary store collection, so the relay works unchanged against either
// store implementation.
type Relay struct {
	store   store.Store
	broker  messaging.Broker
	config  RelayConfig
	limiter *rate.Limiter
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRelay(st store.Store, broker messaging.Broker, config RelayConfig, log *logger.Logger, m *metrics.Metrics) *Relay {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.PublishRate <= 0 {
		config.PublishRate = rate.Inf
	}
	if config.PublishBurst <= 0 {
		config.PublishBurst = 1
	}

	return &Relay{
		store:   st,
		broker:  broker,
		config:  config,
		limiter: rate.NewLimiter(config.PublishRate, config.PublishBurst),
		logger:  log,
		metrics: m,
	}
}

func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.logger.Info("starting outbox relay")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down outbox relay")
			return
		case <-ticker.C:
			if err := r.ProcessEvents(ctx); err != nil {
				r.logger.Error(err, "failed to process outbox events")
			}
		}
	}
}

// ProcessEvents publishes one batch of pending events, oldest first.
func (r *Relay) ProcessEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(r.metrics.RelayLatency)
	defer timer.ObserveDuration()

	events, err := r.pendingEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending events: %w", err)
	}

	for _, event := range events {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := r.processEvent(ctx, event); err != nil {
			r.logger.Error(err, "failed to relay event",
				"event_id", event.ID, "event_type", event.EventType)
		}
	}
	return nil
}

func (r *Relay) pendingEvents(ctx context.Context) ([]model.OutboxEvent, error) {
	docs, err := r.store.List(ctx, store.Outbox)
	if err != nil {
		return nil, err
	}

	events := make([]model.OutboxEvent, 0, len(docs))
	for _, doc := range docs {
		var event model.OutboxEvent
		if err := model.Decode(doc, &event); err != nil {
			continue
		}
		if event.Status != model.OutboxStatusPending {
			continue
		}
		events = append(events, event)
	}

	// Snapshots arrive newest-first; publish in creation order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt < events[j].CreatedAt
	})
	if len(events) > r.config.BatchSize {
		events = events[:r.config.BatchSize]
	}
	return events, nil
}

func (r *Relay) processEvent(ctx context.Context, event model.OutboxEvent) error {
	var publishErr error
	for attempt := 0; attempt < r.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			r.metrics.RelayRetries.WithLabelValues(event.EventType).Inc()
			time.Sleep(time.Duration(attempt) * r.config.RetryDelay)
		}
		publishErr = r.broker.Publish(ctx, event.EventType, messaging.Message{
			Type:    event.EventType,
			Payload: event.Payload,
		})
		if publishErr == nil {
			break
		}
	}

	if publishErr != nil {
		r.metrics.RelayEventsFailed.Inc()
		patch := store.Document{
			"status": string(model.OutboxStatusFailed),
			"error":  publishErr.Error(),
		}
		if err := r.store.Update(ctx, store.Outbox, event.ID, patch); err != nil {
			r.logger.Error(err, "failed to mark event failed", "event_id", event.ID)
		}
		return publishErr
	}

	if err := r.store.Update(ctx, store.Outbox, event.ID,
		store.Document{"status": string(model.OutboxStatusProcessed)}); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	r.metrics.RelayEventsProcessed.Inc()
	return nil
}
