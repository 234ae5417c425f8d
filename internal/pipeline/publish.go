package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-reconcile-pipeline/internal/broker"
	"go-reconcile-pipeline/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const contentTypeJSON = "application/json"

// QueueBatch is one ordered stream bound for a single queue
type QueueBatch struct {
	Queue    string
	Messages []model.OutboundMessage
}

// PublishResult maps each queue to the number of confirmed publishes
type PublishResult map[string]int

// Publisher delivers message streams to the broker
type Publisher struct {
	dialer broker.Dialer
	retry  model.RetryConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher. Only the dial is retried, following retry.
func NewPublisher(dialer broker.Dialer, retry model.RetryConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{dialer: dialer, retry: retry, logger: logger, now: time.Now}
}

// Publish opens one connection and publishes every batch on its own
// channel, batches concurrently, messages in order. Every queue is
// declared before its first publish, even when the batch is empty.
//
// A dial failure fails everything. Any other failure aborts the rest of
// that batch only; the returned error joins one *broker.TransportError
// per failed queue and the result still reports what was confirmed.
func (p *Publisher) Publish(ctx context.Context, batches ...QueueBatch) (PublishResult, error) {
	result := make(PublishResult, len(batches))

	conn, err := withRetry(ctx, p.retry, p.logger, "dial", func() (broker.Connection, error) {
		return p.dialer.Dial(ctx)
	})
	if err != nil {
		return result, &broker.TransportError{Op: "dial", Err: err}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			p.logger.Warn("closing broker connection", zap.Error(err))
		}
	}()

	counts := make([]int, len(batches))
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts[i], errs[i] = p.publishBatch(ctx, conn, batch)
		}()
	}
	wg.Wait()

	for i, batch := range batches {
		result[batch.Queue] += counts[i]
	}
	return result, errors.Join(errs...)
}

// publishBatch streams one batch over a dedicated channel and returns
// how many messages the broker confirmed.
func (p *Publisher) publishBatch(ctx context.Context, conn broker.Connection, batch QueueBatch) (int, error) {
	logger := p.logger.With(zap.String("queue", batch.Queue))

	ch, err := conn.Channel(ctx)
	if err != nil {
		logger.Error("opening channel failed", zap.Error(err))
		return 0, &broker.TransportError{Op: "channel", Queue: batch.Queue, Err: err}
	}
	defer ch.Close()

	if err := ch.DeclareQueue(ctx, batch.Queue); err != nil {
		logger.Error("declaring queue failed", zap.Error(err))
		return 0, &broker.TransportError{Op: "declare", Queue: batch.Queue, Err: err}
	}

	published := 0
	for _, msg := range batch.Messages {
		delivery, err := p.encode(msg)
		if err != nil {
			return published, &broker.TransportError{Op: "publish", Queue: batch.Queue, Err: err}
		}
		if err := ch.Publish(ctx, batch.Queue, delivery); err != nil {
			logger.Error("publish failed",
				zap.String("message_id", delivery.ID),
				zap.String("key", msg.Key()),
				zap.Int("published", published),
				zap.Error(err),
			)
			return published, &broker.TransportError{Op: "publish", Queue: batch.Queue, Err: err}
		}
		published++
		logger.Debug("message published",
			zap.String("message_id", delivery.ID),
			zap.String("type", delivery.Type),
			zap.String("key", msg.Key()),
		)
	}

	logger.Info("queue published", zap.Int("messages", published))
	return published, nil
}

// encode serializes one message as a standalone JSON delivery.
func (p *Publisher) encode(msg model.OutboundMessage) (broker.Message, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return broker.Message{}, fmt.Errorf("encode %s %q: %w", msg.Discriminant(), msg.Key(), err)
	}
	return broker.Message{
		ID:          uuid.NewString(),
		Type:        string(msg.Discriminant()),
		ContentType: contentTypeJSON,
		Body:        body,
		Timestamp:   p.now().UTC(),
	}, nil
}
