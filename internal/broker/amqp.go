package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const amqpDialTimeout = 10 * time.Second

// AMQPDialer connects to RabbitMQ.
type AMQPDialer struct {
	url    string
	logger *zap.Logger
}

// NewAMQPDialer returns a dialer for an amqp:// or amqps:// URL.
func NewAMQPDialer(url string, logger *zap.Logger) *AMQPDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPDialer{url: url, logger: logger}
}

// Dial opens a connection. The dial itself is bounded by a fixed timeout.
func (d *AMQPDialer) Dial(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(d.url, amqp.Config{
		Dial:       amqp.DefaultDial(amqpDialTimeout),
		Properties: amqp.Table{"connection_name": "reconcile-pipeline"},
	})
	if err != nil {
		return nil, err
	}
	d.logger.Debug("amqp connection opened", zap.String("url", Redact(d.url)))
	return &amqpConnection{conn: conn, logger: d.logger}, nil
}

type amqpConnection struct {
	conn   *amqp.Connection
	logger *zap.Logger
}

// Channel opens a channel in confirm mode so every publish is acknowledged individually.
func (c *amqpConnection) Channel(ctx context.Context) (Channel, error) {
	if c.conn.IsClosed() {
		return nil, ErrClosed
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &amqpChannel{ch: ch, declared: make(map[string]bool), logger: c.logger}, nil
}

func (c *amqpConnection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

type amqpChannel struct {
	ch       *amqp.Channel
	mu       sync.Mutex
	declared map[string]bool
	logger   *zap.Logger
}

func (c *amqpChannel) DeclareQueue(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// durable, not auto-deleted, not exclusive
	if _, err := c.ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.declared[name] = true
	c.mu.Unlock()
	return nil
}

func (c *amqpChannel) Publish(ctx context.Context, queue string, msg Message) error {
	c.mu.Lock()
	ok := c.declared[queue]
	c.mu.Unlock()
	if !ok {
		return ErrQueueNotDeclared
	}

	confirm, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    msg.Timestamp,
		Body:         msg.Body,
	})
	if err != nil {
		return err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrNacked
	}
	return nil
}

func (c *amqpChannel) Close() error {
	if c.ch.IsClosed() {
		return nil
	}
	return c.ch.Close()
}
