// Package broker abstracts the durable queue transport the pipeline publishes to.
//
// A Dialer opens one Connection per run. Each Connection hands out
// Channels; a Channel declares durable queues and publishes messages,
// returning only after the broker has acknowledged (or rejected) each
// one. Channels are not safe for concurrent use; open one per stream.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueNotDeclared is returned when publishing to a queue the channel never declared.
	ErrQueueNotDeclared = errors.New("queue not declared")
	// ErrClosed is returned when using a closed connection or channel.
	ErrClosed = errors.New("broker closed")
	// ErrNacked is returned when the broker refuses a delivery.
	ErrNacked = errors.New("publish not acknowledged")
)

// Message is one discrete delivery
type Message struct {
	ID          string
	Type        string
	ContentType string
	Body        []byte
	Timestamp   time.Time
}

// Dialer opens connections to a broker.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

// Connection is a live broker connection.
type Connection interface {
	Channel(ctx context.Context) (Channel, error)
	Close() error
}

// Channel declares queues and publishes to them.
type Channel interface {
	// DeclareQueue declares a durable queue; redeclaring an existing one is a no-op.
	DeclareQueue(ctx context.Context, name string) error
	// Publish sends msg to queue and waits for the broker's acknowledgement.
	Publish(ctx context.Context, queue string, msg Message) error
	Close() error
}

// TransportError describes a failed broker operation
type TransportError struct {
	Op    string // "dial", "channel", "declare", "publish"
	Queue string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Queue == "" {
		return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("broker %s %q: %v", e.Op, e.Queue, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewDialer picks a transport from the URL scheme:
//
//	amqp://, amqps://   RabbitMQ
//	sqlite://<path>     durable local queue file
//	memory://           process-local, for tests and dry runs
func NewDialer(rawURL string, logger *zap.Logger) (Dialer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "amqp", "amqps":
		return NewAMQPDialer(rawURL, logger), nil
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(rawURL, u.Scheme+"://")
		if path == "" {
			return nil, fmt.Errorf("sqlite broker url %q has no path", rawURL)
		}
		return NewSQLiteDialer(path, logger), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported broker scheme: %q", u.Scheme)
	}
}

// redactedURL replaces broker URLs that cannot be parsed.
const redactedURL = "<unparseable broker url>"

// Redact strips credentials from a broker URL for logging.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return redactedURL
	}
	if u.User == nil {
		return rawURL
	}
	u.User = url.User(u.User.Username())
	return u.String()
}
