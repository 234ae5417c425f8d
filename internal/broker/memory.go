package broker

import (
	"context"
	"sync"
)

// Memory is a process-local broker. Queues outlive connections for the
// lifetime of the Memory value, which is enough for tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	queues map[string][]Message
	dials  int

	// Failure hooks; nil means succeed.
	DialErr    error
	DeclareErr func(queue string) error
	PublishErr func(queue string, seq int) error
}

// NewMemory returns an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string][]Message)}
}

func (m *Memory) Dial(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.dials++
	dialErr := m.DialErr
	m.mu.Unlock()
	if dialErr != nil {
		return nil, dialErr
	}
	return &memoryConnection{broker: m}, nil
}

// Dials reports how many dial attempts were made.
func (m *Memory) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// Declared reports whether the queue exists.
func (m *Memory) Declared(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.queues[queue]
	return ok
}

// Messages returns a copy of the queue contents in publish order.
func (m *Memory) Messages(queue string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.queues[queue]))
	copy(out, m.queues[queue])
	return out
}

type memoryConnection struct {
	broker *Memory
	mu     sync.Mutex
	closed bool
}

func (c *memoryConnection) Channel(ctx context.Context) (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return &memoryChannel{conn: c, declared: make(map[string]bool)}, nil
}

func (c *memoryConnection) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *memoryConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type memoryChannel struct {
	conn     *memoryConnection
	declared map[string]bool
	closed   bool
}

func (c *memoryChannel) DeclareQueue(ctx context.Context, name string) error {
	if c.closed || c.conn.isClosed() {
		return ErrClosed
	}
	m := c.conn.broker
	if m.DeclareErr != nil {
		if err := m.DeclareErr(name); err != nil {
			return err
		}
	}
	m.mu.Lock()
	if _, ok := m.queues[name]; !ok {
		m.queues[name] = nil
	}
	m.mu.Unlock()
	c.declared[name] = true
	return nil
}

func (c *memoryChannel) Publish(ctx context.Context, queue string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed || c.conn.isClosed() {
		return ErrClosed
	}
	if !c.declared[queue] {
		return ErrQueueNotDeclared
	}
	m := c.conn.broker
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		if err := m.PublishErr(queue, len(m.queues[queue])); err != nil {
			return err
		}
	}
	m.queues[queue] = append(m.queues[queue], msg)
	return nil
}

func (c *memoryChannel) Close() error {
	c.closed = true
	return nil
}
