package broker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteQueueSchema = `
CREATE TABLE IF NOT EXISTS queues (
	name TEXT PRIMARY KEY,
	durable INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME
);
CREATE TABLE IF NOT EXISTS queue_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	queue TEXT NOT NULL REFERENCES queues(name),
	message_id TEXT,
	message_type TEXT,
	content_type TEXT,
	body BLOB,
	published_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_queue_messages_queue ON queue_messages(queue, seq);
`

// SQLiteDialer stores queues in a local sqlite file. Every publish is
// its own committed transaction, which is the acknowledgement.
type SQLiteDialer struct {
	path   string
	logger *zap.Logger
}

// NewSQLiteDialer returns a dialer backed by the sqlite file at path.
func NewSQLiteDialer(path string, logger *zap.Logger) *SQLiteDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteDialer{path: path, logger: logger}
}

func (d *SQLiteDialer) Dial(ctx context.Context) (Connection, error) {
	db, err := openQueueDB(ctx, d.path)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("sqlite queue store opened", zap.String("path", d.path))
	return &sqliteConnection{db: db}, nil
}

func openQueueDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteQueueSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	return db, nil
}

type sqliteConnection struct {
	db *sql.DB
}

func (c *sqliteConnection) Channel(ctx context.Context) (Channel, error) {
	if err := c.db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &sqliteChannel{db: c.db}, nil
}

func (c *sqliteConnection) Close() error {
	return c.db.Close()
}

type sqliteChannel struct {
	db *sql.DB
}

func (c *sqliteChannel) DeclareQueue(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO queues (name, durable, created_at) VALUES (?, 1, ?)`,
		name, time.Now().UTC())
	return err
}

func (c *sqliteChannel) Publish(ctx context.Context, queue string, msg Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM queues WHERE name = ?`, queue).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrQueueNotDeclared
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO queue_messages (queue, message_id, message_type, content_type, body, published_at) VALUES (?, ?, ?, ?, ?, ?)`,
		queue, msg.ID, msg.Type, msg.ContentType, msg.Body, ts.UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *sqliteChannel) Close() error { return nil }

// ReadSQLiteQueue returns every message stored for queue, oldest first.
func ReadSQLiteQueue(ctx context.Context, path, queue string) ([]Message, error) {
	db, err := openQueueDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT message_id, message_type, content_type, body, published_at FROM queue_messages WHERE queue = ? ORDER BY seq`,
		queue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Type, &m.ContentType, &m.Body, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
