package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/task"
)

const defaultSubjectPrefix = "agentd.tasks"

// TaskEvent is the wire form of one lifecycle transition. Events are
// published to {prefix}.{status}.
type TaskEvent struct {
	TaskID      uuid.UUID   `json:"task_id"`
	Status      task.Status `json:"status"`
	Description string      `json:"description"`
	RetryCount  int         `json:"retry_count"`
	Error       string      `json:"error,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Publisher emits task lifecycle events over a NATS connection.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS and returns a publisher over the connection.
func Connect(cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("connected to NATS", zap.String("url", cfg.URL))
	return NewPublisher(conn, cfg.SubjectPrefix, logger), nil
}

// NewPublisher wraps an existing connection. The connection is owned
// by the publisher and closed by Close.
func NewPublisher(conn *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.Named("events"),
	}
}

// PublishStatus emits the task's current status to {prefix}.{status}.
func (p *Publisher) PublishStatus(_ context.Context, t *task.Task) error {
	event := TaskEvent{
		TaskID:      t.ID,
		Status:      t.Status(),
		Description: t.Description,
		RetryCount:  t.RetryCount,
		Error:       t.Error,
		Timestamp:   time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal task event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, event.Status)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish task event: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	_ = p.conn.Flush()
	p.conn.Close()
}
