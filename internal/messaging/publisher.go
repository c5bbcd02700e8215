package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/faultline/internal/logging"
	"github.com/telhawk-systems/faultline/internal/models"
)

// Publisher announces persisted events to downstream consumers.
type Publisher interface {
	PublishEvent(ctx context.Context, event *models.Event) error
	Close() error
}

// EventIngested is the message body published for each persisted event.
type EventIngested struct {
	EventID          string    `json:"event_id"`
	ProjectID        string    `json:"project_id"`
	ExceptionType    string    `json:"exception_type"`
	ExceptionMessage string    `json:"exception_message,omitempty"`
	Severity         string    `json:"severity"`
	Filename         string    `json:"filename,omitempty"`
	LineNumber       int       `json:"line_number"`
	ServerName       string    `json:"server_name,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	IngestedAt       time.Time `json:"ingested_at"`
}

// NewEventIngested builds the message for event.
func NewEventIngested(event *models.Event, now time.Time) EventIngested {
	return EventIngested{
		EventID:          event.ID,
		ProjectID:        event.ProjectID,
		ExceptionType:    event.ExceptionType,
		ExceptionMessage: event.ExceptionMessage,
		Severity:         event.Severity,
		Filename:         event.Filename,
		LineNumber:       event.LineNumber,
		ServerName:       event.ServerName,
		Timestamp:        event.Timestamp,
		IngestedAt:       now.UTC(),
	}
}

// Config holds NATS client configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// Subject is the base subject events are published on.
	Subject string

	// PerProject appends the project ID to Subject.
	PerProject bool

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	Username string
	Password string
	Token    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "faultline",
		Subject:       SubjectEventsIngested,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	PublishMsg(msg *nats.Msg) error
	Drain() error
}

// NATSPublisher publishes EventIngested messages with core NATS.
type NATSPublisher struct {
	conn       conn
	subject    string
	perProject bool
	now        func() time.Time
}

// NewNATSPublisher connects to the server in cfg.
func NewNATSPublisher(cfg Config, logger *logging.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return newPublisher(nc, cfg), nil
}

func newPublisher(c conn, cfg Config) *NATSPublisher {
	subject := cfg.Subject
	if subject == "" {
		subject = SubjectEventsIngested
	}
	return &NATSPublisher{
		conn:       c,
		subject:    subject,
		perProject: cfg.PerProject,
		now:        time.Now,
	}
}

// PublishEvent publishes event. The event ID is sent as Nats-Msg-Id so JetStream
// consumers can de-duplicate.
func (p *NATSPublisher) PublishEvent(ctx context.Context, event *models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(NewEventIngested(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	subject := p.subject
	if p.perProject {
		subject = ProjectSubject(subject, event.ProjectID)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set("Content-Type", "application/json")

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// NoOpPublisher discards events (used when NATS is disabled)
type NoOpPublisher struct{}

func (NoOpPublisher) PublishEvent(ctx context.Context, event *models.Event) error {
	return nil
}

func (NoOpPublisher) Close() error {
	return nil
}
