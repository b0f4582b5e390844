package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
)

// NATSPublisher publishes events to a JetStream stream. Subjects are
// "<prefix>.<event type>", e.g. recall.events.memory.status.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
	log    *logger.Logger
}

// NewNATSPublisher connects to cfg.NATSURL and ensures the events stream exists.
func NewNATSPublisher(ctx context.Context, cfg config.EventsConfig, log *logger.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("component", "events.nats")

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("recall"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	prefix := strings.TrimSuffix(cfg.NATSSubject, ".")
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.NATSStream,
		Subjects:  []string{prefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating stream %s: %w", cfg.NATSStream, err)
	}

	log.Info("connected to NATS", "url", cfg.NATSURL, "stream", cfg.NATSStream)
	return &NATSPublisher{conn: nc, js: js, prefix: prefix, log: log}, nil
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish sends e as JSON and waits for the stream acknowledgement.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", e.Type, err)
	}
	subject := p.Subject(e.Type)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Healthy reports whether the connection is up.
func (p *NATSPublisher) Healthy() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("draining NATS connection", "error", err)
	}
}

var _ Publisher = (*NATSPublisher)(nil)
