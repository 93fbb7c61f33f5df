package events

import (
	"encoding/json"
	"fmt"
	"time"

	"go-bridge/internal/metrics"
	"go-bridge/internal/services"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Envelope wire form of a bridge event on NATS
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     string          `json:"actor,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Subject for one event type, e.g. bridge.events.Locked
func Subject(prefix string, eventType services.EventType) string {
	return prefix + "." + string(eventType)
}

// NATSEventPublisher republishes committed bridge events on NATS
type NATSEventPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *logrus.Logger
}

// NewNATSEventPublisher publishes under prefix.<EventType>
func NewNATSEventPublisher(conn *nats.Conn, prefix string, logger *logrus.Logger) *NATSEventPublisher {
	return &NATSEventPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Attach subscribes the publisher to bus
func (p *NATSEventPublisher) Attach(bus *services.EventBus) {
	bus.Subscribe("nats", func(evt *services.Event) {
		if err := p.Publish(evt); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"event_id": evt.ID,
				"type":     evt.Type,
			}).Error("❌ Failed to publish bridge event to NATS")
		}
	})
}

// Publish sends one event. Delivery is at most once; the audit log is the durable record.
func (p *NATSEventPublisher) Publish(evt *services.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		metrics.NATSPublishErrors.WithLabelValues(string(evt.Type)).Inc()
		return fmt.Errorf("marshal event data: %w", err)
	}
	body, err := json.Marshal(&Envelope{
		ID:        evt.ID,
		Type:      string(evt.Type),
		Actor:     evt.Actor,
		Timestamp: evt.Timestamp,
		Data:      data,
	})
	if err != nil {
		metrics.NATSPublishErrors.WithLabelValues(string(evt.Type)).Inc()
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := Subject(p.prefix, evt.Type)
	if err := p.conn.Publish(subject, body); err != nil {
		metrics.NATSPublishErrors.WithLabelValues(string(evt.Type)).Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	metrics.NATSMessagesPublished.WithLabelValues(string(evt.Type)).Inc()
	p.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"event_id": evt.ID,
	}).Debug("📨 Bridge event published to NATS")
	return nil
}

// Subscribe delivers decoded events published under prefix to handler. Malformed messages are skipped.
func Subscribe(conn *nats.Conn, prefix string, logger *logrus.Logger, handler func(*Envelope)) (*nats.Subscription, error) {
	return conn.Subscribe(prefix+".>", func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			logger.WithError(err).WithField("subject", msg.Subject).Warn("⚠️ Skipping malformed bridge event")
			return
		}
		handler(&env)
	})
}
