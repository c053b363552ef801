// Package events publishes alert dispatch results to a RabbitMQ topic
// exchange so downstream consumers can audit or react to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
)

// KeyAlertDispatched is the routing key for finished dispatches.
const KeyAlertDispatched = "alert.dispatched"

// Meta identifies one envelope.
type Meta struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Envelope is the message body on the wire.
type Envelope struct {
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// AlertDispatched is the payload for KeyAlertDispatched.
type AlertDispatched struct {
	DistanceCm  float64          `json:"distance"`
	Message     string           `json:"message"`
	TriggeredAt time.Time        `json:"triggeredAt"`
	DispatchID  string           `json:"dispatchId"`
	Sent        int              `json:"sent"`
	Failed      int              `json:"failed"`
	Outcomes    []alerts.Outcome `json:"outcomes"`
}

// NewAlertEnvelope builds the envelope for one dispatch report.
func NewAlertEnvelope(event alerts.AlertEvent, report alerts.Report) (Envelope, error) {
	outcomes := report.Outcomes
	if outcomes == nil {
		outcomes = []alerts.Outcome{}
	}
	data, err := json.Marshal(AlertDispatched{
		DistanceCm:  event.DistanceCm,
		Message:     event.Message,
		TriggeredAt: event.TriggeredAt,
		DispatchID:  report.ID,
		Sent:        report.Sent(),
		Failed:      report.Failed(),
		Outcomes:    outcomes,
	})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Type:       KeyAlertDispatched,
			Source:     "ultrasense-server",
			OccurredAt: time.Now().UTC(),
		},
		Data: data,
	}, nil
}

// Publisher implements alerts.Publisher on a confirmed AMQP channel.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
	log      *slog.Logger
}

// Dial connects, declares the topic exchange and verifies the broker
// supports publisher confirms.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	return &Publisher{conn: conn, exchange: exchange, log: logger}, nil
}

// PublishReport sends an alert.dispatched envelope and waits for the broker
// confirm.
func (p *Publisher) PublishReport(ctx context.Context, event alerts.AlertEvent, report alerts.Report) error {
	env, err := NewAlertEnvelope(event, report)
	if err != nil {
		return fmt.Errorf("build envelope: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx, p.exchange, KeyAlertDispatched, false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.Meta.ID,
			CorrelationId: report.ID,
			Timestamp:     env.Meta.OccurredAt,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", KeyAlertDispatched, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s", env.Meta.ID)
	}

	p.log.Info("Published event",
		"key", KeyAlertDispatched, "exchange", p.exchange, "dispatch_id", report.ID)
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
