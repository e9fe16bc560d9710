// Package events provides the AMQP producer through which verified webhook events
// are fanned out to downstream consumers, and through which dependent systems are
// told to reconnect after a committed token change.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

func FormatConnectionString(host string, port int, vhost string, user string, password string) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", user, password, host, port, vhost)
}

type Producer struct {
	ch       *amqp.Channel
	exchange string
}

// NewProducer opens a channel on the given connection and declares a durable
// fanout exchange with the given name.
func NewProducer(conn *amqp.Connection, exchange string) (*Producer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchange, err)
	}
	return &Producer{
		ch:       ch,
		exchange: exchange,
	}, nil
}

// Send JSON-serializes the given value and publishes it to the producer's exchange.
func (p *Producer) Send(ctx context.Context, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.SendRaw(ctx, body)
}

// SendRaw publishes pre-encoded JSON to the producer's exchange exactly as given.
// Verified webhook payloads must go out byte-for-byte as they arrived, since
// downstream consumers may re-verify their signatures: re-encoding would alter
// escape sequences (e.g. '\u0026' vs '&') and break those signatures.
func (p *Producer) SendRaw(ctx context.Context, body []byte) error {
	return p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
