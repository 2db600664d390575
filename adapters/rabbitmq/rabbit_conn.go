package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

// Concrete AMQP connection-backed Broker and constructor.

type Config struct {
	URL         string
	Name        string
	Subject     string // well-known provider-side queue prefix
	ConnTimeout time.Duration
}

type amqpBroker struct{ ch *amqp.Channel }

func (b amqpBroker) Declare(queue string, exclusive bool) error {
	_, err := b.ch.QueueDeclare(
		queue,
		!exclusive, // durable for shared request queues
		exclusive,  // auto-delete reply queues with their consumer
		exclusive,
		false,
		nil,
	)

	return err
}

func (b amqpBroker) Consume(queue string) (<-chan amqp.Delivery, error) {
	return b.ch.Consume(queue, "", true, false, false, false, nil)
}

func (b amqpBroker) Publish(ctx context.Context, key string, pub amqp.Publishing) error {
	// Default exchange routes directly to the queue named by key.
	return b.ch.PublishWithContext(ctx, "", key, false, false, pub)
}

// NewWithAMQPConn dials RabbitMQ and returns an Endpoint and a cleanup.
func NewWithAMQPConn(cfg Config) (*Endpoint, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrSubscribeFailed)
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-chain-relay"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: rabbitmq dial: %w", berr.ErrSubscribeFailed, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, nil, fmt.Errorf("%w: rabbitmq channel: %w", berr.ErrSubscribeFailed, err)
	}

	ep := New(amqpBroker{ch: ch}, cfg.Subject, cfg.Name)
	cleanup := func() {
		_ = ch.Close()
		_ = conn.Close()
	}

	return ep, cleanup, nil
}
