package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
)

// AMQP publishes events to a durable RabbitMQ queue through the default
// exchange. The connection is dialled lazily and re-dialled after a failure.
type AMQP struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQP returns a RabbitMQ sink. No connection is made until the first
// write.
func NewAMQP(url, queue string) (*AMQP, error) {
	if url == "" {
		return nil, errors.New("relay: amqp url is required")
	}
	if queue == "" {
		return nil, errors.New("relay: amqp queue is required")
	}
	return &AMQP{url: url, queue: queue}, nil
}

// Name implements Sink.
func (a *AMQP) Name() string { return "amqp" }

// Write implements Sink.
func (a *AMQP) Write(ctx context.Context, m Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connect(); err != nil {
		return err
	}
	err := a.ch.PublishWithContext(ctx,
		"",      // exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    m.Time,
			Headers:      amqp.Table{"device_id": m.Key},
			Body:         m.Value,
		},
	)
	if err != nil {
		a.reset()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close closes the channel and connection if open.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reset()
}

// connect ensures an open channel with the queue declared. Callers hold mu.
func (a *AMQP) connect() error {
	if a.conn != nil && !a.conn.IsClosed() && a.ch != nil {
		return nil
	}
	a.reset()

	conn, err := amqp.Dial(a.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		a.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp declare %s: %w", a.queue, err)
	}
	a.conn, a.ch = conn, ch
	return nil
}

// reset drops the current connection. Callers hold mu.
func (a *AMQP) reset() error {
	var err error
	if a.ch != nil {
		err = multierr.Append(err, ignoreClosed(a.ch.Close()))
	}
	if a.conn != nil {
		err = multierr.Append(err, ignoreClosed(a.conn.Close()))
	}
	a.conn, a.ch = nil, nil
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
