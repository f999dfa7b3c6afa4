package relay

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka writes events to a topic, keyed by device id.
type Kafka struct {
	w *kafka.Writer
}

// NewKafka returns a Kafka sink. A zero writeTimeout means 10s.
func NewKafka(brokers []string, topic string, writeTimeout time.Duration) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("relay: at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("relay: kafka topic is required")
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // one device stays on one partition
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}, nil
}

// Name implements Sink.
func (k *Kafka) Name() string { return "kafka" }

// Write implements Sink.
func (k *Kafka) Write(ctx context.Context, m Message) error {
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(m.Key),
		Value:   m.Value,
		Time:    m.Time,
		Headers: []kafka.Header{{Key: "event", Value: []byte("healthDataUpdate")}},
	})
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error { return k.w.Close() }
