// Package relay forwards live events to external brokers.
//
// A Relay holds one live subscription and writes every event as JSON to a
// Sink: a Kafka topic (segmentio/kafka-go) or a RabbitMQ queue
// (rabbitmq/amqp091-go). Sink failures are logged and counted; they never
// reach the ingestion path. A relay dropped for falling behind resubscribes
// and carries on from the next event.
package relay
