package kafka

import (
	"encoding/json"
	"time"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "marketplace.order.events"
	TopicDeadLetterQueue = "marketplace.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// EventEnvelope — обёртка, в которой outbox-события уходят в Kafka.
// Payload содержит доменное событие как есть (для смен статусов заказов —
// domain.OrderStatusEvent).
type EventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}
