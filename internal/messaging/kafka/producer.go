package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Producer публикует события заказов в Kafka через SyncProducer.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// producerConfig включает идемпотентную публикацию: повтор отправки после
// сетевой ошибки не создаёт дубликат в партиции.
func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducer создает новый Kafka producer
func NewProducer(brokers []string) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		sync:   producer,
		logger: log.WithField("component", "kafka-producer"),
	}, nil
}

// PublishEnvelope публикует обёртку outbox-события. Ключом партиционирования
// служит агрегат события: все события одного заказа попадают в одну партицию
// и сохраняют порядок.
func (p *Producer) PublishEnvelope(topic string, envelope EventEnvelope) error {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	key := envelope.AggregateID
	if key == "" {
		key = envelope.ID
	}

	return p.send(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(raw),
		Timestamp: envelope.PublishedAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(envelope.EventType)},
		},
	})
}

// PublishDeadLetter отправляет необработанное сообщение в DLQ. Тело
// сохраняется байт в байт, чтобы сообщение можно было переиграть; контекст
// сбоя уходит в заголовки.
func (p *Producer) PublishDeadLetter(original *sarama.ConsumerMessage, cause error, retryCount int) error {
	return p.send(&sarama.ProducerMessage{
		Topic:     TopicDeadLetterQueue,
		Key:       sarama.ByteEncoder(original.Key),
		Value:     sarama.ByteEncoder(original.Value),
		Timestamp: time.Now().UTC(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderOriginalTopic), Value: []byte(original.Topic)},
			{Key: []byte(HeaderErrorMessage), Value: []byte(cause.Error())},
			{Key: []byte(HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
			{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(retryCount))},
		},
	})
}

func (p *Producer) send(msg *sarama.ProducerMessage) error {
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", msg.Topic).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     msg.Topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("message sent to kafka")

	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
