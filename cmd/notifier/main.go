package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/notifier"
)

const (
	defaultGroupID    = "marketplace-notifier"
	defaultMaxRetries = 3
)

// Сервис уведомлений: читает события смены статусов заказов из Kafka
// и рассылает уведомления покупателям.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	brokersRaw := strings.TrimSpace(os.Getenv("MARKET_KAFKA_BROKERS"))
	if brokersRaw == "" {
		log.Fatal("MARKET_KAFKA_BROKERS is required")
	}
	brokers := strings.Split(brokersRaw, ",")

	groupID := os.Getenv("MARKET_NOTIFIER_GROUP_ID")
	if groupID == "" {
		groupID = defaultGroupID
	}

	topic := os.Getenv("MARKET_ORDER_EVENTS_TOPIC")
	if topic == "" {
		topic = kafka.TopicOrderEvents
	}

	logger := log.WithField("component", "notifier")
	svc := notifier.NewService(nil, logger)

	dlqProducer, err := kafka.NewProducer(brokers)
	if err != nil {
		log.WithError(err).Fatal("не удалось создать kafka producer для DLQ")
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		brokers,
		groupID,
		[]string{topic},
		svc.HandleMessage,
		dlqProducer,
		defaultMaxRetries,
	)
	if err != nil {
		log.WithError(err).Fatal("не удалось создать kafka consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(log.Fields{
		"brokers": brokers,
		"topic":   topic,
		"group":   groupID,
	}).Info("запускаем notifier")

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("consumer завершился с ошибкой")
	}

	if err := consumer.Stop(); err != nil {
		log.WithError(err).Warn("не удалось остановить consumer")
	}
	if err := dlqProducer.Close(); err != nil {
		log.WithError(err).Warn("не удалось закрыть kafka producer")
	}

	log.Info("notifier остановлен")
}
