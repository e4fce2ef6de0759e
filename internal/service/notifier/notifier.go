package notifier

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Sender доставляет уведомление получателю. Формат письма и канал доставки
// остаются за реализацией; LogSender используется по умолчанию.
type Sender interface {
	Send(ctx context.Context, event domain.OrderStatusEvent) error
}

// LogSender пишет уведомление в лог. Достаточно для локальной разработки
// и стендов без почтового шлюза.
type LogSender struct {
	logger *log.Entry
}

// NewLogSender создаёт Sender, пишущий уведомления в лог.
func NewLogSender(logger *log.Entry) *LogSender {
	if logger == nil {
		logger = log.New().WithField("component", "notifier-sender")
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, event domain.OrderStatusEvent) error {
	s.logger.WithFields(log.Fields{
		"order_id":   event.OrderID,
		"user_id":    event.UserID,
		"old_status": event.OldStatus,
		"new_status": event.NewStatus,
	}).Info("уведомление о смене статуса заказа")
	return nil
}

// Service превращает события смен статусов заказов в уведомления пользователям.
type Service struct {
	sender  Sender
	logger  *log.Entry
	metrics *metrics.NotifierMetrics
}

// NewService создаёт сервис уведомлений.
func NewService(sender Sender, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "notifier")
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	return &Service{
		sender:  sender,
		logger:  logger,
		metrics: metrics.NewNotifierMetrics(),
	}
}

// HandleMessage — kafka.MessageHandler для топика событий заказов.
func (s *Service) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseEventEnvelope(message)
	if err != nil {
		return fmt.Errorf("parse envelope: %w", err)
	}

	event, err := kafka.ParseOrderStatusEvent(envelope)
	if err != nil {
		return fmt.Errorf("parse order status event: %w", err)
	}

	if err := s.sender.Send(ctx, *event); err != nil {
		return fmt.Errorf("send notification for order %s: %w", event.OrderID, err)
	}

	s.metrics.RecordProcessed(string(event.NewStatus))
	return nil
}
