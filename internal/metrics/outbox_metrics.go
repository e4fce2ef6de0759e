package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты попыток публикации outbox-событий.
const (
	OutboxResultSent       = "sent"
	OutboxResultRetryError = "retry_error"
	OutboxResultFailed     = "failed"
	OutboxResultDLQFailed  = "dlq_failed"
)

// OutboxMetrics содержит метрики публикации событий из transactional outbox.
type OutboxMetrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики outbox в default-регистре Prometheus.
func NewOutboxMetrics() *OutboxMetrics {
	return newOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

// NotifierMetrics содержит метрики обработки уведомлений.
type NotifierMetrics struct {
	processed *prometheus.CounterVec
}

// NewNotifierMetrics создаёт метрики notifier в default-регистре Prometheus.
func NewNotifierMetrics() *NotifierMetrics {
	return newNotifierMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newNotifierMetricsWithRegisterer(registerer prometheus.Registerer) *NotifierMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &NotifierMetrics{
		processed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_notifications_processed_total",
			Help: "Total number of order status notifications grouped by new status",
		}, []string{"new_status"}),
	}
}

// RecordProcessed увеличивает счётчик отправленных уведомлений.
func (m *NotifierMetrics) RecordProcessed(newStatus string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(newStatus).Inc()
}

// RecordPublishAttempt увеличивает счётчик попыток публикации для результата.
func (m *OutboxMetrics) RecordPublishAttempt(result string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(result).Inc()
}

// ObserveBacklog обновляет размер и возраст необработанного хвоста outbox.
func (m *OutboxMetrics) ObserveBacklog(pendingCount int64, oldestPendingAt time.Time) {
	if m == nil {
		return
	}

	m.pendingRecords.Set(float64(pendingCount))

	if pendingCount == 0 || oldestPendingAt.IsZero() {
		m.oldestPendingAge.Set(0)
		return
	}
	age := time.Since(oldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	m.oldestPendingAge.Set(age)
}
