package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов и складских операций.
type OrderMetrics struct {
	// Счётчики переходов статусов
	transitions     *prometheus.CounterVec
	transitionNoops prometheus.Counter
	transitionFails prometheus.Counter

	// Складские операции
	reservations      *prometheus.CounterVec
	insufficientStock prometheus.Counter

	// События
	historyRecords prometheus.Counter
	outboxEvents   prometheus.Counter

	// Время выполнения перехода целиком
	changeStatusDuration prometheus.Histogram
}

// NewOrderMetrics создаёт метрики в default-регистре Prometheus.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_transitions_total",
			Help: "Total number of successful order status transitions",
		}, []string{"from", "to"}),
		transitionNoops: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_transition_noops_total",
			Help: "Total number of idempotent no-op status changes",
		}),
		transitionFails: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_transition_failures_total",
			Help: "Total number of failed order status transitions",
		}),
		reservations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_inventory_operations_total",
			Help: "Total number of inventory operations grouped by result",
		}, []string{"result"}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_inventory_insufficient_stock_total",
			Help: "Total number of reservations rejected due to insufficient stock",
		}),
		historyRecords: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_history_records_total",
			Help: "Total number of order status history records written",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_outbox_events_total",
			Help: "Total number of events enqueued to transactional outbox",
		}),
		changeStatusDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_order_change_status_duration_seconds",
			Help:    "Duration of order status change transactions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordTransition увеличивает счётчик успешных переходов from -> to.
func (m *OrderMetrics) RecordTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordTransitionNoop увеличивает счётчик идемпотентных повторных вызовов.
func (m *OrderMetrics) RecordTransitionNoop() {
	m.transitionNoops.Inc()
}

// RecordTransitionFailed увеличивает счётчик неудачных переходов.
func (m *OrderMetrics) RecordTransitionFailed() {
	m.transitionFails.Inc()
}

// RecordReservation увеличивает счётчик складских операций (reserved/released).
func (m *OrderMetrics) RecordReservation(result string) {
	m.reservations.WithLabelValues(result).Inc()
}

// RecordInsufficientStock увеличивает счётчик отказов из-за нехватки товара.
func (m *OrderMetrics) RecordInsufficientStock() {
	m.insufficientStock.Inc()
}

// RecordHistoryRecord увеличивает счётчик записей аудита.
func (m *OrderMetrics) RecordHistoryRecord() {
	m.historyRecords.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordChangeStatusDuration записывает длительность перехода статуса.
func (m *OrderMetrics) RecordChangeStatusDuration(duration time.Duration) {
	m.changeStatusDuration.Observe(duration.Seconds())
}
