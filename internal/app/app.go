package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/api"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/importer"
	"github.com/vladislavdragonenkov/marketplace/internal/service/inventory"
	"github.com/vladislavdragonenkov/marketplace/internal/service/order"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

// storageDeps объединяет зависимости, которые различаются между postgres
// и хранилищем в памяти.
type storageDeps struct {
	uow    domain.UnitOfWork
	outbox domain.OutboxRepository
	ping   func(ctx context.Context) error
	close  func() error
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageDeps, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL не задан, используется хранилище в памяти")
		store := memory.NewStore()
		return &storageDeps{
			uow:    store,
			outbox: store,
			ping:   func(context.Context) error { return nil },
			close:  func() error { return nil },
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("postgres хранилище инициализировано, миграции применены")

	return &storageDeps{
		uow:    store,
		outbox: postgres.NewOutboxRepository(store),
		ping:   store.Ping,
		close:  store.Close,
	}, nil
}

// Run собирает зависимости и держит приложение до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	storage, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.close(); err != nil {
			logger.WithError(err).Warn("не удалось закрыть хранилище")
		}
	}()

	orderMetrics := metrics.NewOrderMetrics()
	stock := inventory.NewService(storage.uow, logger, orderMetrics)
	orders := order.NewService(storage.uow, stock, logger, orderMetrics)
	catalogImporter := importer.NewService(storage.uow, logger)

	// Kafka и outbox-воркер опциональны: без брокеров события копятся
	// в outbox и могут быть опубликованы позже.
	var kafkaProducer *kafka.Producer
	var outboxWorker *outbox.Worker

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("kafka producer недоступен, события остаются в outbox")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer инициализирован")

			outboxWorker = outbox.NewWorker(
				storage.outbox,
				kafka.NewOutboxPublisher(producer, cfg.OrderEventsTopic),
				outbox.WithLogger(logger),
				outbox.WithMetrics(metrics.NewOutboxMetrics()),
				outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
				outbox.WithPollInterval(cfg.OutboxPollInterval),
				outbox.WithBatchSize(cfg.OutboxBatchSize),
			)
		}
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if outboxWorker != nil {
		go outboxWorker.Run(workerCtx)
	}

	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.Register("storage", healthcheck.NewCheckFunc("storage", storage.ping))

	metricsSrv := startOpsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	router := api.NewRouter(
		api.NewOrderHandler(orders, logger),
		api.NewPartnerHandler(catalogImporter, logger),
		logger,
	)
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервер")
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		stopWorker()
		closeProducer(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		stopWorker()
		closeProducer(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startOpsServer поднимает служебный HTTP-сервер: метрики и health-пробы.
func startOpsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 5*time.Second, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func closeProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("не удалось закрыть kafka producer")
		return
	}
	logger.Info("kafka producer закрыт")
}
