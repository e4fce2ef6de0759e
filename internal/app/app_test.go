package app

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestInitStorageMemoryFallback(t *testing.T) {
	storage, err := initStorage(context.Background(), Config{}, log.WithField("component", "test"))
	if err != nil {
		t.Fatalf("initStorage failed: %v", err)
	}
	defer func() { _ = storage.close() }()

	if storage.uow == nil {
		t.Error("expected unit of work to be set")
	}
	if storage.outbox == nil {
		t.Error("expected outbox repository to be set")
	}
	if err := storage.ping(context.Background()); err != nil {
		t.Errorf("memory storage ping should not fail: %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{
		HTTPAddr:           "127.0.0.1:0",
		MetricsAddr:        "127.0.0.1:0",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    10,
		ShutdownTimeout:    time.Second,
	}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
