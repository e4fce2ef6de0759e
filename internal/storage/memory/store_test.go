package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	store := NewStore()
	store.SeedProducts(domain.ProductInfo{ID: "pi-1", ShopID: "shop-1", Quantity: 10, PriceMinor: 100, PriceRRCMinor: 120})

	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.Products().AdjustQuantity(context.Background(), "pi-1", -4)
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}

	qty, ok := store.ProductQuantity("pi-1")
	if !ok || qty != 6 {
		t.Fatalf("expected quantity 6, got %d (ok=%v)", qty, ok)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := NewStore()
	store.SeedProducts(domain.ProductInfo{ID: "pi-1", ShopID: "shop-1", Quantity: 10, PriceMinor: 100, PriceRRCMinor: 120})

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		if err := tx.Products().AdjustQuantity(context.Background(), "pi-1", -4); err != nil {
			t.Fatalf("adjust: %v", err)
		}
		if _, err := tx.Outbox().Enqueue(context.Background(), domain.OutboxMessage{EventType: "Test"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}

	qty, _ := store.ProductQuantity("pi-1")
	if qty != 10 {
		t.Fatalf("expected rollback to quantity 10, got %d", qty)
	}
	if pending := store.AllPending(); len(pending) != 0 {
		t.Fatalf("expected no pending outbox messages after rollback, got %d", len(pending))
	}
}

func TestAdjustQuantityRejectsNegativeResult(t *testing.T) {
	store := NewStore()
	store.SeedProducts(domain.ProductInfo{ID: "pi-1", ShopID: "shop-1", Quantity: 3, PriceMinor: 100, PriceRRCMinor: 120})

	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.Products().AdjustQuantity(context.Background(), "pi-1", -5)
	})
	if !errors.Is(err, domain.ErrQuantityNegative) {
		t.Fatalf("expected ErrQuantityNegative, got %v", err)
	}

	qty, _ := store.ProductQuantity("pi-1")
	if qty != 3 {
		t.Fatalf("expected quantity unchanged, got %d", qty)
	}
}

func TestOrderRepositoryBasketAndItems(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		order := domain.Order{
			ID:        "order-1",
			UserID:    "user-1",
			State:     domain.OrderStateBasket,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		if err := tx.Orders().UpsertItem(ctx, domain.OrderItem{OrderID: "order-1", ProductInfoID: "pi-1", Quantity: 2}); err != nil {
			return err
		}
		// Повторный upsert той же пары (order, product_info) суммирует количество.
		return tx.Orders().UpsertItem(ctx, domain.OrderItem{OrderID: "order-1", ProductInfoID: "pi-1", Quantity: 3})
	})
	if err != nil {
		t.Fatalf("seed basket: %v", err)
	}

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		basket, err := tx.Orders().GetBasket(ctx, "user-1")
		if err != nil {
			return err
		}
		if len(basket.Items) != 1 {
			t.Fatalf("expected single item, got %d", len(basket.Items))
		}
		if basket.Items[0].Quantity != 5 {
			t.Fatalf("expected additive quantity 5, got %d", basket.Items[0].Quantity)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read basket: %v", err)
	}

	if err := store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := tx.Orders().GetBasket(ctx, "user-2")
		return err
	}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for unknown user, got %v", err)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var queued domain.OutboxMessage
	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		msg, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "order-1",
			EventType:     domain.EventOrderStatusChanged,
			Payload:       []byte(`{}`),
		})
		queued = msg
		return err
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.ID == "" {
		t.Fatal("expected generated outbox id")
	}

	pending, err := store.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != queued.ID {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := store.MarkSent(queued.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if pending := store.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}

	if err := store.MarkSent("missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for unknown id, got %v", err)
	}
}

func TestCatalogUpserts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		first, err := tx.Catalog().UpsertShop(ctx, domain.Shop{Name: "Связной", AcceptingOrders: true})
		if err != nil {
			return err
		}
		second, err := tx.Catalog().UpsertShop(ctx, domain.Shop{Name: "Связной", URL: "https://svyaznoy.ru"})
		if err != nil {
			return err
		}
		if first.ID != second.ID {
			t.Fatalf("upsert by name should reuse shop: %s vs %s", first.ID, second.ID)
		}

		cat, err := tx.Catalog().UpsertCategory(ctx, domain.Category{ExternalID: 224, Name: "Смартфоны"})
		if err != nil {
			return err
		}
		again, err := tx.Catalog().UpsertCategory(ctx, domain.Category{ExternalID: 224, Name: "Смартфоны и гаджеты"})
		if err != nil {
			return err
		}
		if cat.ID != again.ID {
			t.Fatalf("upsert by external id should reuse category: %s vs %s", cat.ID, again.ID)
		}
		if again.Name != "Смартфоны и гаджеты" {
			t.Fatalf("category name should be refreshed, got %q", again.Name)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("catalog upserts: %v", err)
	}
}
