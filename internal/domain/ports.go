package domain

import (
	"context"
	"time"
)

// UnitOfWork запускает fn в одной транзакции хранилища: либо все изменения
// внутри fn фиксируются, либо при ошибке откатываются целиком.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx даёт доступ к репозиториям, работающим в рамках одной транзакции.
type Tx interface {
	Orders() OrderRepository
	Products() ProductRepository
	History() HistoryRepository
	Outbox() OutboxEnqueuer
	Catalog() CatalogRepository
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ с позициями или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// GetBasket возвращает заказ пользователя в состоянии basket
	// или ErrOrderNotFound, если корзины ещё нет.
	GetBasket(ctx context.Context, userID string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// UpdateState меняет только поле состояния заказа.
	UpdateState(ctx context.Context, id string, state OrderState) error
	// UpsertItem добавляет позицию или увеличивает количество существующей:
	// пара (order, product_info) уникальна.
	UpsertItem(ctx context.Context, item OrderItem) error
	// RemoveItems удаляет перечисленные позиции из заказа.
	RemoveItems(ctx context.Context, orderID string, productInfoIDs []string) error
}

// ProductRepository описывает требования к хранилищу товаров магазинов.
type ProductRepository interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (ProductInfo, error)
	// ListByShop возвращает товары магазина.
	ListByShop(ctx context.Context, shopID string) ([]ProductInfo, error)
	// LockQuantities блокирует строки товаров (select for update) и возвращает
	// их текущие остатки. Блокировка держится до конца транзакции.
	LockQuantities(ctx context.Context, ids []string) (map[string]int64, error)
	// AdjustQuantity меняет остаток относительным обновлением
	// (quantity = quantity + delta) силами самого хранилища.
	AdjustQuantity(ctx context.Context, id string, delta int64) error
	// DeleteByShop удаляет все товары магазина (полная замена каталога при импорте).
	DeleteByShop(ctx context.Context, shopID string) error
	// Insert сохраняет новый товар.
	Insert(ctx context.Context, info ProductInfo) error
}

// HistoryRepository хранит append-only историю смен статусов заказов.
type HistoryRepository interface {
	Append(ctx context.Context, rec OrderStatusHistory) error
	// ListByOrder возвращает записи в порядке их создания.
	ListByOrder(ctx context.Context, orderID string) ([]OrderStatusHistory, error)
}

// OutboxEnqueuer сохраняет событие в transactional outbox в рамках текущей транзакции.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// CatalogRepository обслуживает импорт каталога из партнёрских фидов.
type CatalogRepository interface {
	// UpsertShop находит магазин по имени или создаёт новый.
	UpsertShop(ctx context.Context, shop Shop) (Shop, error)
	// UpsertCategory находит категорию по внешнему идентификатору или создаёт новую.
	UpsertCategory(ctx context.Context, category Category) (Category, error)
	// UpsertProduct находит карточку товара по имени или создаёт новую.
	UpsertProduct(ctx context.Context, product Product) (Product, error)
}

// OutboxRepository позволяет воркеру публикации забирать накопленные события.
type OutboxRepository interface {
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
