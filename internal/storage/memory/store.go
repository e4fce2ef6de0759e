package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// Store — in-memory хранилище для локальной разработки и тестов.
// Транзакционность моделируется глобальным мьютексом и снимком состояния:
// конкурентные транзакции сериализуются так же, как блокировки строк в БД,
// а ошибка внутри WithinTx откатывает все изменения целиком.
type Store struct {
	mu sync.Mutex

	orders      map[string]domain.Order
	products    map[string]domain.ProductInfo
	history     map[string][]domain.OrderStatusHistory
	outbox      map[string]*outboxRecord
	outboxQueue []string
	shops       map[string]domain.Shop
	categories  map[string]domain.Category
	cards       map[string]domain.Product
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		orders:     make(map[string]domain.Order),
		products:   make(map[string]domain.ProductInfo),
		history:    make(map[string][]domain.OrderStatusHistory),
		outbox:     make(map[string]*outboxRecord),
		shops:      make(map[string]domain.Shop),
		categories: make(map[string]domain.Category),
		cards:      make(map[string]domain.Product),
	}
}

// WithinTx выполняет fn под глобальным мьютексом. При ошибке состояние
// восстанавливается из снимка, сделанного до запуска fn.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type storeSnapshot struct {
	orders      map[string]domain.Order
	products    map[string]domain.ProductInfo
	history     map[string][]domain.OrderStatusHistory
	outbox      map[string]*outboxRecord
	outboxQueue []string
	shops       map[string]domain.Shop
	categories  map[string]domain.Category
	cards       map[string]domain.Product
}

func (s *Store) snapshot() storeSnapshot {
	snap := storeSnapshot{
		orders:      make(map[string]domain.Order, len(s.orders)),
		products:    make(map[string]domain.ProductInfo, len(s.products)),
		history:     make(map[string][]domain.OrderStatusHistory, len(s.history)),
		outbox:      make(map[string]*outboxRecord, len(s.outbox)),
		outboxQueue: append([]string(nil), s.outboxQueue...),
		shops:       make(map[string]domain.Shop, len(s.shops)),
		categories:  make(map[string]domain.Category, len(s.categories)),
		cards:       make(map[string]domain.Product, len(s.cards)),
	}
	for id, order := range s.orders {
		snap.orders[id] = copyOrder(order)
	}
	for id, info := range s.products {
		snap.products[id] = info
	}
	for id, recs := range s.history {
		snap.history[id] = append([]domain.OrderStatusHistory(nil), recs...)
	}
	for id, rec := range s.outbox {
		clone := *rec
		snap.outbox[id] = &clone
	}
	for id, shop := range s.shops {
		snap.shops[id] = shop
	}
	for id, category := range s.categories {
		snap.categories[id] = category
	}
	for id, card := range s.cards {
		snap.cards[id] = card
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.orders = snap.orders
	s.products = snap.products
	s.history = snap.history
	s.outbox = snap.outbox
	s.outboxQueue = snap.outboxQueue
	s.shops = snap.shops
	s.categories = snap.categories
	s.cards = snap.cards
}

func copyOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return order
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (s *Store) PullPending(limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.OutboxMessage, 0, limit)
	for _, id := range s.outboxQueue {
		rec, ok := s.outbox[id]
		if !ok || rec.status != "pending" {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats возвращает размер backlog и возраст самого старого pending-сообщения.
func (s *Store) Stats() (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.OutboxStats
	for _, rec := range s.outbox {
		if rec.status != "pending" {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (s *Store) MarkSent(id string) error {
	return s.markStatus(id, "sent")
}

// MarkFailed фиксирует ошибку публикации.
func (s *Store) MarkFailed(id string) error {
	return s.markStatus(id, "failed")
}

func (s *Store) markStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	rec.status = status
	rec.attemptCnt++
	rec.updatedAt = time.Now().UTC()
	return nil
}

// SeedProducts наполняет хранилище товарами (используется в тестах).
func (s *Store) SeedProducts(infos ...domain.ProductInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, info := range infos {
		s.products[info.ID] = info
	}
}

// SeedOrder сохраняет заказ напрямую (используется в тестах).
func (s *Store) SeedOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.ID] = copyOrder(order)
}

// DeleteProduct удаляет товар из каталога напрямую (используется в тестах).
func (s *Store) DeleteProduct(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

// ProductQuantity возвращает текущий остаток товара (используется в тестах).
func (s *Store) ProductQuantity(id string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.products[id]
	if !ok {
		return 0, false
	}
	return info.Quantity, true
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (s *Store) AllPending() []domain.OutboxMessage {
	msgs, _ := s.PullPending(0)
	return msgs
}

// HistoryByOrder возвращает записи аудита заказа (используется в тестах).
func (s *Store) HistoryByOrder(orderID string) []domain.OrderStatusHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.history[orderID]
	result := append([]domain.OrderStatusHistory(nil), recs...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ChangedAt.Before(result[j].ChangedAt)
	})
	return result
}

var (
	_ domain.UnitOfWork       = (*Store)(nil)
	_ domain.OutboxRepository = (*Store)(nil)
)
