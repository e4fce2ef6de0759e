package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// memTx реализует domain.Tx поверх Store. Мьютекс хранилища уже удерживается
// на всём протяжении транзакции, поэтому репозитории работают с картами напрямую.
type memTx struct {
	store *Store
}

func (t *memTx) Orders() domain.OrderRepository     { return &orderRepo{store: t.store} }
func (t *memTx) Products() domain.ProductRepository { return &productRepo{store: t.store} }
func (t *memTx) History() domain.HistoryRepository  { return &historyRepo{store: t.store} }
func (t *memTx) Outbox() domain.OutboxEnqueuer      { return &outboxRepo{store: t.store} }
func (t *memTx) Catalog() domain.CatalogRepository  { return &catalogRepo{store: t.store} }

type orderRepo struct {
	store *Store
}

func (r *orderRepo) Create(_ context.Context, order domain.Order) error {
	if _, exists := r.store.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	r.store.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *orderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (r *orderRepo) GetBasket(_ context.Context, userID string) (domain.Order, error) {
	for _, order := range r.store.orders {
		if order.UserID == userID && order.State == domain.OrderStateBasket {
			return copyOrder(order), nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (r *orderRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if order.UserID != userID {
			continue
		}
		result = append(result, copyOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *orderRepo) UpdateState(_ context.Context, id string, state domain.OrderState) error {
	order, ok := r.store.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.State = state
	r.store.orders[id] = order
	return nil
}

func (r *orderRepo) UpsertItem(_ context.Context, item domain.OrderItem) error {
	order, ok := r.store.orders[item.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}

	order = copyOrder(order)
	for i := range order.Items {
		if order.Items[i].ProductInfoID == item.ProductInfoID {
			order.Items[i].Quantity += item.Quantity
			r.store.orders[item.OrderID] = order
			return nil
		}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	order.Items = append(order.Items, item)
	r.store.orders[item.OrderID] = order
	return nil
}

func (r *orderRepo) RemoveItems(_ context.Context, orderID string, productInfoIDs []string) error {
	order, ok := r.store.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}

	drop := make(map[string]bool, len(productInfoIDs))
	for _, id := range productInfoIDs {
		drop[id] = true
	}

	kept := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if !drop[item.ProductInfoID] {
			kept = append(kept, item)
		}
	}
	order.Items = kept
	r.store.orders[orderID] = order
	return nil
}

type productRepo struct {
	store *Store
}

func (r *productRepo) Get(_ context.Context, id string) (domain.ProductInfo, error) {
	info, ok := r.store.products[id]
	if !ok {
		return domain.ProductInfo{}, domain.ErrProductNotFound
	}
	return info, nil
}

func (r *productRepo) ListByShop(_ context.Context, shopID string) ([]domain.ProductInfo, error) {
	result := make([]domain.ProductInfo, 0)
	for _, info := range r.store.products {
		if info.ShopID == shopID {
			result = append(result, info)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExternalID < result[j].ExternalID })
	return result, nil
}

// LockQuantities возвращает остатки существующих товаров. Мьютекс хранилища
// уже обеспечивает ту же сериализацию, что и блокировки строк в БД.
func (r *productRepo) LockQuantities(_ context.Context, ids []string) (map[string]int64, error) {
	result := make(map[string]int64, len(ids))
	for _, id := range ids {
		if info, ok := r.store.products[id]; ok {
			result[id] = info.Quantity
		}
	}
	return result, nil
}

func (r *productRepo) AdjustQuantity(_ context.Context, id string, delta int64) error {
	info, ok := r.store.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	if info.Quantity+delta < 0 {
		// Зеркало CHECK-ограничения схемы: остаток не может стать отрицательным.
		return domain.ErrQuantityNegative
	}
	info.Quantity += delta
	r.store.products[id] = info
	return nil
}

func (r *productRepo) DeleteByShop(_ context.Context, shopID string) error {
	for id, info := range r.store.products {
		if info.ShopID == shopID {
			delete(r.store.products, id)
		}
	}
	return nil
}

func (r *productRepo) Insert(_ context.Context, info domain.ProductInfo) error {
	if _, exists := r.store.products[info.ID]; exists {
		return fmt.Errorf("product info %s already exists", info.ID)
	}
	r.store.products[info.ID] = info
	return nil
}

type historyRepo struct {
	store *Store
}

func (r *historyRepo) Append(_ context.Context, rec domain.OrderStatusHistory) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.store.history[rec.OrderID] = append(r.store.history[rec.OrderID], rec)
	return nil
}

func (r *historyRepo) ListByOrder(_ context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	recs := r.store.history[orderID]
	result := append([]domain.OrderStatusHistory(nil), recs...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ChangedAt.Before(result[j].ChangedAt)
	})
	return result, nil
}

type outboxRepo struct {
	store *Store
}

func (r *outboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.store.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    "pending",
		createdAt: now,
		updatedAt: now,
	}
	r.store.outboxQueue = append(r.store.outboxQueue, msg.ID)
	return msg, nil
}

type catalogRepo struct {
	store *Store
}

func (r *catalogRepo) UpsertShop(_ context.Context, shop domain.Shop) (domain.Shop, error) {
	for _, existing := range r.store.shops {
		if existing.Name == shop.Name {
			if shop.URL != "" {
				existing.URL = shop.URL
			}
			r.store.shops[existing.ID] = existing
			return existing, nil
		}
	}
	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	r.store.shops[shop.ID] = shop
	return shop, nil
}

func (r *catalogRepo) UpsertCategory(_ context.Context, category domain.Category) (domain.Category, error) {
	for _, existing := range r.store.categories {
		if existing.ExternalID == category.ExternalID {
			existing.Name = category.Name
			r.store.categories[existing.ID] = existing
			return existing, nil
		}
	}
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	r.store.categories[category.ID] = category
	return category, nil
}

func (r *catalogRepo) UpsertProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	for _, existing := range r.store.cards {
		if existing.Name == product.Name {
			return existing, nil
		}
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	r.store.cards[product.ID] = product
	return product, nil
}

var _ domain.Tx = (*memTx)(nil)
