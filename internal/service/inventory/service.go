package inventory

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Service отвечает за резервирование и возврат складских остатков.
// Все позиции заказа обрабатываются как единое атомарное целое: либо
// резервируется всё, либо ничего.
type Service struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// NewService создаёт сервис управления складскими остатками.
func NewService(uow domain.UnitOfWork, logger *log.Entry, m *metrics.OrderMetrics) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Service{
		uow:     uow,
		logger:  logger,
		metrics: m,
	}
}

// ReserveForOrder резервирует товары для заказа в собственной транзакции.
func (s *Service) ReserveForOrder(ctx context.Context, order domain.Order) error {
	return s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		return s.ReserveInTx(ctx, tx, order)
	})
}

// ReleaseForOrder возвращает резерв на склад в собственной транзакции.
func (s *Service) ReleaseForOrder(ctx context.Context, order domain.Order) error {
	return s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		return s.ReleaseInTx(ctx, tx, order)
	})
}

// ReserveInTx резервирует товары в рамках уже открытой транзакции вызывающей
// стороны. Блокирует строки всех затронутых товаров, проверяет доступность и
// уменьшает остатки относительным обновлением.
func (s *Service) ReserveInTx(ctx context.Context, tx domain.Tx, order domain.Order) error {
	required, ids := aggregateRequired(order.Items)
	if len(ids) == 0 {
		return nil
	}

	available, err := tx.Products().LockQuantities(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock product quantities: %w", err)
	}

	for _, id := range ids {
		need := required[id]
		have := available[id]
		if have < need {
			if s.metrics != nil {
				s.metrics.RecordInsufficientStock()
			}
			s.logger.WithFields(log.Fields{
				"order_id":        order.ID,
				"product_info_id": id,
				"requested":       need,
				"available":       have,
			}).Warn("недостаточно товара для резервирования")
			return &domain.InsufficientStockError{
				ProductInfoID: id,
				Requested:     need,
				Available:     have,
			}
		}
	}

	for _, id := range ids {
		if err := tx.Products().AdjustQuantity(ctx, id, -required[id]); err != nil {
			return fmt.Errorf("decrement quantity for %s: %w", id, err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordReservation("reserved")
	}
	return nil
}

// ReleaseInTx возвращает резерв в рамках транзакции вызывающей стороны.
// Проверка доступности не нужна: возврат всегда допустим. Гарантию
// однократного вызова на отмену даёт машина состояний OrderService.
// Товары, исчезнувшие из каталога (например, после переимпорта фида
// партнёра), пропускаются: отмена заказа не должна блокироваться.
func (s *Service) ReleaseInTx(ctx context.Context, tx domain.Tx, order domain.Order) error {
	required, ids := aggregateRequired(order.Items)
	if len(ids) == 0 {
		return nil
	}

	existing, err := tx.Products().LockQuantities(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock product quantities: %w", err)
	}

	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			s.logger.WithFields(log.Fields{
				"order_id":        order.ID,
				"product_info_id": id,
			}).Warn("товар удалён из каталога, возврат резерва пропущен")
			continue
		}
		if err := tx.Products().AdjustQuantity(ctx, id, required[id]); err != nil {
			return fmt.Errorf("increment quantity for %s: %w", id, err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordReservation("released")
	}
	return nil
}

// aggregateRequired суммирует требуемое количество по каждому товару.
// Уникальность пары (order, product_info) сейчас исключает дубли, но
// агрегация сохранена на случай ослабления этого ограничения.
// Идентификаторы возвращаются отсортированными: детерминированный порядок
// блокировок исключает взаимные блокировки конкурентных резервирований.
func aggregateRequired(items []domain.OrderItem) (map[string]int64, []string) {
	required := make(map[string]int64, len(items))
	for _, item := range items {
		required[item.ProductInfoID] += item.Quantity
	}

	ids := make([]string, 0, len(required))
	for id := range required {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return required, ids
}
