package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// StockManager выполняет складские побочные эффекты переходов в рамках
// транзакции, открытой сервисом заказов.
type StockManager interface {
	ReserveInTx(ctx context.Context, tx domain.Tx, order domain.Order) error
	ReleaseInTx(ctx context.Context, tx domain.Tx, order domain.Order) error
}

// BasketItem — запрос на добавление товара в корзину.
type BasketItem struct {
	ProductInfoID string
	Quantity      int64
}

// Service управляет жизненным циклом заказа: машина состояний, корзина,
// история и публикация событий через transactional outbox.
type Service struct {
	uow     domain.UnitOfWork
	stock   StockManager
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// NewService создаёт сервис заказов.
func NewService(uow domain.UnitOfWork, stock StockManager, logger *log.Entry, m *metrics.OrderMetrics) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order")
	}
	return &Service{
		uow:     uow,
		stock:   stock,
		logger:  logger,
		metrics: m,
	}
}

// ChangeStatus переводит заказ в новое состояние. Складской побочный эффект,
// обновление статуса, запись истории и событие outbox выполняются в одной
// транзакции: частично применённых переходов не существует.
//
// Повторный вызов с текущим состоянием заказа — идемпотентный no-op: без
// записи истории и без события.
func (s *Service) ChangeStatus(ctx context.Context, orderID string, newState domain.OrderState, changedBy, comment string) (domain.Order, error) {
	if !newState.Valid() {
		return domain.Order{}, &domain.StatusChangeError{
			OrderID: orderID,
			To:      newState,
			Err:     domain.ErrUnknownState,
		}
	}

	started := time.Now()
	var result domain.Order
	var from domain.OrderState

	err := s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		current, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		from = current.State
		result = current

		if current.State == newState {
			if s.metrics != nil {
				s.metrics.RecordTransitionNoop()
			}
			s.logger.WithFields(log.Fields{
				"order_id": orderID,
				"status":   newState,
			}).Debug("статус уже установлен, переход пропущен")
			return nil
		}

		if err := validateTransition(current.State, newState); err != nil {
			return err
		}

		switch {
		case current.State == domain.OrderStateBasket && newState == domain.OrderStateNew:
			if err := s.stock.ReserveInTx(ctx, tx, current); err != nil {
				return err
			}
		case newState == domain.OrderStateCanceled:
			if err := s.stock.ReleaseInTx(ctx, tx, current); err != nil {
				return err
			}
		}

		if err := tx.Orders().UpdateState(ctx, orderID, newState); err != nil {
			return fmt.Errorf("update order state: %w", err)
		}

		if err := tx.History().Append(ctx, domain.OrderStatusHistory{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			OldStatus: current.State,
			NewStatus: newState,
			ChangedBy: changedBy,
			Comment:   comment,
			ChangedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("append status history: %w", err)
		}

		payload, err := json.Marshal(domain.OrderStatusEvent{
			OrderID:   orderID,
			OldStatus: current.State,
			NewStatus: newState,
			UserID:    current.UserID,
		})
		if err != nil {
			return fmt.Errorf("marshal status event: %w", err)
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   orderID,
			EventType:     domain.EventOrderStatusChanged,
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue status event: %w", err)
		}

		result.State = newState
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTransitionFailed()
		}
		return domain.Order{}, &domain.StatusChangeError{
			OrderID: orderID,
			From:    from,
			To:      newState,
			Err:     err,
		}
	}

	if from != newState {
		if s.metrics != nil {
			s.metrics.RecordTransition(string(from), string(newState))
			s.metrics.RecordHistoryRecord()
			s.metrics.RecordOutboxEvent()
			s.metrics.RecordChangeStatusDuration(time.Since(started))
		}
		s.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"old_status": from,
			"new_status": newState,
			"changed_by": changedBy,
		}).Info("статус заказа изменён")
	}

	return result, nil
}

// validateTransition проверяет переход машиной состояний. Терминальный
// canceled покидать нельзя, возврат в корзину запрещён. Остальные переходы
// разрешены: порядок confirmed/assembled/sent определяют операторы.
func validateTransition(from, to domain.OrderState) error {
	if from == domain.OrderStateCanceled {
		return fmt.Errorf("order is canceled: %w", domain.ErrInvalidTransition)
	}
	if to == domain.OrderStateBasket {
		return fmt.Errorf("cannot return order to basket: %w", domain.ErrInvalidTransition)
	}
	return nil
}

// GetOrCreateBasket возвращает корзину пользователя, создавая её при первом
// обращении. Get-or-create граница поддерживает инвариант: не более одной
// корзины на пользователя.
func (s *Service) GetOrCreateBasket(ctx context.Context, userID string) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}

	var basket domain.Order
	err := s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		existing, err := tx.Orders().GetBasket(ctx, userID)
		if err == nil {
			basket = existing
			return nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}

		basket = domain.Order{
			ID:        uuid.NewString(),
			UserID:    userID,
			State:     domain.OrderStateBasket,
			CreatedAt: time.Now().UTC(),
		}
		return tx.Orders().Create(ctx, basket)
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("get or create basket for user %s: %w", userID, err)
	}
	return basket, nil
}

// AddItems добавляет товары в корзину пользователя. Повторное добавление того
// же товара увеличивает количество существующей позиции.
func (s *Service) AddItems(ctx context.Context, userID string, items []BasketItem) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}
	for _, item := range items {
		if item.ProductInfoID == "" {
			return domain.Order{}, domain.ErrProductInfoRequired
		}
		if item.Quantity <= 0 {
			return domain.Order{}, domain.ErrItemQuantityInvalid
		}
	}

	var basket domain.Order
	err := s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		existing, err := tx.Orders().GetBasket(ctx, userID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			existing = domain.Order{
				ID:        uuid.NewString(),
				UserID:    userID,
				State:     domain.OrderStateBasket,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Orders().Create(ctx, existing); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		for _, item := range items {
			if _, err := tx.Products().Get(ctx, item.ProductInfoID); err != nil {
				return err
			}
			if err := tx.Orders().UpsertItem(ctx, domain.OrderItem{
				OrderID:       existing.ID,
				ProductInfoID: item.ProductInfoID,
				Quantity:      item.Quantity,
				CreatedAt:     time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("upsert basket item: %w", err)
			}
		}

		basket, err = tx.Orders().Get(ctx, existing.ID)
		return err
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("add items to basket for user %s: %w", userID, err)
	}
	return basket, nil
}

// RemoveItems удаляет перечисленные позиции из корзины пользователя.
func (s *Service) RemoveItems(ctx context.Context, userID string, productInfoIDs []string) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}

	var basket domain.Order
	err := s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		existing, err := tx.Orders().GetBasket(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Orders().RemoveItems(ctx, existing.ID, productInfoIDs); err != nil {
			return err
		}
		basket, err = tx.Orders().Get(ctx, existing.ID)
		return err
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("remove items from basket for user %s: %w", userID, err)
	}
	return basket, nil
}

// GetOrder возвращает заказ вместе с историей смен статусов.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, []domain.OrderStatusHistory, error) {
	var (
		result  domain.Order
		history []domain.OrderStatusHistory
	)
	err := s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		recs, err := tx.History().ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		result = order
		history = recs
		return nil
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	return result, history, nil
}

// ListUserOrders возвращает заказы пользователя, новые первыми.
func (s *Service) ListUserOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}

	var orders []domain.Order
	err := s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		orders, err = tx.Orders().ListByUser(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list orders for user %s: %w", userID, err)
	}
	return orders, nil
}
