package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка неизвестного состояния заказа.
	ErrUnknownState = errors.New("unknown order state")
	// Ошибка отсутствующей ссылки на товар в позиции заказа.
	ErrProductInfoRequired = errors.New("product_info_id is required")
	// Ошибка при некорректном количестве товара в позиции (<= 0).
	ErrItemQuantityInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка дублирования пары (order, product_info) в позициях заказа.
	ErrDuplicateOrderItem = errors.New("duplicate order item for product_info")
	// Ошибка отсутствующего магазина у товара.
	ErrShopRequired = errors.New("shop_id is required")
	// Ошибка отрицательного остатка товара.
	ErrQuantityNegative = errors.New("quantity must be non-negative")
	// Ошибка некорректной цены товара (<= 0).
	ErrPriceInvalid = errors.New("price must be greater than zero")
	// Ошибка нечитаемого партнёрского фида.
	ErrFeedInvalid = errors.New("invalid partner feed")

	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден в хранилище.
	ErrProductNotFound = errors.New("product info not found")
	// ErrShopNotFound возвращается, если магазин не найден в хранилище.
	ErrShopNotFound = errors.New("shop not found")

	// ErrInsufficientStock — на складе недостаточно товара для резервирования.
	// Бизнес-ошибка: переход заказа прерывается, резерв не фиксируется частично.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition — запрошенный переход между статусами не разрешён
	// машиной состояний (например, выход из терминального canceled).
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError уточняет ErrInsufficientStock: какой товар не удалось
// зарезервировать и в каком объёме.
type InsufficientStockError struct {
	ProductInfoID string
	Requested     int64
	Available     int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product_info %s: requested %d, available %d",
		e.ProductInfoID, e.Requested, e.Available)
}

// Unwrap позволяет ловить ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// StatusChangeError оборачивает любую ошибку перехода статуса на границе
// OrderService. Единственный тип, который нужно ловить вызывающей стороне;
// вложенная причина доступна через errors.Is/As.
type StatusChangeError struct {
	OrderID string
	From    OrderState
	To      OrderState
	Err     error
}

func (e *StatusChangeError) Error() string {
	return fmt.Sprintf("change order %s status %s -> %s: %v", e.OrderID, e.From, e.To, e.Err)
}

func (e *StatusChangeError) Unwrap() error {
	return e.Err
}

// IsInsufficientStock проверяет, вызвана ли ошибка нехваткой товара на складе.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
