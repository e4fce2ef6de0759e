package domain

import "time"

// OrderState описывает жизненный цикл заказа от корзины до доставки.
type OrderState string

const (
	// OrderStateBasket — корзина: единственное состояние до оформления заказа.
	OrderStateBasket OrderState = "basket"
	// OrderStateNew — заказ оформлен, товары зарезервированы на складе.
	OrderStateNew OrderState = "new"
	// OrderStateConfirmed — заказ подтверждён менеджером.
	OrderStateConfirmed OrderState = "confirmed"
	// OrderStateAssembled — заказ собран на складе.
	OrderStateAssembled OrderState = "assembled"
	// OrderStateSent — заказ передан в доставку.
	OrderStateSent OrderState = "sent"
	// OrderStateDelivered — заказ доставлен; терминальное состояние без побочных эффектов.
	OrderStateDelivered OrderState = "delivered"
	// OrderStateCanceled — заказ отменён; терминальное состояние, резерв возвращается на склад.
	OrderStateCanceled OrderState = "canceled"
)

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s OrderState) Valid() bool {
	switch s {
	case OrderStateBasket, OrderStateNew, OrderStateConfirmed, OrderStateAssembled,
		OrderStateSent, OrderStateDelivered, OrderStateCanceled:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
// Пара (order, product_info) уникальна: количество меняется явным обновлением,
// а не добавлением дублирующих строк.
type OrderItem struct {
	OrderID       string
	ProductInfoID string
	Quantity      int64
	CreatedAt     time.Time
}

// Order агрегирует состояние заказа и его позиции.
// У пользователя одновременно существует не более одного заказа в состоянии
// basket; инвариант обеспечивается get-or-create семантикой на границе.
type Order struct {
	ID        string
	UserID    string
	State     OrderState
	Contact   string
	Items     []OrderItem
	CreatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if !o.State.Valid() {
		errs = append(errs, ErrUnknownState)
	}

	seen := make(map[string]bool, len(o.Items))
	for _, item := range o.Items {
		if item.ProductInfoID == "" {
			errs = append(errs, ErrProductInfoRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQuantityInvalid)
		}
		if seen[item.ProductInfoID] {
			errs = append(errs, ErrDuplicateOrderItem)
		}
		seen[item.ProductInfoID] = true
	}

	return errs
}

// TotalQuantity возвращает суммарное количество товаров в заказе.
func (o *Order) TotalQuantity() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}
