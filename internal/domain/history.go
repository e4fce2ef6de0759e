package domain

import "time"

// OrderStatusHistory — неизменяемая запись аудита о смене статуса заказа.
// Создаётся ровно один раз на успешный переход, никогда не изменяется и не удаляется.
type OrderStatusHistory struct {
	ID        string
	OrderID   string
	OldStatus OrderState
	NewStatus OrderState
	ChangedBy string
	Comment   string
	ChangedAt time.Time
}
