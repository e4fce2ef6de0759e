package domain

// EventOrderStatusChanged — тип события, публикуемого при каждом успешном
// переходе статуса заказа.
const EventOrderStatusChanged = "OrderStatusChanged"

// OrderStatusEvent — полезная нагрузка события смены статуса.
// Потребитель (сервис уведомлений) отвечает за e-mail/алерты самостоятельно;
// контракт ядра заканчивается на постановке события в outbox.
type OrderStatusEvent struct {
	OrderID   string     `json:"order_id"`
	OldStatus OrderState `json:"old_status"`
	NewStatus OrderState `json:"new_status"`
	UserID    string     `json:"user_id"`
}
