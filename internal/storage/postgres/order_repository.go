package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type orderRepository struct {
	tx *sql.Tx
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, state, contact, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`,
		order.ID, order.UserID, string(order.State), order.Contact, order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s already exists: %w", order.ID, err)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if err := r.UpsertItem(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.scanOrder(ctx, `
		SELECT id, user_id, state, contact, created_at
		FROM orders
		WHERE id = $1
	`, id)
}

func (r *orderRepository) GetBasket(ctx context.Context, userID string) (domain.Order, error) {
	return r.scanOrder(ctx, `
		SELECT id, user_id, state, contact, created_at
		FROM orders
		WHERE user_id = $1 AND state = 'basket'
	`, userID)
}

func (r *orderRepository) scanOrder(ctx context.Context, query string, arg any) (domain.Order, error) {
	var order domain.Order
	var state string

	err := r.tx.QueryRowContext(ctx, query, arg).Scan(
		&order.ID, &order.UserID, &state, &order.Contact, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.State = domain.OrderState(state)

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	query := `
		SELECT id, user_id, state, contact, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.tx.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.tx.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var order domain.Order
		var state string
		if err := rows.Scan(&order.ID, &order.UserID, &state, &order.Contact, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.State = domain.OrderState(state)

		items, err := r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) UpdateState(ctx context.Context, id string, state domain.OrderState) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE orders
		SET state = $2
		WHERE id = $1
	`, id, string(state))
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

func (r *orderRepository) UpsertItem(ctx context.Context, item domain.OrderItem) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO order_items (order_id, product_info_id, quantity, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (order_id, product_info_id)
		DO UPDATE SET quantity = order_items.quantity + EXCLUDED.quantity
	`,
		item.OrderID, item.ProductInfoID, item.Quantity, createdAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order item: %w", err)
	}

	return nil
}

func (r *orderRepository) RemoveItems(ctx context.Context, orderID string, productInfoIDs []string) error {
	if len(productInfoIDs) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(productInfoIDs))
	args := make([]any, 0, len(productInfoIDs)+1)
	args = append(args, orderID)
	for i, id := range productInfoIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, id)
	}

	_, err := r.tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM order_items
		WHERE order_id = $1 AND product_info_id IN (%s)
	`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return fmt.Errorf("remove order items: %w", err)
	}

	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT order_id, product_info_id, quantity, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, product_info_id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductInfoID, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
