package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type historyRepository struct {
	tx *sql.Tx
}

func (r *historyRepository) Append(ctx context.Context, rec domain.OrderStatusHistory) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO order_status_history (
			id, order_id, old_status, new_status, changed_by, comment, changed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		rec.ID, rec.OrderID, string(rec.OldStatus), string(rec.NewStatus),
		rec.ChangedBy, rec.Comment, rec.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}

	return nil
}

func (r *historyRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, order_id, old_status, new_status, changed_by, comment, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OrderStatusHistory, 0)
	for rows.Next() {
		var (
			rec       domain.OrderStatusHistory
			oldStatus string
			newStatus string
		)
		if err := rows.Scan(&rec.ID, &rec.OrderID, &oldStatus, &newStatus, &rec.ChangedBy, &rec.Comment, &rec.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		rec.OldStatus = domain.OrderState(oldStatus)
		rec.NewStatus = domain.OrderState(newStatus)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}

	return result, nil
}

var _ domain.HistoryRepository = (*historyRepository)(nil)
