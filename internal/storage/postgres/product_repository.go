package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type productRepository struct {
	tx *sql.Tx
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.ProductInfo, error) {
	var info domain.ProductInfo

	err := r.tx.QueryRowContext(ctx, `
		SELECT id, shop_id, product_id, external_id, model, quantity, price_minor, price_rrc_minor
		FROM product_infos
		WHERE id = $1
	`, id).Scan(
		&info.ID, &info.ShopID, &info.ProductID, &info.ExternalID,
		&info.Model, &info.Quantity, &info.PriceMinor, &info.PriceRRCMinor,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductInfo{}, domain.ErrProductNotFound
		}
		return domain.ProductInfo{}, fmt.Errorf("select product info: %w", err)
	}

	return info, nil
}

func (r *productRepository) ListByShop(ctx context.Context, shopID string) ([]domain.ProductInfo, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, shop_id, product_id, external_id, model, quantity, price_minor, price_rrc_minor
		FROM product_infos
		WHERE shop_id = $1
		ORDER BY external_id ASC
	`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list product infos: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ProductInfo, 0)
	for rows.Next() {
		var info domain.ProductInfo
		if err := rows.Scan(
			&info.ID, &info.ShopID, &info.ProductID, &info.ExternalID,
			&info.Model, &info.Quantity, &info.PriceMinor, &info.PriceRRCMinor,
		); err != nil {
			return nil, fmt.Errorf("scan product info: %w", err)
		}
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product infos: %w", err)
	}

	return result, nil
}

// LockQuantities берёт блокировки строк всех перечисленных товаров в
// детерминированном порядке (ORDER BY id). Несуществующие идентификаторы
// просто отсутствуют в результате.
func (r *productRepository) LockQuantities(ctx context.Context, ids []string) (map[string]int64, error) {
	if len(ids) == 0 {
		return map[string]int64{}, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}

	rows, err := r.tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, quantity
		FROM product_infos
		WHERE id IN (%s)
		ORDER BY id
		FOR UPDATE
	`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("lock product quantities: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64, len(ids))
	for rows.Next() {
		var (
			id       string
			quantity int64
		)
		if err := rows.Scan(&id, &quantity); err != nil {
			return nil, fmt.Errorf("scan locked quantity: %w", err)
		}
		result[id] = quantity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked quantities: %w", err)
	}

	return result, nil
}

func (r *productRepository) AdjustQuantity(ctx context.Context, id string, delta int64) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE product_infos
		SET quantity = quantity + $2
		WHERE id = $1
	`, id, delta)
	if err != nil {
		if isCheckViolation(err) {
			// CHECK (quantity >= 0) в схеме.
			return domain.ErrQuantityNegative
		}
		return fmt.Errorf("adjust product quantity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

func (r *productRepository) DeleteByShop(ctx context.Context, shopID string) error {
	if _, err := r.tx.ExecContext(ctx, `
		DELETE FROM product_infos
		WHERE shop_id = $1
	`, shopID); err != nil {
		return fmt.Errorf("delete product infos by shop: %w", err)
	}
	return nil
}

func (r *productRepository) Insert(ctx context.Context, info domain.ProductInfo) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO product_infos (
			id, shop_id, product_id, external_id, model, quantity, price_minor, price_rrc_minor
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		info.ID, info.ShopID, info.ProductID, info.ExternalID,
		info.Model, info.Quantity, info.PriceMinor, info.PriceRRCMinor,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product info %s already exists: %w", info.ID, err)
		}
		return fmt.Errorf("insert product info: %w", err)
	}

	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
