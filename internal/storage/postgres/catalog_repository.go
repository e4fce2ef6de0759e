package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type catalogRepository struct {
	tx *sql.Tx
}

func (r *catalogRepository) UpsertShop(ctx context.Context, shop domain.Shop) (domain.Shop, error) {
	var existing domain.Shop
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, name, url, accepting_orders, created_at
		FROM shops
		WHERE name = $1
	`, shop.Name).Scan(&existing.ID, &existing.Name, &existing.URL, &existing.AcceptingOrders, &existing.CreatedAt)
	if err == nil {
		if shop.URL != "" && shop.URL != existing.URL {
			if _, err := r.tx.ExecContext(ctx, `UPDATE shops SET url = $2 WHERE id = $1`, existing.ID, shop.URL); err != nil {
				return domain.Shop{}, fmt.Errorf("update shop url: %w", err)
			}
			existing.URL = shop.URL
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Shop{}, fmt.Errorf("select shop: %w", err)
	}

	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	if _, err := r.tx.ExecContext(ctx, `
		INSERT INTO shops (id, name, url, accepting_orders, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, shop.ID, shop.Name, shop.URL, shop.AcceptingOrders, shop.CreatedAt); err != nil {
		return domain.Shop{}, fmt.Errorf("insert shop: %w", err)
	}

	return shop, nil
}

func (r *catalogRepository) UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	var existing domain.Category
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, external_id, name
		FROM categories
		WHERE external_id = $1
	`, category.ExternalID).Scan(&existing.ID, &existing.ExternalID, &existing.Name)
	if err == nil {
		if category.Name != existing.Name {
			if _, err := r.tx.ExecContext(ctx, `UPDATE categories SET name = $2 WHERE id = $1`, existing.ID, category.Name); err != nil {
				return domain.Category{}, fmt.Errorf("update category name: %w", err)
			}
			existing.Name = category.Name
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}

	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if _, err := r.tx.ExecContext(ctx, `
		INSERT INTO categories (id, external_id, name)
		VALUES ($1,$2,$3)
	`, category.ID, category.ExternalID, category.Name); err != nil {
		return domain.Category{}, fmt.Errorf("insert category: %w", err)
	}

	return category, nil
}

func (r *catalogRepository) UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	var existing domain.Product
	var categoryID sql.NullString
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, name, category_id
		FROM products
		WHERE name = $1
	`, product.Name).Scan(&existing.ID, &existing.Name, &categoryID)
	if err == nil {
		existing.CategoryID = categoryID.String
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, err := r.tx.ExecContext(ctx, `
		INSERT INTO products (id, name, category_id)
		VALUES ($1,$2,NULLIF($3,''))
	`, product.ID, product.Name, product.CategoryID); err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return product, nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
