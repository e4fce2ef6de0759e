package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// txRepos реализует domain.Tx поверх открытой SQL-транзакции. Все репозитории
// работают через один *sql.Tx, поэтому видят незакоммиченные изменения друг
// друга и разделяют взятые блокировки строк.
type txRepos struct {
	tx *sql.Tx
}

func (t *txRepos) Orders() domain.OrderRepository     { return &orderRepository{tx: t.tx} }
func (t *txRepos) Products() domain.ProductRepository { return &productRepository{tx: t.tx} }
func (t *txRepos) History() domain.HistoryRepository  { return &historyRepository{tx: t.tx} }
func (t *txRepos) Outbox() domain.OutboxEnqueuer      { return &outboxEnqueuer{tx: t.tx} }
func (t *txRepos) Catalog() domain.CatalogRepository  { return &catalogRepository{tx: t.tx} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}

var _ domain.Tx = (*txRepos)(nil)
