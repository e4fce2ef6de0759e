package domain

import "time"

// Shop представляет магазин-партнёр, поставляющий товары через YAML-фиды.
type Shop struct {
	ID              string
	Name            string
	URL             string
	AcceptingOrders bool
	CreatedAt       time.Time
}

// Category — категория товаров; ExternalID приходит из фида партнёра.
type Category struct {
	ID         string
	ExternalID int64
	Name       string
}

// Product — базовая карточка товара. Цена и остатки хранятся в ProductInfo
// отдельно для каждого магазина.
type Product struct {
	ID         string
	Name       string
	CategoryID string
}

// ProductInfo — товар в конкретном магазине: цена, остаток, внешний идентификатор.
// Quantity — единственный разделяемый изменяемый ресурс в системе; меняется
// только через блокировку строки и относительное обновление, никогда через
// чтение-изменение-запись в памяти приложения.
type ProductInfo struct {
	ID            string
	ShopID        string
	ProductID     string
	ExternalID    int64
	Model         string
	Quantity      int64
	PriceMinor    int64
	PriceRRCMinor int64
}

// Available сообщает, есть ли товар в наличии.
func (p *ProductInfo) Available() bool {
	return p.Quantity > 0
}

// Validate проверяет, корректно ли заполнены ключевые поля товара.
func (p *ProductInfo) Validate() []error {
	var errs []error

	if p.ShopID == "" {
		errs = append(errs, ErrShopRequired)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrQuantityNegative)
	}
	if p.PriceMinor <= 0 {
		errs = append(errs, ErrPriceInvalid)
	}
	if p.PriceRRCMinor <= 0 {
		errs = append(errs, ErrPriceInvalid)
	}

	return errs
}
