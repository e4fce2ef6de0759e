package api

import (
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type orderItemView struct {
	ProductInfoID string `json:"product_info_id"`
	Quantity      int64  `json:"quantity"`
}

type orderView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	State     string          `json:"state"`
	Contact   string          `json:"contact,omitempty"`
	Items     []orderItemView `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

type historyView struct {
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedBy string    `json:"changed_by,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type productInfoView struct {
	ID            string `json:"id"`
	ShopID        string `json:"shop_id"`
	ProductID     string `json:"product_id"`
	ExternalID    int64  `json:"external_id"`
	Model         string `json:"model,omitempty"`
	Quantity      int64  `json:"quantity"`
	PriceMinor    int64  `json:"price_minor"`
	PriceRRCMinor int64  `json:"price_rrc_minor"`
}

func toOrderView(o domain.Order) orderView {
	items := make([]orderItemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemView{
			ProductInfoID: item.ProductInfoID,
			Quantity:      item.Quantity,
		})
	}
	return orderView{
		ID:        o.ID,
		UserID:    o.UserID,
		State:     string(o.State),
		Contact:   o.Contact,
		Items:     items,
		CreatedAt: o.CreatedAt,
	}
}

func toOrderViews(orders []domain.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	return views
}

func toHistoryViews(records []domain.OrderStatusHistory) []historyView {
	views := make([]historyView, 0, len(records))
	for _, r := range records {
		views = append(views, historyView{
			OldStatus: string(r.OldStatus),
			NewStatus: string(r.NewStatus),
			ChangedBy: r.ChangedBy,
			Comment:   r.Comment,
			ChangedAt: r.ChangedAt,
		})
	}
	return views
}

func toProductInfoViews(infos []domain.ProductInfo) []productInfoView {
	views := make([]productInfoView, 0, len(infos))
	for _, p := range infos {
		views = append(views, productInfoView{
			ID:            p.ID,
			ShopID:        p.ShopID,
			ProductID:     p.ProductID,
			ExternalID:    p.ExternalID,
			Model:         p.Model,
			Quantity:      p.Quantity,
			PriceMinor:    p.PriceMinor,
			PriceRRCMinor: p.PriceRRCMinor,
		})
	}
	return views
}
