package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/order"
)

const headerUserID = "X-User-ID"

// OrderHandler обслуживает заказы и корзину пользователя.
type OrderHandler struct {
	orders *order.Service
	logger *log.Entry
}

func NewOrderHandler(orders *order.Service, logger *log.Entry) *OrderHandler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &OrderHandler{
		orders: orders,
		logger: logger.WithField("component", "api.orders"),
	}
}

func (h *OrderHandler) RegisterRoutes(router gin.IRouter) {
	orders := router.Group("/orders")
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/status", h.ChangeStatus)
	}
	basket := router.Group("/basket")
	{
		basket.GET("", h.GetBasket)
		basket.POST("/items", h.AddBasketItems)
		basket.DELETE("/items", h.RemoveBasketItems)
	}
}

type changeStatusRequest struct {
	Status    string `json:"status" binding:"required"`
	ChangedBy string `json:"changed_by"`
	Comment   string `json:"comment"`
}

// ChangeStatus переводит заказ в новый статус. Побочные эффекты (резерв,
// история, событие) выполняются сервисом в одной транзакции.
func (h *OrderHandler) ChangeStatus(c *gin.Context) {
	orderID := c.Param("id")

	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Status: "error", Message: "invalid request body: " + err.Error()})
		return
	}

	updated, err := h.orders.ChangeStatus(c.Request.Context(), orderID, domain.OrderState(req.Status), req.ChangedBy, req.Comment)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", orderID).Warn("смена статуса заказа отклонена")
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toOrderView(updated))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")

	found, history, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"order":   toOrderView(found),
		"history": toHistoryViews(history),
	})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID := c.GetHeader(headerUserID)

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, ok := parseLimit(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, Response{Status: "error", Message: "invalid limit parameter"})
			return
		}
		limit = parsed
	}

	orders, err := h.orders.ListUserOrders(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toOrderViews(orders))
}

func (h *OrderHandler) GetBasket(c *gin.Context) {
	userID := c.GetHeader(headerUserID)

	basket, err := h.orders.GetOrCreateBasket(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toOrderView(basket))
}

type basketItemsRequest struct {
	Items []struct {
		ProductInfoID string `json:"product_info_id"`
		Quantity      int64  `json:"quantity"`
	} `json:"items" binding:"required"`
}

func (h *OrderHandler) AddBasketItems(c *gin.Context) {
	userID := c.GetHeader(headerUserID)

	var req basketItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Status: "error", Message: "invalid request body: " + err.Error()})
		return
	}

	items := make([]order.BasketItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, order.BasketItem{
			ProductInfoID: item.ProductInfoID,
			Quantity:      item.Quantity,
		})
	}

	basket, err := h.orders.AddItems(c.Request.Context(), userID, items)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toOrderView(basket))
}

type removeItemsRequest struct {
	ProductInfoIDs []string `json:"product_info_ids" binding:"required"`
}

func (h *OrderHandler) RemoveBasketItems(c *gin.Context) {
	userID := c.GetHeader(headerUserID)

	var req removeItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Status: "error", Message: "invalid request body: " + err.Error()})
		return
	}

	basket, err := h.orders.RemoveItems(c.Request.Context(), userID, req.ProductInfoIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toOrderView(basket))
}

func parseLimit(raw string) (int, bool) {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	if limit > 100 {
		limit = 100
	}
	return limit, true
}
