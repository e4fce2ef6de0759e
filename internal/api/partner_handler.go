package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/service/importer"
)

// Фиды партнёров не бывают большими, но ограничение защищает от случайной
// загрузки произвольного файла.
const maxFeedBytes = 8 << 20

// PartnerHandler принимает YAML-фиды партнёров и отдаёт их прайс-листы.
type PartnerHandler struct {
	importer *importer.Service
	logger   *log.Entry
}

func NewPartnerHandler(imp *importer.Service, logger *log.Entry) *PartnerHandler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &PartnerHandler{
		importer: imp,
		logger:   logger.WithField("component", "api.partner"),
	}
}

func (h *PartnerHandler) RegisterRoutes(router gin.IRouter) {
	partner := router.Group("/partner")
	{
		partner.POST("/feed", h.ImportFeed)
	}
	shops := router.Group("/shops")
	{
		shops.GET("/:id/products", h.ListShopProducts)
	}
}

// ImportFeed загружает YAML-фид партнёра: магазин, категории и товары
// заменяют предыдущий прайс-лист магазина целиком.
func (h *PartnerHandler) ImportFeed(c *gin.Context) {
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, maxFeedBytes)

	result, err := h.importer.ImportFeed(c.Request.Context(), reader)
	if err != nil {
		h.logger.WithError(err).Warn("импорт фида отклонён")
		respondError(c, err)
		return
	}

	h.logger.WithFields(log.Fields{
		"shop_id":  result.ShopID,
		"products": result.ProductsLoaded,
	}).Info("фид партнёра импортирован")

	respondOK(c, http.StatusOK, gin.H{
		"shop_id":         result.ShopID,
		"shop_name":       result.ShopName,
		"categories_seen": result.CategoriesSeen,
		"products_loaded": result.ProductsLoaded,
	})
}

func (h *PartnerHandler) ListShopProducts(c *gin.Context) {
	shopID := c.Param("id")

	products, err := h.importer.ListShopProducts(c.Request.Context(), shopID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toProductInfoViews(products))
}
