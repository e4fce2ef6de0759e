package api

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// NewRouter собирает gin-роутер со всеми обработчиками API под /api/v1.
func NewRouter(orders *OrderHandler, partner *PartnerHandler, logger *log.Entry) *gin.Engine {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	v1 := router.Group("/api/v1")
	orders.RegisterRoutes(v1)
	partner.RegisterRoutes(v1)

	return router
}

// requestLogger пишет одну структурированную запись на запрос.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})

		if c.Writer.Status() >= 500 {
			entry.Error("запрос завершился ошибкой сервера")
			return
		}
		entry.Debug("запрос обработан")
	}
}
