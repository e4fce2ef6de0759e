package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Response — единый конверт ответа API.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respondOK(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{
		Status: "ok",
		Data:   data,
	})
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), Response{
		Status:  "error",
		Message: err.Error(),
	})
}

// statusForError переводит доменные ошибки в HTTP-статусы.
// Неизвестные ошибки считаются внутренними.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrShopNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrUnknownState),
		errors.Is(err, domain.ErrProductInfoRequired),
		errors.Is(err, domain.ErrItemQuantityInvalid),
		errors.Is(err, domain.ErrShopRequired),
		errors.Is(err, domain.ErrQuantityNegative),
		errors.Is(err, domain.ErrPriceInvalid),
		errors.Is(err, domain.ErrFeedInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
