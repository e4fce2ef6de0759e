package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"order not found", domain.ErrOrderNotFound, http.StatusNotFound},
		{"product not found", domain.ErrProductNotFound, http.StatusNotFound},
		{"insufficient stock", domain.ErrInsufficientStock, http.StatusConflict},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{"user required", domain.ErrUserRequired, http.StatusBadRequest},
		{"unknown state", domain.ErrUnknownState, http.StatusBadRequest},
		{"invalid feed", domain.ErrFeedInvalid, http.StatusBadRequest},
		{"unexpected error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusForError(tc.err))
		})
	}
}

func TestStatusForErrorUnwrapsCause(t *testing.T) {
	wrapped := &domain.StatusChangeError{
		OrderID: "ord-1",
		From:    domain.OrderStateBasket,
		To:      domain.OrderStateNew,
		Err: &domain.InsufficientStockError{
			ProductInfoID: "pi-1",
			Requested:     5,
			Available:     2,
		},
	}

	assert.Equal(t, http.StatusConflict, statusForError(wrapped))

	notFound := fmt.Errorf("load order: %w", domain.ErrOrderNotFound)
	assert.Equal(t, http.StatusNotFound, statusForError(notFound))
}
