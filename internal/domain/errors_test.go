package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestInsufficientStockErrorUnwrap(t *testing.T) {
	err := &InsufficientStockError{ProductInfoID: "pi-1", Requested: 5, Available: 3}

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("InsufficientStockError should match ErrInsufficientStock")
	}
	if !IsInsufficientStock(err) {
		t.Fatal("IsInsufficientStock should report true")
	}

	var stockErr *InsufficientStockError
	wrapped := fmt.Errorf("reserve: %w", err)
	if !errors.As(wrapped, &stockErr) {
		t.Fatal("errors.As should find InsufficientStockError through wrapping")
	}
	if stockErr.Requested != 5 || stockErr.Available != 3 {
		t.Fatalf("unexpected error details: %+v", stockErr)
	}
}

func TestStatusChangeErrorUnwrap(t *testing.T) {
	inner := &InsufficientStockError{ProductInfoID: "pi-1", Requested: 2, Available: 0}
	err := &StatusChangeError{
		OrderID: "order-1",
		From:    OrderStateBasket,
		To:      OrderStateNew,
		Err:     inner,
	}

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("StatusChangeError should expose the inventory cause via errors.Is")
	}

	var changeErr *StatusChangeError
	if !errors.As(err, &changeErr) {
		t.Fatal("errors.As should match StatusChangeError")
	}
	if changeErr.From != OrderStateBasket || changeErr.To != OrderStateNew {
		t.Fatalf("unexpected transition in error: %s -> %s", changeErr.From, changeErr.To)
	}
}

func TestStatusChangeErrorMessage(t *testing.T) {
	err := &StatusChangeError{
		OrderID: "order-1",
		From:    OrderStateNew,
		To:      OrderStateCanceled,
		Err:     errors.New("boom"),
	}

	want := "change order order-1 status new -> canceled: boom"
	if err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
