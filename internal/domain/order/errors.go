package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrEmptyCart is returned when a checkout has no items.
var ErrEmptyCart = errors.New("cart has no items")

// ErrAmountOutOfRange is returned when a price or an order amount cannot be
// stored.
var ErrAmountOutOfRange = errors.New("amount exceeds the storable range")

// ErrTooManyCoupons is returned when the coupon count cannot be stored.
var ErrTooManyCoupons = errors.New("coupon count exceeds the storable range")

// InvalidPriceError indicates a cart item with a negative price.
type InvalidPriceError struct {
	ProductID string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("price must not be negative for product %s", e.ProductID)
}

// HeaderInsertError indicates the order header could not be stored. Nothing
// was persisted, so the checkout can be retried.
type HeaderInsertError struct {
	Err error
}

func (e *HeaderInsertError) Error() string {
	return fmt.Sprintf("insert order header: %v", e.Err)
}

func (e *HeaderInsertError) Unwrap() error { return e.Err }

// LineInsertError indicates the order lines could not be stored. When
// Partial is true the header with OrderID remains in storage without lines
// and needs a retry or manual cleanup.
type LineInsertError struct {
	OrderID string
	Partial bool
	Err     error
}

func (e *LineInsertError) Error() string {
	if e.Partial {
		return fmt.Sprintf("insert lines for order %s (header persisted): %v", e.OrderID, e.Err)
	}
	return fmt.Sprintf("insert lines for order %s: %v", e.OrderID, e.Err)
}

func (e *LineInsertError) Unwrap() error { return e.Err }
