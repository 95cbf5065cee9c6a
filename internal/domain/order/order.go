package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/clubos/internal/domain/scope"
)

// Order is a settled checkout recorded against a register session.
//
// DiscountAmount is the combined adjustment: the value of treat lines plus
// the coupon discount. Subtotal already excludes treats, so TotalAmount is
// not Subtotal - DiscountAmount for carts that contain treats; both figures
// are stored as computed for compatibility with existing reports.
type Order struct {
	ID             string
	SessionID      string
	Scope          scope.Scope
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	CouponCount    int
	CreatedBy      string
	CreatedAt      time.Time
	Lines          []Line
}

// Line is a single order line. LineTotal is zero for treats.
type Line struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	IsTreat   bool
}

// CartItem is a single unit in the checkout cart. Multiple units of a
// product are sent as repeated items.
type CartItem struct {
	ProductID string
	Price     decimal.Decimal
	IsTreat   bool
}

// Cart is the checkout input.
type Cart struct {
	Items       []CartItem
	CouponCount int
}

// Repository persists orders.
type Repository interface {
	// Create persists the order header and its lines. The session must
	// still be open when the order is written: a closed session fails with
	// register.ErrSessionAlreadyClosed and an unknown one with
	// register.ErrSessionNotFound. Storage failures are reported as
	// *HeaderInsertError or *LineInsertError.
	Create(ctx context.Context, o *Order) error
	// ListBySession returns the session's non-deleted orders with lines,
	// oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]Order, error)
}
