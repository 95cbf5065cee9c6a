package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/clubos/internal/domain/register"
)

// Stats summarises a register session.
type Stats struct {
	SessionID      string
	Closed         bool
	OrderCount     int
	OrdersTotal    decimal.Decimal
	TreatTotal     decimal.Decimal
	TotalDiscounts decimal.Decimal
}

// ComputeStats builds the statistics for a session from its orders and
// closing snapshot.
func ComputeStats(s *register.Session, orders []Order) Stats {
	return Stats{
		SessionID:      s.ID,
		Closed:         !s.Open(),
		OrderCount:     len(orders),
		OrdersTotal:    OrdersTotalForSession(s.Closing, orders),
		TreatTotal:     TreatTotalForSession(s.Closing, orders),
		TotalDiscounts: DiscountsForSession(s.Closing, orders),
	}
}

// OrdersTotalForSession returns the snapshot's orders total when present,
// else the sum of TotalAmount over orders.
func OrdersTotalForSession(c *register.Closing, orders []Order) decimal.Decimal {
	if c != nil && c.OrdersTotal.Valid {
		return c.OrdersTotal.Decimal
	}
	return sumOrders(orders, func(o Order) decimal.Decimal { return o.TotalAmount })
}

// DiscountsForSession returns the snapshot's total discounts when present,
// else the sum of DiscountAmount over orders.
func DiscountsForSession(c *register.Closing, orders []Order) decimal.Decimal {
	if c != nil && c.TotalDiscounts.Valid {
		return c.TotalDiscounts.Decimal
	}
	return sumOrders(orders, func(o Order) decimal.Decimal { return o.DiscountAmount })
}

// TreatTotalForSession returns the snapshot's treat total when present,
// else the unit price of every treat line across orders.
func TreatTotalForSession(c *register.Closing, orders []Order) decimal.Decimal {
	if c != nil && c.TreatTotal.Valid {
		return c.TreatTotal.Decimal
	}
	return sumOrders(orders, func(o Order) decimal.Decimal {
		sum := decimal.Zero
		for _, l := range o.Lines {
			if l.IsTreat {
				sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
			}
		}
		return sum
	})
}

func sumOrders(orders []Order, field func(Order) decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range orders {
		sum = sum.Add(field(o))
	}
	return sum.Round(2)
}
