// Package money computes order totals from cart lines.
//
// All functions are pure. Amounts are decimal currency values; results are
// rounded to 2 places and never negative.
package money

import "github.com/shopspring/decimal"

// CouponValue is the currency amount a single coupon takes off an order.
var CouponValue = decimal.NewFromInt(2)

// Line is the part of an order line relevant to pricing.
type Line struct {
	Price   decimal.Decimal
	IsTreat bool
}

// Calculator prices lines with a configurable coupon value. The zero value
// uses CouponValue; NewCalculator sets any value, including zero.
type Calculator struct {
	coupon decimal.NullDecimal
}

// NewCalculator returns a Calculator whose coupons are worth couponValue.
func NewCalculator(couponValue decimal.Decimal) Calculator {
	return Calculator{coupon: decimal.NewNullDecimal(couponValue)}
}

// Default is a Calculator using the standard coupon value.
var Default = Calculator{}

// CouponValue returns the amount one coupon takes off an order.
func (c Calculator) CouponValue() decimal.Decimal {
	if !c.coupon.Valid {
		return CouponValue
	}
	return c.coupon.Decimal
}

// Subtotal sums the price of every line that is not a treat.
func (c Calculator) Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.IsTreat {
			continue
		}
		sum = sum.Add(l.Price)
	}
	return sum.Round(2)
}

// TreatValue sums the price of every treat line.
func (c Calculator) TreatValue(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.IsTreat {
			sum = sum.Add(l.Price)
		}
	}
	return sum.Round(2)
}

// DiscountAmount returns the coupon discount. Negative counts give no discount.
func (c Calculator) DiscountAmount(couponCount int) decimal.Decimal {
	return decimal.NewFromInt(int64(ClampCoupons(couponCount))).Mul(c.CouponValue()).Round(2)
}

// TotalAmount is the subtotal minus the coupon discount, floored at zero.
func (c Calculator) TotalAmount(lines []Line, couponCount int) decimal.Decimal {
	return FloorAtZero(c.Subtotal(lines).Sub(c.DiscountAmount(couponCount)))
}

// Subtotal uses the Default calculator.
func Subtotal(lines []Line) decimal.Decimal { return Default.Subtotal(lines) }

// DiscountAmount uses the Default calculator.
func DiscountAmount(couponCount int) decimal.Decimal { return Default.DiscountAmount(couponCount) }

// TotalAmount uses the Default calculator.
func TotalAmount(lines []Line, couponCount int) decimal.Decimal {
	return Default.TotalAmount(lines, couponCount)
}

// ClampCoupons clamps negative coupon counts to zero.
func ClampCoupons(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// FloorAtZero clamps negative values to zero and rounds to 2 places.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}
