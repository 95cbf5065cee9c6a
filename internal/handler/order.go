package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/clubos/internal/domain/order"
)

// CreateOrder settles a cart against the caller's open register session,
// opening one when needed.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}

	cart, err := decodeCart(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.Create(r.Context(), userID, cart)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func decodeCart(r *http.Request) (order.Cart, error) {
	var cart order.Cart
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeCartItem(d)
				if err != nil {
					return errors.Wrapf(err, "items[%d]", len(cart.Items))
				}
				cart.Items = append(cart.Items, item)
				return nil
			})
		case "couponCount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			n, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "couponCount")
			}
			cart.CouponCount = n
			return nil
		default:
			return d.Skip()
		}
	})
	return cart, err
}

func decodeCartItem(d *jx.Decoder) (order.CartItem, error) {
	var (
		item     order.CartItem
		hasPrice bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "productId")
			}
			item.ProductID = v
		case "price":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			item.Price = v
			hasPrice = true
		case "isTreat":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "isTreat")
			}
			item.IsTreat = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return item, err
	}
	if item.ProductID == "" {
		return item, errors.New("productId is required")
	}
	if !hasPrice {
		return item, errors.New("price is required")
	}
	return item, nil
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("sessionId")
	e.Str(o.SessionID)
	encodeScopeFields(e, o.Scope)
	encodeMoney(e, "subtotal", o.Subtotal)
	encodeMoney(e, "discountAmount", o.DiscountAmount)
	encodeMoney(e, "totalAmount", o.TotalAmount)
	e.FieldStart("couponCount")
	e.Int(o.CouponCount)
	e.FieldStart("createdBy")
	e.Str(o.CreatedBy)
	encodeTime(e, "createdAt", o.CreatedAt)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ID)
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		encodeMoney(e, "unitPrice", l.UnitPrice)
		encodeMoney(e, "lineTotal", l.LineTotal)
		e.FieldStart("isTreat")
		e.Bool(l.IsTreat)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
