package main

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/clubos/internal/domain/order"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1 << 20

// record is one historical order from an export file.
type record struct {
	ID        string
	CreatedBy string
	CreatedAt time.Time
	Cart      order.Cart
}

// parseRecord decodes a line such as
//
//	{"id":"o1","createdBy":"u1","createdAt":"2024-05-01T10:00:00Z","couponCount":1,
//	 "items":[{"productId":"p1","price":"3.50","isTreat":false}]}
func parseRecord(line []byte) (record, error) {
	var rec record
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			rec.ID, err = d.Str()
		case "createdBy":
			rec.CreatedBy, err = d.Str()
		case "createdAt":
			var s string
			if s, err = d.Str(); err == nil {
				rec.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "couponCount":
			rec.Cart.CouponCount, err = d.Int()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := parseItem(d)
				if err != nil {
					return err
				}
				rec.Cart.Items = append(rec.Cart.Items, item)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return rec, err
	}
	if rec.ID == "" {
		return rec, errors.New("id is required")
	}
	if rec.CreatedAt.IsZero() {
		return rec, errors.New("createdAt is required")
	}
	return rec, order.ValidateCart(rec.Cart)
}

func parseItem(d *jx.Decoder) (order.CartItem, error) {
	var item order.CartItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = d.Str()
		case "price":
			item.Price, err = parsePrice(d)
		case "isTreat":
			item.IsTreat, err = d.Bool()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return item, err
}

func parsePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

// streamFile decodes a gzipped JSONL file and calls fn for each record.
// Blank lines are skipped; a malformed line aborts with its line number.
func streamFile(ctx context.Context, path string, fn func(record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	var lineNo int
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNo)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
