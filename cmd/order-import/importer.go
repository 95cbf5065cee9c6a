package main

import (
	"context"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/clubos/internal/domain/money"
	"github.com/xenking/clubos/internal/domain/order"
	"github.com/xenking/clubos/internal/domain/register"
)

// orderWriter is the subset of the order store the importer needs.
type orderWriter interface {
	Create(ctx context.Context, o *order.Order) error
	Exists(ctx context.Context, id string) (bool, error)
}

// stats counts import outcomes.
type stats struct {
	Imported   int
	Duplicates int
}

// importer writes records into a single open register session, skipping
// order ids that are already stored.
type importer struct {
	store   orderWriter
	calc    money.Calculator
	session *register.Session
	seen    *bloom.BloomFilter
	newID   func() string
	stats   stats
}

func newImporter(store orderWriter, calc money.Calculator, session *register.Session, expected uint) *importer {
	return &importer{
		store:   store,
		calc:    calc,
		session: session,
		seen:    bloom.NewWithEstimates(expected, bloomFPR),
		newID:   uuid.NewString,
	}
}

// seed marks ids already known to be stored.
func (im *importer) seed(ids []string) {
	for _, id := range ids {
		im.seen.AddString(id)
	}
}

// add imports one record. A bloom hit is confirmed against the store before
// the record is treated as a duplicate.
func (im *importer) add(ctx context.Context, rec record) error {
	if im.seen.TestString(rec.ID) {
		ok, err := im.store.Exists(ctx, rec.ID)
		if err != nil {
			return err
		}
		if ok {
			im.stats.Duplicates++
			return nil
		}
	}

	o := order.Build(im.calc, order.Draft{
		ID:        rec.ID,
		SessionID: im.session.ID,
		Scope:     im.session.Scope,
		CreatedBy: rec.CreatedBy,
		CreatedAt: rec.CreatedAt,
	}, rec.Cart, im.newID)
	if err := order.ValidateAmounts(o); err != nil {
		return errors.Wrapf(err, "order %s", rec.ID)
	}

	if err := im.store.Create(ctx, o); err != nil {
		if errors.Is(err, register.ErrSessionAlreadyClosed) {
			return errors.Wrapf(err, "session %s closed during import", im.session.ID)
		}
		var headerErr *order.HeaderInsertError
		if !errors.As(err, &headerErr) {
			return err
		}
		// The id may belong to an order outside the seeded session.
		ok, existsErr := im.store.Exists(ctx, rec.ID)
		if existsErr != nil || !ok {
			return err
		}
		im.stats.Duplicates++
		im.seen.AddString(rec.ID)
		return nil
	}
	im.seen.AddString(rec.ID)
	im.stats.Imported++
	return nil
}
