package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/clubos/internal/domain/order"
	"github.com/xenking/clubos/internal/domain/register"
)

const (
	// FOR SHARE conflicts with the FOR UPDATE taken by
	// close_register_session, so a close and an order insert serialize.
	lockOpenSessionSQL = `SELECT closed_at FROM register_sessions WHERE id = $1 FOR SHARE`

	insertOrderSQL = `INSERT INTO orders
		(id, session_id, tenant_id, facility_id, subtotal, discount_amount, total_amount, coupon_count, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertLineSQL = `INSERT INTO order_lines
		(id, order_id, product_id, quantity, unit_price, line_total, is_treat)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	listOrdersBySessionSQL = `SELECT id, session_id, tenant_id, facility_id, subtotal, discount_amount,
		total_amount, coupon_count, created_by, created_at
		FROM orders WHERE session_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	listLinesByOrdersSQL = `SELECT id, order_id, product_id, quantity, unit_price, line_total, is_treat
		FROM order_lines WHERE order_id = ANY($1) AND deleted_at IS NULL
		ORDER BY order_id, id`
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore implements order.Repository backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create persists the order header and its lines in one transaction, so a
// failed line insert leaves nothing behind. The session row is share-locked
// first; a session that is closed or unknown by then fails with
// register.ErrSessionAlreadyClosed or register.ErrSessionNotFound.
func (r *OrderStore) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &order.HeaderInsertError{Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var closedAt *time.Time
	err = tx.QueryRow(ctx, lockOpenSessionSQL, o.SessionID).Scan(&closedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return register.ErrSessionNotFound
	case err != nil:
		return &order.HeaderInsertError{Err: fmt.Errorf("locking session %q: %w", o.SessionID, err)}
	case closedAt != nil:
		return register.ErrSessionAlreadyClosed
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.SessionID, o.Scope.TenantID, nullText(o.Scope.FacilityID),
		o.Subtotal, o.DiscountAmount, o.TotalAmount, o.CouponCount, o.CreatedBy, o.CreatedAt,
	)
	if err != nil {
		return &order.HeaderInsertError{Err: fmt.Errorf("creating order %q: %w", o.ID, err)}
	}

	if err := insertLines(ctx, tx, o.Lines); err != nil {
		return &order.LineInsertError{OrderID: o.ID, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &order.HeaderInsertError{Err: fmt.Errorf("commit order %q: %w", o.ID, err)}
	}
	return nil
}

func insertLines(ctx context.Context, tx pgx.Tx, lines []order.Line) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(insertLineSQL, l.ID, l.OrderID, l.ProductID, l.Quantity, l.UnitPrice, l.LineTotal, l.IsTreat)
	}

	br := tx.SendBatch(ctx, batch)
	for _, l := range lines {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("creating line %q: %w", l.ID, err)
		}
	}
	return br.Close()
}

// ListBySession returns the session's non-deleted orders with their
// non-deleted lines, oldest first.
func (r *OrderStore) ListBySession(ctx context.Context, sessionID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersBySessionSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for session %q: %w", sessionID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders for session %q: %w", sessionID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err = r.pool.Query(ctx, listLinesByOrdersSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing lines for session %q: %w", sessionID, err)
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return nil, fmt.Errorf("scanning lines for session %q: %w", sessionID, err)
	}
	for _, l := range lines {
		i := index[l.OrderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return orders, nil
}

// Exists reports whether an order with id is stored, including soft-deleted
// ones.
func (r *OrderStore) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking order %q: %w", id, err)
	}
	return ok, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o          order.Order
		facilityID *string
		coupons    int32
	)
	err := row.Scan(
		&o.ID, &o.SessionID, &o.Scope.TenantID, &facilityID, &o.Subtotal, &o.DiscountAmount,
		&o.TotalAmount, &coupons, &o.CreatedBy, &o.CreatedAt,
	)
	o.Scope.FacilityID = textOrEmpty(facilityID)
	o.CouponCount = int(coupons)
	return o, err
}

func scanLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l   order.Line
		qty int32
	)
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &qty, &l.UnitPrice, &l.LineTotal, &l.IsTreat)
	l.Quantity = int(qty)
	return l, err
}
