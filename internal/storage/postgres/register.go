package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/clubos/internal/domain/register"
	"github.com/xenking/clubos/internal/domain/scope"
)

const (
	oneOpenSessionIndex = "register_sessions_one_open"

	insertSessionSQL = `INSERT INTO register_sessions (id, tenant_id, facility_id, opened_by)
		VALUES ($1, $2, $3, $4) RETURNING opened_at`

	sessionColumns = `s.id, s.tenant_id, s.facility_id, s.opened_by, s.opened_at, s.closed_at,
		c.session_id, c.orders_total, c.treat_total, c.total_discounts, c.closing_cash, c.notes, c.created_at`

	latestSessionSQL = `SELECT ` + sessionColumns + `
		FROM register_sessions s LEFT JOIN register_closings c ON c.session_id = s.id
		WHERE s.tenant_id = $1 AND s.facility_id IS NOT DISTINCT FROM $2
		ORDER BY s.opened_at DESC, s.id DESC LIMIT 1`

	getSessionSQL = `SELECT ` + sessionColumns + `
		FROM register_sessions s LEFT JOIN register_closings c ON c.session_id = s.id
		WHERE s.id = $1`

	listSessionsSQL = `SELECT ` + sessionColumns + `
		FROM register_sessions s LEFT JOIN register_closings c ON c.session_id = s.id
		WHERE s.tenant_id = $1 AND s.facility_id IS NOT DISTINCT FROM $2
		ORDER BY s.opened_at DESC, s.id DESC LIMIT $3`

	closeSessionSQL = `SELECT close_register_session($1, $2, $3)`
)

var (
	_ register.Store  = (*RegisterStore)(nil)
	_ register.Closer = (*RegisterStore)(nil)
)

// RegisterStore persists register sessions. The partial unique index on
// open sessions enforces one open session per scope.
type RegisterStore struct {
	pool *pgxpool.Pool
}

// NewRegisterStore returns a RegisterStore that uses the given pool.
func NewRegisterStore(pool *pgxpool.Pool) *RegisterStore {
	return &RegisterStore{pool: pool}
}

// Insert creates an open session. A violation of the one-open-session index
// is reported as register.ErrOpenSessionExists.
func (r *RegisterStore) Insert(ctx context.Context, in register.NewSession) (*register.Session, error) {
	s := &register.Session{ID: in.ID, Scope: in.Scope, OpenedBy: in.OpenedBy}
	err := r.pool.QueryRow(ctx, insertSessionSQL,
		in.ID, in.Scope.TenantID, nullText(in.Scope.FacilityID), in.OpenedBy,
	).Scan(&s.OpenedAt)
	if err != nil {
		if isUniqueViolation(err, oneOpenSessionIndex) {
			return nil, register.ErrOpenSessionExists
		}
		return nil, fmt.Errorf("inserting session for %s: %w", in.Scope, err)
	}
	return s, nil
}

// Latest returns the most recently opened session for the scope.
func (r *RegisterStore) Latest(ctx context.Context, sc scope.Scope) (*register.Session, error) {
	rows, err := r.pool.Query(ctx, latestSessionSQL, sc.TenantID, nullText(sc.FacilityID))
	if err != nil {
		return nil, fmt.Errorf("getting latest session for %s: %w", sc, err)
	}
	return collectSession(rows)
}

// Get returns a session with its closing snapshot.
func (r *RegisterStore) Get(ctx context.Context, id string) (*register.Session, error) {
	rows, err := r.pool.Query(ctx, getSessionSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting session %q: %w", id, err)
	}
	return collectSession(rows)
}

// List returns the scope's sessions, newest first.
func (r *RegisterStore) List(ctx context.Context, sc scope.Scope, limit int) ([]register.Session, error) {
	rows, err := r.pool.Query(ctx, listSessionsSQL, sc.TenantID, nullText(sc.FacilityID), limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions for %s: %w", sc, err)
	}
	return pgx.CollectRows(rows, scanSession)
}

// CloseSession runs the close_register_session routine, which closes the
// session and stores its closing snapshot in one statement.
func (r *RegisterStore) CloseSession(ctx context.Context, req register.CloseRequest) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, closeSessionSQL, req.SessionID, req.ClosingCash, req.Notes).Scan(&id)
	if err != nil {
		switch pgCode(err) {
		case codeSessionClosed:
			return "", register.ErrSessionAlreadyClosed
		case codeSessionNotFound:
			return "", register.ErrSessionNotFound
		}
		return "", fmt.Errorf("closing session %q: %w", req.SessionID, err)
	}
	return id, nil
}

func collectSession(rows pgx.Rows) (*register.Session, error) {
	s, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, register.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &s, nil
}

func scanSession(row pgx.CollectableRow) (register.Session, error) {
	var (
		s           register.Session
		facilityID  *string
		closingID   *string
		ordersTotal decimal.NullDecimal
		treatTotal  decimal.NullDecimal
		discounts   decimal.NullDecimal
		closingCash decimal.NullDecimal
		notes       *string
		closingAt   *time.Time
	)
	err := row.Scan(
		&s.ID, &s.Scope.TenantID, &facilityID, &s.OpenedBy, &s.OpenedAt, &s.ClosedAt,
		&closingID, &ordersTotal, &treatTotal, &discounts, &closingCash, &notes, &closingAt,
	)
	if err != nil {
		return s, err
	}
	s.Scope.FacilityID = textOrEmpty(facilityID)
	if closingID != nil {
		s.Closing = &register.Closing{
			SessionID:      *closingID,
			OrdersTotal:    ordersTotal,
			TreatTotal:     treatTotal,
			TotalDiscounts: discounts,
			ClosingCash:    closingCash.Decimal,
			Notes:          textOrEmpty(notes),
		}
		if closingAt != nil {
			s.Closing.CreatedAt = *closingAt
		}
	}
	return s, nil
}
