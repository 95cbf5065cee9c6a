// Package register manages cash-register sessions. At most one session per
// scope is open at any time; the invariant is enforced by storage and
// surfaced here as an idempotent open.
package register

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/clubos/internal/domain/scope"
)

var (
	// ErrSessionNotFound is returned when no session matches the query.
	ErrSessionNotFound = errors.New("register session not found")
	// ErrSessionAlreadyClosed is returned when closing a session that is
	// already closed.
	ErrSessionAlreadyClosed = errors.New("register session already closed")
	// ErrOpenSessionExists is returned by Store.Insert when the scope already
	// has an open session.
	ErrOpenSessionExists = errors.New("open register session exists for scope")
	// ErrInvalidClosingCash is returned for a negative closing cash amount.
	ErrInvalidClosingCash = errors.New("closing cash must not be negative")
)

// Session is a register session. A nil ClosedAt means the session is open.
type Session struct {
	ID       string
	Scope    scope.Scope
	OpenedBy string
	OpenedAt time.Time
	ClosedAt *time.Time
	Closing  *Closing
}

// Open reports whether the session has not been closed.
func (s *Session) Open() bool {
	return s.ClosedAt == nil
}

// Closing is the snapshot computed when a session is closed. Its totals,
// when valid, take precedence over summing the session's orders.
type Closing struct {
	SessionID      string
	OrdersTotal    decimal.NullDecimal
	TreatTotal     decimal.NullDecimal
	TotalDiscounts decimal.NullDecimal
	ClosingCash    decimal.Decimal
	Notes          string
	CreatedAt      time.Time
}

// NewSession holds the fields required to insert a session.
type NewSession struct {
	ID       string
	Scope    scope.Scope
	OpenedBy string
}

// CloseRequest holds the input for closing a session.
type CloseRequest struct {
	SessionID   string
	ClosingCash decimal.Decimal
	Notes       string
}

// Store persists register sessions.
type Store interface {
	// Insert creates an open session. It returns ErrOpenSessionExists when
	// the scope already has one.
	Insert(ctx context.Context, s NewSession) (*Session, error)
	// Latest returns the most recently opened session for the scope, or
	// ErrSessionNotFound.
	Latest(ctx context.Context, sc scope.Scope) (*Session, error)
	// Get returns a session with its closing snapshot, or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// List returns sessions for the scope, newest first.
	List(ctx context.Context, sc scope.Scope, limit int) ([]Session, error)
}

// Closer closes a session and persists its closing snapshot. It returns
// ErrSessionAlreadyClosed or ErrSessionNotFound as appropriate.
type Closer interface {
	CloseSession(ctx context.Context, req CloseRequest) (string, error)
}
