package register

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/clubos/internal/domain/scope"
)

// maxOpenAttempts bounds the insert/re-read cycle when the winning session
// of a race is closed before it can be read back.
const maxOpenAttempts = 3

// DefaultHistoryLimit is used by History when limit is not positive.
const DefaultHistoryLimit = 50

// Option configures a Manager.
type Option func(*Manager)

// WithMeterProvider sets the meter provider used for session counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) { m.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer("github.com/xenking/clubos/register") }
}

// Manager implements the open/query/close lifecycle of register sessions.
type Manager struct {
	store  Store
	closer Closer
	newID  func() string

	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	opened        metric.Int64Counter
	racesResolved metric.Int64Counter
	closed        metric.Int64Counter
}

// NewManager creates a Manager backed by the given store and closing routine.
func NewManager(store Store, closer Closer, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:         store,
		closer:        closer,
		newID:         func() string { return uuid.New().String() },
		meterProvider: metricnoop.NewMeterProvider(),
		tracer:        tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, o := range opts {
		o(m)
	}

	meter := m.meterProvider.Meter("github.com/xenking/clubos/register")
	var err error
	if m.opened, err = meter.Int64Counter("register.sessions.opened"); err != nil {
		return nil, errors.Wrap(err, "sessions opened counter")
	}
	if m.racesResolved, err = meter.Int64Counter("register.open_races.resolved"); err != nil {
		return nil, errors.Wrap(err, "open races counter")
	}
	if m.closed, err = meter.Int64Counter("register.sessions.closed"); err != nil {
		return nil, errors.Wrap(err, "sessions closed counter")
	}
	return m, nil
}

// Open ensures the scope has an open session and returns its id. Opening
// when a session is already open returns the existing id. When a concurrent
// open wins the race, the winner's id is returned instead of an error.
func (m *Manager) Open(ctx context.Context, sc scope.Scope, userID string) (string, error) {
	id, _, err := m.Ensure(ctx, sc, userID)
	return id, err
}

// Ensure is Open that also reports whether this call created the session.
func (m *Manager) Ensure(ctx context.Context, sc scope.Scope, userID string) (id string, created bool, err error) {
	ctx, span := m.tracer.Start(ctx, "register.Open",
		trace.WithAttributes(attribute.String("register.scope", sc.String())),
	)
	defer span.End()

	lg := zctx.From(ctx)
	for range maxOpenAttempts {
		openID, ok, err := m.OpenSession(ctx, sc)
		if err != nil {
			return "", false, err
		}
		if ok {
			return openID, false, nil
		}

		s, err := m.store.Insert(ctx, NewSession{ID: m.newID(), Scope: sc, OpenedBy: userID})
		if err == nil {
			m.opened.Add(ctx, 1)
			lg.Info("Register session opened",
				zap.String("session_id", s.ID),
				zap.Stringer("scope", sc),
				zap.String("user_id", userID),
			)
			return s.ID, true, nil
		}
		if !errors.Is(err, ErrOpenSessionExists) {
			span.RecordError(err)
			return "", false, errors.Wrap(err, "insert session")
		}

		// Lost the race: the storage constraint rejected the duplicate.
		m.racesResolved.Add(ctx, 1)
		lg.Info("Concurrent register open resolved", zap.Stringer("scope", sc))
	}
	return "", false, errors.Wrapf(ErrOpenSessionExists, "open session for %s not readable after %d attempts", sc, maxOpenAttempts)
}

// OpenSession returns the id of the scope's open session, or ok=false when
// the most recent session is closed or none exists.
func (m *Manager) OpenSession(ctx context.Context, sc scope.Scope) (id string, ok bool, err error) {
	s, err := m.store.Latest(ctx, sc)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "latest session")
	}
	if !s.Open() {
		return "", false, nil
	}
	return s.ID, true, nil
}

// Get returns a session with its closing snapshot.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "get session")
	}
	return s, nil
}

// History returns the scope's sessions, newest first.
func (m *Manager) History(ctx context.Context, sc scope.Scope, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	sessions, err := m.store.List(ctx, sc, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	return sessions, nil
}

// Close closes an open session. The closing routine computes and stores the
// closing snapshot and is authoritative for the already-closed check.
func (m *Manager) Close(ctx context.Context, req CloseRequest) (string, error) {
	if req.ClosingCash.IsNegative() {
		return "", ErrInvalidClosingCash
	}

	id, err := m.closer.CloseSession(ctx, req)
	if err != nil {
		if errors.Is(err, ErrSessionAlreadyClosed) || errors.Is(err, ErrSessionNotFound) {
			return "", err
		}
		return "", errors.Wrap(err, "close session")
	}

	m.closed.Add(ctx, 1)
	zctx.From(ctx).Info("Register session closed",
		zap.String("session_id", id),
		zap.String("closing_cash", req.ClosingCash.StringFixed(2)),
	)
	return id, nil
}
