package order

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/clubos/internal/domain/money"
	"github.com/xenking/clubos/internal/domain/register"
	"github.com/xenking/clubos/internal/domain/scope"
)

// ScopeResolver resolves the acting user's scope.
type ScopeResolver interface {
	Resolve(ctx context.Context, userID string) (scope.Scope, error)
}

// Sessions is the part of the register manager the service needs.
type Sessions interface {
	Open(ctx context.Context, sc scope.Scope, userID string) (string, error)
	Get(ctx context.Context, id string) (*register.Session, error)
}

// Option configures a Service.
type Option func(*Service)

// WithCalculator overrides the money calculator, e.g. for a tenant-specific
// coupon value.
func WithCalculator(c money.Calculator) Option {
	return func(s *Service) { s.calc = c }
}

// WithMeterProvider sets the meter provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("github.com/xenking/clubos/order") }
}

// Service settles checkout carts into orders against the open register
// session of the acting user's scope.
type Service struct {
	scopes   ScopeResolver
	sessions Sessions
	orders   Repository
	calc     money.Calculator
	now      func() time.Time
	newID    func() string

	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	settled       metric.Int64Counter
	failed        metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	scopes ScopeResolver,
	sessions Sessions,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		scopes:        scopes,
		sessions:      sessions,
		orders:        orders,
		calc:          money.Default,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
		meterProvider: metricnoop.NewMeterProvider(),
		tracer:        tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, o := range opts {
		o(s)
	}

	meter := s.meterProvider.Meter("github.com/xenking/clubos/order")
	var err error
	if s.settled, err = meter.Int64Counter("orders.settled"); err != nil {
		return nil, errors.Wrap(err, "orders settled counter")
	}
	if s.failed, err = meter.Int64Counter("orders.failed"); err != nil {
		return nil, errors.Wrap(err, "orders failed counter")
	}
	return s, nil
}

// Create validates the cart, ensures an open session for the user's scope,
// computes totals and persists the order with its lines.
func (s *Service) Create(ctx context.Context, userID string, cart Cart) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(attribute.Int("order.items", len(cart.Items))),
	)
	defer span.End()

	if err := ValidateCart(cart); err != nil {
		return nil, err
	}

	sc, err := s.scopes.Resolve(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve scope")
	}

	o, err := s.settle(ctx, sc, userID, cart)
	if err != nil {
		s.failed.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")

		var lineErr *LineInsertError
		if errors.As(err, &lineErr) && lineErr.Partial {
			zctx.From(ctx).Error("Order header persisted without lines",
				zap.String("order_id", lineErr.OrderID),
				zap.Error(err),
			)
		}
		return nil, errors.Wrap(err, "create order")
	}

	s.settled.Add(ctx, 1)
	zctx.From(ctx).Info("Order settled",
		zap.String("order_id", o.ID),
		zap.String("session_id", o.SessionID),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)
	return o, nil
}

// settle writes the order against the scope's open session. When that
// session is closed between Open and the write, the order is retried once
// against the newly opened session.
func (s *Service) settle(ctx context.Context, sc scope.Scope, userID string, cart Cart) (*Order, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		sessionID, openErr := s.sessions.Open(ctx, sc, userID)
		if openErr != nil {
			return nil, errors.Wrap(openErr, "ensure open session")
		}

		o := s.build(sessionID, sc, userID, cart)
		if err := ValidateAmounts(o); err != nil {
			return nil, err
		}
		if err = s.orders.Create(ctx, o); err == nil {
			return o, nil
		}
		if !errors.Is(err, register.ErrSessionAlreadyClosed) {
			return nil, err
		}
		zctx.From(ctx).Info("Register session closed before order was stored",
			zap.String("session_id", sessionID),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, err
}

// build computes the order header and lines for the cart.
func (s *Service) build(sessionID string, sc scope.Scope, userID string, cart Cart) *Order {
	return Build(s.calc, Draft{
		ID:        s.newID(),
		SessionID: sessionID,
		Scope:     sc,
		CreatedBy: userID,
		CreatedAt: s.now(),
	}, cart, s.newID)
}

// Draft identifies an order before its totals are computed.
type Draft struct {
	ID        string
	SessionID string
	Scope     scope.Scope
	CreatedBy string
	CreatedAt time.Time
}

// Build computes the header and lines of the order for cart. Every item
// becomes a line of quantity one; line ids come from newID.
func Build(calc money.Calculator, d Draft, cart Cart, newID func() string) *Order {
	priced := make([]money.Line, len(cart.Items))
	for i, item := range cart.Items {
		priced[i] = money.Line{Price: item.Price, IsTreat: item.IsTreat}
	}

	subtotal := calc.Subtotal(priced)
	treatDiscount := calc.TreatValue(priced)
	couponDiscount := calc.DiscountAmount(cart.CouponCount)
	totalDiscount := treatDiscount.Add(couponDiscount)
	total := money.FloorAtZero(subtotal.Sub(totalDiscount))

	o := &Order{
		ID:             d.ID,
		SessionID:      d.SessionID,
		Scope:          d.Scope,
		Subtotal:       subtotal,
		DiscountAmount: totalDiscount.Round(2),
		TotalAmount:    total,
		CouponCount:    money.ClampCoupons(cart.CouponCount),
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt,
		Lines:          make([]Line, len(cart.Items)),
	}
	for i, item := range cart.Items {
		lineTotal := item.Price
		if item.IsTreat {
			lineTotal = decimal.Zero
		}
		o.Lines[i] = Line{
			ID:        newID(),
			OrderID:   o.ID,
			ProductID: item.ProductID,
			Quantity:  1,
			UnitPrice: item.Price,
			LineTotal: lineTotal,
			IsTreat:   item.IsTreat,
		}
	}
	return o
}

// MaxAmount is the exclusive upper bound of a stored amount, NUMERIC(12,2).
var MaxAmount = decimal.New(1, 10)

// MaxCouponCount is the largest coupon count that fits the INTEGER column.
const MaxCouponCount = math.MaxInt32

// ValidateCart rejects empty carts, negative prices and carts whose prices or
// coupon count cannot be stored.
func ValidateCart(cart Cart) error {
	if len(cart.Items) == 0 {
		return ErrEmptyCart
	}
	if cart.CouponCount > MaxCouponCount {
		return ErrTooManyCoupons
	}
	sum := decimal.Zero
	for _, item := range cart.Items {
		if item.Price.IsNegative() {
			return &InvalidPriceError{ProductID: item.ProductID}
		}
		if !storable(item.Price) {
			return errors.Wrapf(ErrAmountOutOfRange, "price of product %s", item.ProductID)
		}
		sum = sum.Add(item.Price)
	}
	if !storable(sum) {
		return errors.Wrap(ErrAmountOutOfRange, "cart total")
	}
	return nil
}

// ValidateAmounts checks that the computed header amounts can be stored.
// The discount grows with the coupon value, so it is checked after Build.
func ValidateAmounts(o *Order) error {
	for _, v := range []struct {
		name   string
		amount decimal.Decimal
	}{
		{"subtotal", o.Subtotal},
		{"discount", o.DiscountAmount},
		{"total", o.TotalAmount},
	} {
		if !storable(v.amount) {
			return errors.Wrap(ErrAmountOutOfRange, v.name)
		}
	}
	return nil
}

func storable(v decimal.Decimal) bool {
	return v.Round(2).LessThan(MaxAmount)
}

// ListBySession returns the orders recorded against a session.
func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]Order, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// SessionStats computes register statistics for a session, preferring the
// closing snapshot over live sums when the session is closed.
func (s *Service) SessionStats(ctx context.Context, sessionID string) (*Stats, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	stats := ComputeStats(session, orders)
	return &stats, nil
}
