package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/clubos/internal/domain/order"
	"github.com/xenking/clubos/internal/domain/register"
	"github.com/xenking/clubos/internal/domain/scope"
)

var (
	testSecret = []byte("test-secret")
	testScope  = scope.Scope{TenantID: "t1", FacilityID: "f1"}
	testTime   = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

// --- Mocks ---

type mockRegisters struct {
	ensureFn  func(ctx context.Context, sc scope.Scope, userID string) (string, bool, error)
	openFn    func(ctx context.Context, sc scope.Scope) (string, bool, error)
	getFn     func(ctx context.Context, id string) (*register.Session, error)
	historyFn func(ctx context.Context, sc scope.Scope, limit int) ([]register.Session, error)
	closeFn   func(ctx context.Context, req register.CloseRequest) (string, error)
}

func (m *mockRegisters) Ensure(ctx context.Context, sc scope.Scope, userID string) (string, bool, error) {
	return m.ensureFn(ctx, sc, userID)
}

func (m *mockRegisters) OpenSession(ctx context.Context, sc scope.Scope) (string, bool, error) {
	return m.openFn(ctx, sc)
}

func (m *mockRegisters) Get(ctx context.Context, id string) (*register.Session, error) {
	if m.getFn == nil {
		return &register.Session{ID: id, Scope: testScope, OpenedBy: "u1", OpenedAt: testTime}, nil
	}
	return m.getFn(ctx, id)
}

func (m *mockRegisters) History(ctx context.Context, sc scope.Scope, limit int) ([]register.Session, error) {
	return m.historyFn(ctx, sc, limit)
}

func (m *mockRegisters) Close(ctx context.Context, req register.CloseRequest) (string, error) {
	return m.closeFn(ctx, req)
}

type mockOrders struct {
	createFn func(ctx context.Context, userID string, cart order.Cart) (*order.Order, error)
	listFn   func(ctx context.Context, sessionID string) ([]order.Order, error)
	statsFn  func(ctx context.Context, sessionID string) (*order.Stats, error)
}

func (m *mockOrders) Create(ctx context.Context, userID string, cart order.Cart) (*order.Order, error) {
	return m.createFn(ctx, userID, cart)
}

func (m *mockOrders) ListBySession(ctx context.Context, sessionID string) ([]order.Order, error) {
	return m.listFn(ctx, sessionID)
}

func (m *mockOrders) SessionStats(ctx context.Context, sessionID string) (*order.Stats, error) {
	return m.statsFn(ctx, sessionID)
}

type mockScopes struct {
	resolved   *scope.Scope
	resolveErr error
	selectFn   func(ctx context.Context, userID, facilityID string) (scope.Scope, error)
}

func (m *mockScopes) Resolve(_ context.Context, _ string) (scope.Scope, error) {
	if m.resolveErr != nil {
		return scope.Scope{}, m.resolveErr
	}
	if m.resolved != nil {
		return *m.resolved, nil
	}
	return testScope, nil
}

func (m *mockScopes) SelectFacility(ctx context.Context, userID, facilityID string) (scope.Scope, error) {
	return m.selectFn(ctx, userID, facilityID)
}

// --- Helpers ---

type testAPI struct {
	registers *mockRegisters
	orders    *mockOrders
	scopes    *mockScopes
	router    http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	api := &testAPI{
		registers: &mockRegisters{},
		orders:    &mockOrders{},
		scopes:    &mockScopes{},
	}
	h := NewHandler(api.registers, api.orders, api.scopes)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(Auth(testSecret))
		r.Mount("/", h.Routes())
	})
	api.router = r
	return api
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := NewToken(testSecret, "u1", time.Hour)
	require.NoError(t, err)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// fields decodes a JSON object response into raw field values.
func fields(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		out[key] = strings.Trim(raw.String(), `"`)
		return nil
	})
	require.NoError(t, err, w.Body.String())
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// --- Auth ---

func TestAuth(t *testing.T) {
	api := newTestAPI(t)

	wrongSecret, err := NewToken([]byte("other"), "u1", time.Hour)
	require.NoError(t, err)
	expired, err := NewToken(testSecret, "u1", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage", header: "Bearer abc"},
		{name: "wrong secret", header: "Bearer " + wrongSecret},
		{name: "expired", header: "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me/scope", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			api.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "401", fields(t, w)["code"])
		})
	}
}

func TestAuth_ValidTokenSetsUser(t *testing.T) {
	var seen string
	h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
	}))

	token, err := NewToken(testSecret, "staff-7", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "staff-7", seen)
}

// --- Register ---

func TestOpenRegister(t *testing.T) {
	tests := []struct {
		name       string
		created    bool
		wantStatus int
	}{
		{name: "new session", created: true, wantStatus: http.StatusCreated},
		{name: "existing session", created: false, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.registers.ensureFn = func(_ context.Context, sc scope.Scope, userID string) (string, bool, error) {
				assert.Equal(t, testScope, sc)
				assert.Equal(t, "u1", userID)
				return "s1", tt.created, nil
			}

			w := api.do(t, http.MethodPost, "/api/register/open", "")
			require.Equal(t, tt.wantStatus, w.Code)
			got := fields(t, w)
			assert.Equal(t, "s1", got["sessionId"])
			assert.Equal(t, strconv.FormatBool(tt.created), got["created"])
		})
	}
}

func TestOpenRegister_OnboardingRequired(t *testing.T) {
	api := newTestAPI(t)
	api.scopes.resolveErr = scope.ErrScopeNotFound

	w := api.do(t, http.MethodPost, "/api/register/open", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "onboarding_required", fields(t, w)["message"])
}

func TestCurrentRegister(t *testing.T) {
	api := newTestAPI(t)
	api.registers.openFn = func(context.Context, scope.Scope) (string, bool, error) {
		return "", false, nil
	}
	w := api.do(t, http.MethodGet, "/api/register/current", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	api.registers.openFn = func(context.Context, scope.Scope) (string, bool, error) {
		return "s9", true, nil
	}
	w = api.do(t, http.MethodGet, "/api/register/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s9", fields(t, w)["sessionId"])
}

func TestRegisterHistory_Limit(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
	}{
		{query: "", wantStatus: http.StatusOK, wantLimit: register.DefaultHistoryLimit},
		{query: "?limit=5", wantStatus: http.StatusOK, wantLimit: 5},
		{query: "?limit=100000", wantStatus: http.StatusOK, wantLimit: maxHistoryLimit},
		{query: "?limit=0", wantStatus: http.StatusBadRequest},
		{query: "?limit=abc", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			api := newTestAPI(t)
			var gotLimit int
			api.registers.historyFn = func(_ context.Context, _ scope.Scope, limit int) ([]register.Session, error) {
				gotLimit = limit
				return []register.Session{{ID: "s1", Scope: testScope, OpenedAt: testTime}}, nil
			}

			w := api.do(t, http.MethodGet, "/api/register/history"+tt.query, "")
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantLimit, gotLimit)
				assert.Contains(t, w.Body.String(), `"id":"s1"`)
			}
		})
	}
}

func TestGetRegister_WithClosing(t *testing.T) {
	api := newTestAPI(t)
	api.scopes.resolved = &scope.Scope{TenantID: "t1"}
	closedAt := testTime.Add(8 * time.Hour)
	api.registers.getFn = func(_ context.Context, id string) (*register.Session, error) {
		return &register.Session{
			ID:       id,
			Scope:    scope.Scope{TenantID: "t1"},
			OpenedBy: "u1",
			OpenedAt: testTime,
			ClosedAt: &closedAt,
			Closing: &register.Closing{
				SessionID:   id,
				OrdersTotal: decimal.NewNullDecimal(dec("42.5")),
				ClosingCash: dec("100"),
				Notes:       "eod",
				CreatedAt:   closedAt,
			},
		}, nil
	}

	w := api.do(t, http.MethodGet, "/api/register/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"facilityId":null`)
	assert.Contains(t, body, `"ordersTotal":"42.50"`)
	assert.Contains(t, body, `"treatTotal":null`)
	assert.Contains(t, body, `"closingCash":"100.00"`)
	assert.Contains(t, body, `"closedAt":"2024-05-01T18:00:00Z"`)
}

func TestGetRegister_OtherTenantIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	api.registers.getFn = func(_ context.Context, id string) (*register.Session, error) {
		return &register.Session{ID: id, Scope: scope.Scope{TenantID: "t2"}}, nil
	}

	w := api.do(t, http.MethodGet, "/api/register/s1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterAccess_FacilityScope(t *testing.T) {
	tests := []struct {
		name       string
		caller     scope.Scope
		session    scope.Scope
		wantStatus int
	}{
		{name: "own facility", caller: testScope, session: testScope, wantStatus: http.StatusOK},
		{name: "other facility", caller: testScope, session: scope.Scope{TenantID: "t1", FacilityID: "f2"}, wantStatus: http.StatusNotFound},
		{name: "tenant-wide session from facility", caller: testScope, session: scope.Scope{TenantID: "t1"}, wantStatus: http.StatusNotFound},
		{name: "tenant-wide caller", caller: scope.Scope{TenantID: "t1"}, session: scope.Scope{TenantID: "t1", FacilityID: "f2"}, wantStatus: http.StatusOK},
		{name: "other tenant", caller: scope.Scope{TenantID: "t1"}, session: scope.Scope{TenantID: "t2"}, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.scopes.resolved = &tt.caller
			api.registers.getFn = func(_ context.Context, id string) (*register.Session, error) {
				return &register.Session{ID: id, Scope: tt.session, OpenedBy: "u1", OpenedAt: testTime}, nil
			}
			var closed bool
			api.registers.closeFn = func(_ context.Context, req register.CloseRequest) (string, error) {
				closed = true
				return req.SessionID, nil
			}

			w := api.do(t, http.MethodGet, "/api/register/s1", "")
			assert.Equal(t, tt.wantStatus, w.Code)

			w = api.do(t, http.MethodPost, "/api/register/s1/close", `{"closingCash":"1"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, closed)
		})
	}
}

func TestGetRegister_NotFound(t *testing.T) {
	api := newTestAPI(t)
	api.registers.getFn = func(context.Context, string) (*register.Session, error) {
		return nil, register.ErrSessionNotFound
	}

	w := api.do(t, http.MethodGet, "/api/register/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCloseRegister(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		closeErr   error
		wantStatus int
	}{
		{name: "ok", body: `{"closingCash":"120.50","notes":"eod"}`, wantStatus: http.StatusOK},
		{name: "numeric cash", body: `{"closingCash":120.5,"notes":null}`, wantStatus: http.StatusOK},
		{name: "missing cash", body: `{"notes":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "bad json", body: `{"closingCash":`, wantStatus: http.StatusBadRequest},
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest},
		{name: "already closed", body: `{"closingCash":"1"}`, closeErr: register.ErrSessionAlreadyClosed, wantStatus: http.StatusConflict},
		{name: "negative", body: `{"closingCash":"-1"}`, closeErr: register.ErrInvalidClosingCash, wantStatus: http.StatusUnprocessableEntity},
		{name: "store failure", body: `{"closingCash":"1"}`, closeErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			var got register.CloseRequest
			api.registers.closeFn = func(_ context.Context, req register.CloseRequest) (string, error) {
				got = req
				if tt.closeErr != nil {
					return "", tt.closeErr
				}
				return req.SessionID, nil
			}

			w := api.do(t, http.MethodPost, "/api/register/s1/close", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "s1", fields(t, w)["sessionId"])
				assert.Equal(t, "s1", got.SessionID)
				assert.True(t, dec("120.5").Equal(got.ClosingCash))
			}
		})
	}
}

func TestRegisterStats(t *testing.T) {
	api := newTestAPI(t)
	api.orders.statsFn = func(_ context.Context, sessionID string) (*order.Stats, error) {
		return &order.Stats{
			SessionID:      sessionID,
			Closed:         true,
			OrderCount:     3,
			OrdersTotal:    dec("30"),
			TreatTotal:     dec("4"),
			TotalDiscounts: dec("6"),
		}, nil
	}

	w := api.do(t, http.MethodGet, "/api/register/s1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := fields(t, w)
	assert.Equal(t, "true", got["closed"])
	assert.Equal(t, "3", got["orderCount"])
	assert.Equal(t, "30.00", got["ordersTotal"])
	assert.Equal(t, "4.00", got["treatTotal"])
	assert.Equal(t, "6.00", got["totalDiscounts"])
}

func TestRegisterOrders(t *testing.T) {
	api := newTestAPI(t)
	api.orders.listFn = func(_ context.Context, sessionID string) ([]order.Order, error) {
		return []order.Order{{
			ID:          "o1",
			SessionID:   sessionID,
			Scope:       testScope,
			Subtotal:    dec("8"),
			TotalAmount: dec("8"),
			CreatedAt:   testTime,
			Lines: []order.Line{
				{ID: "l1", ProductID: "p1", Quantity: 1, UnitPrice: dec("8"), LineTotal: dec("8")},
			},
		}}, nil
	}

	w := api.do(t, http.MethodGet, "/api/register/s1/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "["))
	assert.Contains(t, body, `"sessionId":"s1"`)
	assert.Contains(t, body, `"productId":"p1"`)
}

// --- Orders ---

func TestCreateOrder(t *testing.T) {
	api := newTestAPI(t)
	var got order.Cart
	api.orders.createFn = func(_ context.Context, userID string, cart order.Cart) (*order.Order, error) {
		assert.Equal(t, "u1", userID)
		got = cart
		return &order.Order{
			ID:             "o1",
			SessionID:      "s1",
			Scope:          testScope,
			Subtotal:       dec("8"),
			DiscountAmount: dec("6"),
			TotalAmount:    dec("2"),
			CouponCount:    2,
			CreatedBy:      userID,
			CreatedAt:      testTime,
		}, nil
	}

	body := `{"items":[
		{"productId":"p1","price":3},
		{"productId":"p2","price":"2","isTreat":true},
		{"productId":"p3","price":5.00,"extra":"ignored"}
	],"couponCount":2}`
	w := api.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, got.Items, 3)
	assert.Equal(t, 2, got.CouponCount)
	assert.Equal(t, "p2", got.Items[1].ProductID)
	assert.True(t, got.Items[1].IsTreat)
	assert.True(t, dec("5").Equal(got.Items[2].Price))

	resp := fields(t, w)
	assert.Equal(t, "o1", resp["id"])
	assert.Equal(t, "8.00", resp["subtotal"])
	assert.Equal(t, "6.00", resp["discountAmount"])
	assert.Equal(t, "2.00", resp["totalAmount"])
}

func TestCreateOrder_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `nope`},
		{name: "missing product", body: `{"items":[{"price":1}]}`},
		{name: "missing price", body: `{"items":[{"productId":"p1"}]}`},
		{name: "bad price", body: `{"items":[{"productId":"p1","price":"abc"}]}`},
		{name: "bad coupon count", body: `{"items":[],"couponCount":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.orders.createFn = func(context.Context, string, order.Cart) (*order.Order, error) {
				t.Fatal("service must not be called")
				return nil, nil
			}
			w := api.do(t, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCreateOrder_DomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		check      func(t *testing.T, w *httptest.ResponseRecorder)
	}{
		{name: "empty cart", err: order.ErrEmptyCart, wantStatus: http.StatusUnprocessableEntity},
		{name: "negative price", err: &order.InvalidPriceError{ProductID: "p1"}, wantStatus: http.StatusUnprocessableEntity},
		{name: "amount out of range", err: errors.Wrap(order.ErrAmountOutOfRange, "price of product p1"), wantStatus: http.StatusUnprocessableEntity},
		{name: "too many coupons", err: order.ErrTooManyCoupons, wantStatus: http.StatusUnprocessableEntity},
		{name: "session closed twice", err: errors.Wrap(register.ErrSessionAlreadyClosed, "create order"), wantStatus: http.StatusConflict},
		{
			name:       "onboarding",
			err:        errors.Wrap(scope.ErrScopeNotFound, "resolve scope"),
			wantStatus: http.StatusConflict,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "onboarding_required", fields(t, w)["message"])
			},
		},
		{
			name:       "header insert",
			err:        errors.Wrap(&order.HeaderInsertError{Err: errors.New("conn reset")}, "create order"),
			wantStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			},
		},
		{
			name:       "line insert",
			err:        errors.Wrap(&order.LineInsertError{OrderID: "o1", Partial: true, Err: errors.New("fk")}, "create order"),
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				got := fields(t, w)
				assert.Equal(t, "o1", got["orderId"])
				assert.Equal(t, "true", got["partial"])
			},
		},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.orders.createFn = func(context.Context, string, order.Cart) (*order.Order, error) {
				return nil, tt.err
			}

			w := api.do(t, http.MethodPost, "/api/orders", `{"items":[{"productId":"p1","price":1}]}`)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			if tt.check != nil {
				tt.check(t, w)
			}
		})
	}
}

// --- Me ---

func TestCurrentScope(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/api/me/scope", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := fields(t, w)
	assert.Equal(t, "t1", got["tenantId"])
	assert.Equal(t, "f1", got["facilityId"])
	assert.Equal(t, "false", got["tenantWide"])
}

func TestSelectFacility(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		selectErr  error
		wantStatus int
	}{
		{name: "ok", body: `{"facilityId":"f2"}`, wantStatus: http.StatusOK},
		{name: "missing facility", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "foreign facility", body: `{"facilityId":"fx"}`, selectErr: scope.ErrFacilityNotInTenant, wantStatus: http.StatusUnprocessableEntity},
		{name: "disabled", body: `{"facilityId":"f2"}`, selectErr: scope.ErrSelectionDisabled, wantStatus: http.StatusNotImplemented},
		{name: "no tenant", body: `{"facilityId":"f2"}`, selectErr: scope.ErrScopeNotFound, wantStatus: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.scopes.selectFn = func(_ context.Context, userID, facilityID string) (scope.Scope, error) {
				if tt.selectErr != nil {
					return scope.Scope{}, tt.selectErr
				}
				return scope.Scope{TenantID: "t1", FacilityID: facilityID}, nil
			}

			w := api.do(t, http.MethodPut, "/api/me/facility", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "f2", fields(t, w)["facilityId"])
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "404", fields(t, w)["code"])
}
