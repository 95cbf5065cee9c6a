// Package handler implements the HTTP API for register sessions and order
// settlement.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/clubos/internal/domain/order"
	"github.com/xenking/clubos/internal/domain/register"
	"github.com/xenking/clubos/internal/domain/scope"
)

// Registers is the register session manager as seen by the HTTP layer.
type Registers interface {
	Ensure(ctx context.Context, sc scope.Scope, userID string) (id string, created bool, err error)
	OpenSession(ctx context.Context, sc scope.Scope) (id string, ok bool, err error)
	Get(ctx context.Context, id string) (*register.Session, error)
	History(ctx context.Context, sc scope.Scope, limit int) ([]register.Session, error)
	Close(ctx context.Context, req register.CloseRequest) (string, error)
}

// Orders is the order settlement service as seen by the HTTP layer.
type Orders interface {
	Create(ctx context.Context, userID string, cart order.Cart) (*order.Order, error)
	ListBySession(ctx context.Context, sessionID string) ([]order.Order, error)
	SessionStats(ctx context.Context, sessionID string) (*order.Stats, error)
}

// Scopes resolves and selects the acting user's scope.
type Scopes interface {
	Resolve(ctx context.Context, userID string) (scope.Scope, error)
	SelectFacility(ctx context.Context, userID, facilityID string) (scope.Scope, error)
}

// Compile-time checks.
var (
	_ Registers = (*register.Manager)(nil)
	_ Orders    = (*order.Service)(nil)
	_ Scopes    = (*scope.Resolver)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	registers Registers
	orders    Orders
	scopes    Scopes
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(registers Registers, orders Orders, scopes Scopes) *Handler {
	return &Handler{
		registers: registers,
		orders:    orders,
		scopes:    scopes,
	}
}

// Routes returns the API router. Every route requires an authenticated user,
// so auth must be installed before it.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/register", func(r chi.Router) {
		r.Post("/open", h.OpenRegister)
		r.Get("/current", h.CurrentRegister)
		r.Get("/history", h.RegisterHistory)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetRegister)
			r.Post("/close", h.CloseRegister)
			r.Get("/orders", h.RegisterOrders)
			r.Get("/stats", h.RegisterStats)
		})
	})
	r.Post("/orders", h.CreateOrder)
	r.Route("/me", func(r chi.Router) {
		r.Get("/scope", h.CurrentScope)
		r.Put("/facility", h.SelectFacility)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// resolveScope resolves the acting user's scope, writing the error response
// when it fails.
func (h *Handler) resolveScope(w http.ResponseWriter, r *http.Request) (string, scope.Scope, bool) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return "", scope.Scope{}, false
	}
	sc, err := h.scopes.Resolve(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return "", scope.Scope{}, false
	}
	return userID, sc, true
}
