package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/clubos/internal/domain/register"
	"github.com/xenking/clubos/internal/domain/scope"
)

// maxHistoryLimit caps the history page size.
const maxHistoryLimit = 200

// OpenRegister ensures the caller's scope has an open session.
func (h *Handler) OpenRegister(w http.ResponseWriter, r *http.Request) {
	userID, sc, ok := h.resolveScope(w, r)
	if !ok {
		return
	}
	id, created, err := h.registers.Ensure(r.Context(), sc, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("sessionId")
		e.Str(id)
		e.FieldStart("created")
		e.Bool(created)
		e.ObjEnd()
	})
}

// CurrentRegister returns the open session of the caller's scope.
func (h *Handler) CurrentRegister(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.resolveScope(w, r)
	if !ok {
		return
	}
	id, open, err := h.registers.OpenSession(r.Context(), sc)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !open {
		writeError(w, http.StatusNotFound, "no open register session")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("sessionId")
		e.Str(id)
		e.ObjEnd()
	})
}

// RegisterHistory lists the caller's scope sessions, newest first.
func (h *Handler) RegisterHistory(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.resolveScope(w, r)
	if !ok {
		return
	}

	limit := register.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	sessions, err := h.registers.History(r.Context(), sc, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range sessions {
			encodeSession(e, &sessions[i])
		}
		e.ArrEnd()
	})
}

// GetRegister returns a session with its closing snapshot.
func (h *Handler) GetRegister(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scopedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSession(e, s)
	})
}

// CloseRegister closes a session through the closing routine.
func (h *Handler) CloseRegister(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scopedSession(w, r)
	if !ok {
		return
	}

	req := register.CloseRequest{SessionID: s.ID}
	var hasCash bool
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "closingCash":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "closingCash")
			}
			req.ClosingCash = v
			hasCash = true
			return nil
		case "notes":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "notes")
			}
			req.Notes = v
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !hasCash {
		writeError(w, http.StatusBadRequest, "closingCash is required")
		return
	}

	id, err := h.registers.Close(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("sessionId")
		e.Str(id)
		e.ObjEnd()
	})
}

// RegisterOrders lists the orders recorded against a session.
func (h *Handler) RegisterOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scopedSession(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListBySession(r.Context(), s.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// RegisterStats returns the session totals, preferring the closing snapshot.
func (h *Handler) RegisterStats(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scopedSession(w, r)
	if !ok {
		return
	}
	stats, err := h.orders.SessionStats(r.Context(), s.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("sessionId")
		e.Str(stats.SessionID)
		e.FieldStart("closed")
		e.Bool(stats.Closed)
		e.FieldStart("orderCount")
		e.Int(stats.OrderCount)
		encodeMoney(e, "ordersTotal", stats.OrdersTotal)
		encodeMoney(e, "treatTotal", stats.TreatTotal)
		encodeMoney(e, "totalDiscounts", stats.TotalDiscounts)
		e.ObjEnd()
	})
}

// scopedSession loads the {id} session and checks that the caller may see
// it: a tenant-wide caller sees every session of its tenant, a facility
// caller only the sessions of its facility. Other sessions are reported as
// not found.
func (h *Handler) scopedSession(w http.ResponseWriter, r *http.Request) (*register.Session, bool) {
	_, sc, ok := h.resolveScope(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.registers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	if !canAccess(sc, s.Scope) {
		writeDomainError(w, r, register.ErrSessionNotFound)
		return nil, false
	}
	return s, true
}

func canAccess(caller, session scope.Scope) bool {
	if caller.TenantID != session.TenantID {
		return false
	}
	return caller.TenantWide() || caller.FacilityID == session.FacilityID
}

func encodeScopeFields(e *jx.Encoder, sc scope.Scope) {
	e.FieldStart("tenantId")
	e.Str(sc.TenantID)
	encodeOptString(e, "facilityId", sc.FacilityID)
}

func encodeSession(e *jx.Encoder, s *register.Session) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	encodeScopeFields(e, s.Scope)
	e.FieldStart("openedBy")
	e.Str(s.OpenedBy)
	encodeTime(e, "openedAt", s.OpenedAt)
	e.FieldStart("closedAt")
	if s.ClosedAt != nil {
		e.Str(s.ClosedAt.UTC().Format(timeFormat))
	} else {
		e.Null()
	}
	e.FieldStart("closing")
	if c := s.Closing; c != nil {
		e.ObjStart()
		encodeNullMoney(e, "ordersTotal", c.OrdersTotal)
		encodeNullMoney(e, "treatTotal", c.TreatTotal)
		encodeNullMoney(e, "totalDiscounts", c.TotalDiscounts)
		encodeMoney(e, "closingCash", c.ClosingCash)
		e.FieldStart("notes")
		e.Str(c.Notes)
		encodeTime(e, "createdAt", c.CreatedAt)
		e.ObjEnd()
	} else {
		e.Null()
	}
	e.ObjEnd()
}

func encodeNullMoney(e *jx.Encoder, field string, v decimal.NullDecimal) {
	if !v.Valid {
		e.FieldStart(field)
		e.Null()
		return
	}
	encodeMoney(e, field, v.Decimal)
}
