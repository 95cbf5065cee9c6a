package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/clubos/internal/domain/scope"
)

// CurrentScope returns the caller's resolved tenant and facility.
func (h *Handler) CurrentScope(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.resolveScope(w, r)
	if !ok {
		return
	}
	writeScope(w, sc)
}

// SelectFacility stores the caller's explicit facility choice.
func (h *Handler) SelectFacility(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var facilityID string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "facilityId" {
			return d.Skip()
		}
		v, err := d.Str()
		facilityID = v
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if facilityID == "" {
		writeError(w, http.StatusBadRequest, "facilityId is required")
		return
	}

	sc, err := h.scopes.SelectFacility(r.Context(), userID, facilityID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeScope(w, sc)
}

func writeScope(w http.ResponseWriter, sc scope.Scope) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeScopeFields(e, sc)
		e.FieldStart("tenantWide")
		e.Bool(sc.TenantWide())
		e.ObjEnd()
	})
}
