package scope

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Resolver resolves the acting user's scope from membership data.
type Resolver struct {
	store      Store
	selections Selections
}

// NewResolver creates a Resolver. selections may be nil, in which case
// explicit facility selection is not consulted.
func NewResolver(store Store, selections Selections) *Resolver {
	return &Resolver{store: store, selections: selections}
}

// Resolve returns the user's scope. The tenant is the first tenant
// membership. The facility is, in order: a stored selection that belongs to
// the tenant, the first facility membership within the tenant, the first
// facility of the tenant. A tenant without facilities yields a tenant-wide
// scope.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Scope, error) {
	tenants, err := r.store.TenantMemberships(ctx, userID)
	if err != nil {
		return Scope{}, errors.Wrap(err, "tenant memberships")
	}
	if len(tenants) == 0 {
		return Scope{}, ErrScopeNotFound
	}
	tenantID := tenants[0].TenantID

	facilityID, err := r.resolveFacility(ctx, userID, tenantID)
	if err != nil {
		return Scope{}, err
	}
	return Scope{TenantID: tenantID, FacilityID: facilityID}, nil
}

func (r *Resolver) resolveFacility(ctx context.Context, userID, tenantID string) (string, error) {
	if r.selections != nil {
		id, ok, err := r.selections.Get(ctx, userID)
		if err != nil {
			// Selection is a preference; fall back to memberships.
			zctx.From(ctx).Warn("Facility selection lookup failed", zap.String("user_id", userID), zap.Error(err))
		} else if ok {
			belongs, err := r.facilityInTenant(ctx, tenantID, id)
			if err != nil {
				return "", err
			}
			if belongs {
				return id, nil
			}
			if err := r.selections.Clear(ctx, userID); err != nil {
				zctx.From(ctx).Warn("Clear stale facility selection", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	members, err := r.store.FacilityMemberships(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "facility memberships")
	}
	for _, f := range members {
		if f.TenantID == tenantID {
			return f.ID, nil
		}
	}

	facilities, err := r.store.TenantFacilities(ctx, tenantID)
	if err != nil {
		return "", errors.Wrap(err, "tenant facilities")
	}
	if len(facilities) > 0 {
		return facilities[0].ID, nil
	}
	return "", nil
}

// SelectFacility stores an explicit facility choice for the user after
// checking that it belongs to the user's tenant.
func (r *Resolver) SelectFacility(ctx context.Context, userID, facilityID string) (Scope, error) {
	if r.selections == nil {
		return Scope{}, ErrSelectionDisabled
	}
	tenants, err := r.store.TenantMemberships(ctx, userID)
	if err != nil {
		return Scope{}, errors.Wrap(err, "tenant memberships")
	}
	if len(tenants) == 0 {
		return Scope{}, ErrScopeNotFound
	}
	tenantID := tenants[0].TenantID

	belongs, err := r.facilityInTenant(ctx, tenantID, facilityID)
	if err != nil {
		return Scope{}, err
	}
	if !belongs {
		return Scope{}, ErrFacilityNotInTenant
	}
	if err := r.selections.Set(ctx, userID, facilityID); err != nil {
		return Scope{}, errors.Wrap(err, "store selection")
	}
	return Scope{TenantID: tenantID, FacilityID: facilityID}, nil
}

func (r *Resolver) facilityInTenant(ctx context.Context, tenantID, facilityID string) (bool, error) {
	facilities, err := r.store.TenantFacilities(ctx, tenantID)
	if err != nil {
		return false, errors.Wrap(err, "tenant facilities")
	}
	return slices.ContainsFunc(facilities, func(f Facility) bool {
		return f.ID == facilityID
	}), nil
}
