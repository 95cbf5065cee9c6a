package scope

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrScopeNotFound is returned when the user has no tenant membership and
	// must complete onboarding first.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrFacilityNotInTenant is returned when a facility selection does not
	// belong to the user's tenant.
	ErrFacilityNotInTenant = errors.New("facility does not belong to tenant")
	// ErrSelectionDisabled is returned by SelectFacility when no selection
	// store is configured.
	ErrSelectionDisabled = errors.New("facility selection is not configured")
)

// Scope is the (tenant, facility) pair that bounds a register session. An
// empty FacilityID means the scope is tenant-wide.
type Scope struct {
	TenantID   string
	FacilityID string
}

// TenantWide reports whether the scope has no facility.
func (s Scope) TenantWide() bool {
	return s.FacilityID == ""
}

func (s Scope) String() string {
	if s.TenantWide() {
		return s.TenantID
	}
	return s.TenantID + "/" + s.FacilityID
}

// TenantMembership links a user to a tenant.
type TenantMembership struct {
	TenantID  string
	IsPrimary bool
}

// Facility is a facility row, either from a user's facility memberships or
// from the facilities of a tenant.
type Facility struct {
	ID        string
	TenantID  string
	IsPrimary bool
}

// Store provides read-only membership lookups. Every method returns rows in
// precedence order: primary first, then oldest, then by id.
type Store interface {
	TenantMemberships(ctx context.Context, userID string) ([]TenantMembership, error)
	FacilityMemberships(ctx context.Context, userID string) ([]Facility, error)
	TenantFacilities(ctx context.Context, tenantID string) ([]Facility, error)
}

// Selections persists a user's explicit facility choice.
type Selections interface {
	// Get returns the selected facility id, or ok=false when there is none.
	Get(ctx context.Context, userID string) (facilityID string, ok bool, err error)
	Set(ctx context.Context, userID, facilityID string) error
	Clear(ctx context.Context, userID string) error
}
