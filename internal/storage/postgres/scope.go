package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/clubos/internal/domain/scope"
)

const (
	tenantMembershipsSQL = `SELECT tenant_id, is_primary
		FROM tenant_members WHERE user_id = $1
		ORDER BY is_primary DESC, created_at, id`

	facilityMembershipsSQL = `SELECT f.id, f.tenant_id, fm.is_primary
		FROM facility_members fm JOIN facilities f ON f.id = fm.facility_id
		WHERE fm.user_id = $1
		ORDER BY fm.is_primary DESC, fm.created_at, fm.id`

	tenantFacilitiesSQL = `SELECT id, tenant_id, is_primary
		FROM facilities WHERE tenant_id = $1
		ORDER BY is_primary DESC, created_at, id`

	upsertTenantSQL = `INSERT INTO tenants (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertFacilitySQL = `INSERT INTO facilities (id, tenant_id, name, is_primary) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_primary = EXCLUDED.is_primary`

	addTenantMemberSQL = `INSERT INTO tenant_members (user_id, tenant_id, is_primary) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, tenant_id) DO UPDATE SET is_primary = EXCLUDED.is_primary`

	addFacilityMemberSQL = `INSERT INTO facility_members (user_id, facility_id, is_primary) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, facility_id) DO UPDATE SET is_primary = EXCLUDED.is_primary`
)

var _ scope.Store = (*ScopeStore)(nil)

// ScopeStore provides tenant and facility membership lookups.
type ScopeStore struct {
	pool *pgxpool.Pool
}

// NewScopeStore returns a ScopeStore that uses the given pool.
func NewScopeStore(pool *pgxpool.Pool) *ScopeStore {
	return &ScopeStore{pool: pool}
}

// TenantMemberships returns the user's tenant memberships in precedence order.
func (s *ScopeStore) TenantMemberships(ctx context.Context, userID string) ([]scope.TenantMembership, error) {
	rows, err := s.pool.Query(ctx, tenantMembershipsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tenant memberships for %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (scope.TenantMembership, error) {
		var m scope.TenantMembership
		err := row.Scan(&m.TenantID, &m.IsPrimary)
		return m, err
	})
}

// FacilityMemberships returns the user's facility memberships in precedence order.
func (s *ScopeStore) FacilityMemberships(ctx context.Context, userID string) ([]scope.Facility, error) {
	rows, err := s.pool.Query(ctx, facilityMembershipsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing facility memberships for %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanFacility)
}

// TenantFacilities returns the tenant's facilities in precedence order.
func (s *ScopeStore) TenantFacilities(ctx context.Context, tenantID string) ([]scope.Facility, error) {
	rows, err := s.pool.Query(ctx, tenantFacilitiesSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing facilities for tenant %q: %w", tenantID, err)
	}
	return pgx.CollectRows(rows, scanFacility)
}

// UpsertTenant creates or renames a tenant.
func (s *ScopeStore) UpsertTenant(ctx context.Context, id, name string) error {
	if _, err := s.pool.Exec(ctx, upsertTenantSQL, id, name); err != nil {
		return fmt.Errorf("upserting tenant %q: %w", id, err)
	}
	return nil
}

// UpsertFacility creates or updates a facility of a tenant.
func (s *ScopeStore) UpsertFacility(ctx context.Context, f scope.Facility, name string) error {
	if _, err := s.pool.Exec(ctx, upsertFacilitySQL, f.ID, f.TenantID, name, f.IsPrimary); err != nil {
		return fmt.Errorf("upserting facility %q: %w", f.ID, err)
	}
	return nil
}

// AddTenantMember adds the user to a tenant.
func (s *ScopeStore) AddTenantMember(ctx context.Context, userID, tenantID string, primary bool) error {
	if _, err := s.pool.Exec(ctx, addTenantMemberSQL, userID, tenantID, primary); err != nil {
		return fmt.Errorf("adding %q to tenant %q: %w", userID, tenantID, err)
	}
	return nil
}

// AddFacilityMember adds the user to a facility.
func (s *ScopeStore) AddFacilityMember(ctx context.Context, userID, facilityID string, primary bool) error {
	if _, err := s.pool.Exec(ctx, addFacilityMemberSQL, userID, facilityID, primary); err != nil {
		return fmt.Errorf("adding %q to facility %q: %w", userID, facilityID, err)
	}
	return nil
}

func scanFacility(row pgx.CollectableRow) (scope.Facility, error) {
	var f scope.Facility
	err := row.Scan(&f.ID, &f.TenantID, &f.IsPrimary)
	return f, err
}
