package repository

import (
	"context"

	"blendcloud/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantRepository reads tenant settings. The tenants table has no tenant_id
// column, so callers pass the id resolved from the context.
type TenantRepository interface {
	Create(ctx context.Context, t *model.Tenant) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	// LockTx takes a row lock on the tenant so concurrent openings serialize
	// on the open-session cap.
	LockTx(tx *gorm.DB, id uuid.UUID) (*model.Tenant, error)
}

type tenantRepo struct{ db *gorm.DB }

func NewTenantRepository(db *gorm.DB) TenantRepository { return &tenantRepo{db: db} }

func (r *tenantRepo) Create(ctx context.Context, t *model.Tenant) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *tenantRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	var t model.Tenant
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	return &t, err
}

func (r *tenantRepo) LockTx(tx *gorm.DB, id uuid.UUID) (*model.Tenant, error) {
	var t model.Tenant
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, "id = ?", id).Error
	return &t, err
}
