package repository

import (
	"context"
	"time"

	"blendcloud/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FiadoRepository persists store-credit receivables.
type FiadoRepository interface {
	CreateTx(tx *gorm.DB, f *model.Fiado) error
	ListBySesion(ctx context.Context, sesionCajaID uuid.UUID) ([]model.Fiado, error)
	SumPendienteTx(tx *gorm.DB, sesionCajaID uuid.UUID) (int64, error)
	// Saldar marks a pending receivable as settled; false when it was not pending.
	Saldar(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Fiado, error)
}

type fiadoRepo struct{ db *gorm.DB }

func NewFiadoRepository(db *gorm.DB) FiadoRepository { return &fiadoRepo{db: db} }

func (r *fiadoRepo) CreateTx(tx *gorm.DB, f *model.Fiado) error {
	return tx.Create(f).Error
}

func (r *fiadoRepo) ListBySesion(ctx context.Context, sesionCajaID uuid.UUID) ([]model.Fiado, error) {
	var out []model.Fiado
	err := r.db.WithContext(ctx).
		Where("sesion_caja_id = ?", sesionCajaID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *fiadoRepo) SumPendienteTx(tx *gorm.DB, sesionCajaID uuid.UUID) (int64, error) {
	var total int64
	err := tx.Model(&model.Fiado{}).
		Where("sesion_caja_id = ? AND saldado_at IS NULL", sesionCajaID).
		Select("COALESCE(SUM(monto_cents), 0)").
		Scan(&total).Error
	return total, err
}

func (r *fiadoRepo) Saldar(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Fiado{}).
		Where("id = ? AND saldado_at IS NULL", id).
		Update("saldado_at", now)
	return res.RowsAffected == 1, res.Error
}

func (r *fiadoRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Fiado, error) {
	var f model.Fiado
	err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error
	return &f, err
}
