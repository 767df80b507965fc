package repository

import (
	"context"
	"time"

	"blendcloud/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SesionAuthRepository persists refresh-token sessions (one row per device).
type SesionAuthRepository interface {
	Create(ctx context.Context, s *model.SesionAuth) error
	ListActivas(ctx context.Context, usuarioID uuid.UUID, now time.Time) ([]model.SesionAuth, error)
	// Rotate swaps the stored hash only if it still equals prevHash, so two
	// concurrent refreshes with the same token cannot both succeed.
	Rotate(ctx context.Context, id uuid.UUID, prevHash, salt, hash string, now, expiresAt time.Time) (bool, error)
	Revoke(ctx context.Context, usuarioID, id uuid.UUID, now time.Time) (bool, error)
	RevokeAll(ctx context.Context, usuarioID uuid.UUID, now time.Time) (int64, error)
}

type sesionAuthRepo struct{ db *gorm.DB }

func NewSesionAuthRepository(db *gorm.DB) SesionAuthRepository { return &sesionAuthRepo{db: db} }

func (r *sesionAuthRepo) Create(ctx context.Context, s *model.SesionAuth) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sesionAuthRepo) ListActivas(ctx context.Context, usuarioID uuid.UUID, now time.Time) ([]model.SesionAuth, error) {
	var out []model.SesionAuth
	err := r.db.WithContext(ctx).
		Where("usuario_id = ? AND revoked_at IS NULL AND expires_at > ?", usuarioID, now).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *sesionAuthRepo) Rotate(ctx context.Context, id uuid.UUID, prevHash, salt, hash string, now, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.SesionAuth{}).
		Where("id = ? AND refresh_hash = ? AND revoked_at IS NULL", id, prevHash).
		Updates(map[string]interface{}{
			"salt":         salt,
			"refresh_hash": hash,
			"last_used_at": now,
			"expires_at":   expiresAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *sesionAuthRepo) Revoke(ctx context.Context, usuarioID, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.SesionAuth{}).
		Where("id = ? AND usuario_id = ? AND revoked_at IS NULL", id, usuarioID).
		Update("revoked_at", now)
	return res.RowsAffected == 1, res.Error
}

func (r *sesionAuthRepo) RevokeAll(ctx context.Context, usuarioID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.SesionAuth{}).
		Where("usuario_id = ? AND revoked_at IS NULL", usuarioID).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}
