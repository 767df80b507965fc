package repository

import (
	"context"
	"strings"

	"blendcloud/internal/model"
	"blendcloud/internal/tenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UsuarioRepository interface {
	Create(ctx context.Context, u *model.Usuario) error
	// FindByEmailForLogin is the one pre-tenant lookup: it runs before any
	// tenant is bound and therefore bypasses the tenant filter.
	FindByEmailForLogin(ctx context.Context, email string) (*model.Usuario, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Usuario, error)
	// ListSupervisores returns active OWNER/ADMIN users of the bound tenant.
	ListSupervisores(ctx context.Context) ([]model.Usuario, error)
}

type usuarioRepo struct{ db *gorm.DB }

func NewUsuarioRepository(db *gorm.DB) UsuarioRepository { return &usuarioRepo{db: db} }

func (r *usuarioRepo) Create(ctx context.Context, u *model.Usuario) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *usuarioRepo) FindByEmailForLogin(ctx context.Context, email string) (*model.Usuario, error) {
	var u model.Usuario
	err := tenant.Bootstrap(r.db.WithContext(ctx)).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	return &u, err
}

func (r *usuarioRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Usuario, error) {
	var u model.Usuario
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	return &u, err
}

func (r *usuarioRepo) ListSupervisores(ctx context.Context) ([]model.Usuario, error) {
	var users []model.Usuario
	err := r.db.WithContext(ctx).
		Where("activo = ? AND rol IN ?", true, []model.Rol{model.RolOwner, model.RolAdmin}).
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}
