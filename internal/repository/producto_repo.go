package repository

import (
	"context"

	"blendcloud/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductoRepository is the read side of the catalog used to price sales.
type ProductoRepository interface {
	Create(ctx context.Context, p *model.Producto) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Producto, error)
	// FindByIDs returns the products found, keyed by id. Missing ids are simply absent.
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Producto, error)
}

type productoRepo struct{ db *gorm.DB }

func NewProductoRepository(db *gorm.DB) ProductoRepository { return &productoRepo{db: db} }

func (r *productoRepo) Create(ctx context.Context, p *model.Producto) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productoRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Producto, error) {
	var p model.Producto
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return &p, err
}

func (r *productoRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Producto, error) {
	out := make(map[uuid.UUID]model.Producto, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var productos []model.Producto
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&productos).Error; err != nil {
		return nil, err
	}
	for _, p := range productos {
		out[p.ID] = p
	}
	return out, nil
}
