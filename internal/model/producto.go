package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Producto is the catalog entry a sale prices from. Catalog management lives
// elsewhere; this service only reads it.
type Producto struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID `gorm:"type:uuid;not null;index"`
	Nombre           string    `gorm:"not null"`
	CodigoBarras     *string   `gorm:"index"`
	PrecioVentaCents int64     `gorm:"not null"`
	Activo           bool      `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p *Producto) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// StockUbicacion is the on-hand quantity of a product at one location.
// Cantidad may go negative: the sale is already paid, the deficit is flagged.
type StockUbicacion struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_tenant_producto_ubicacion,priority:1"`
	ProductoID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_tenant_producto_ubicacion,priority:2"`
	UbicacionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_tenant_producto_ubicacion,priority:3"`
	Cantidad    int       `gorm:"not null"`
	UpdatedAt   time.Time
}

func (StockUbicacion) TableName() string { return "stock_ubicaciones" }

func (s *StockUbicacion) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
