package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MetodoPago: "cash" | "debit" | "credit" | "pix" | "fiado"
type MetodoPago string

const (
	PagoEfectivo MetodoPago = "cash"
	PagoDebito   MetodoPago = "debit"
	PagoCredito  MetodoPago = "credit"
	PagoPix      MetodoPago = "pix"
	PagoFiado    MetodoPago = "fiado"
)

func (m MetodoPago) Valido() bool {
	switch m {
	case PagoEfectivo, PagoDebito, PagoCredito, PagoPix, PagoFiado:
		return true
	}
	return false
}

// Venta is a settled sale. Rows are immutable once created.
// (tenant_id, idempotency_key) is unique: it is the last line of defence
// against a retried request being applied twice.
type Venta struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ventas_tenant_idempotency,priority:1"`
	IdempotencyKey string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_ventas_tenant_idempotency,priority:2"`
	SesionCajaID   uuid.UUID `gorm:"type:uuid;not null;index"`
	UsuarioID      uuid.UUID `gorm:"type:uuid;not null"`
	UbicacionID    uuid.UUID `gorm:"type:uuid;not null"`
	SubtotalCents  int64     `gorm:"not null"`
	DescuentoCents int64     `gorm:"not null"`
	TotalCents     int64     `gorm:"not null"`
	PagadoCents    int64     `gorm:"not null"`
	VueltoCents    int64     `gorm:"not null"`
	// ConflictoStock marks a sale that drove a location's stock below zero.
	ConflictoStock bool `gorm:"not null"`
	CreatedAt      time.Time

	Items []VentaItem `gorm:"foreignKey:VentaID"`
	Pagos []VentaPago `gorm:"foreignKey:VentaID"`
}

func (v *Venta) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

type VentaItem struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID            uuid.UUID `gorm:"type:uuid;not null;index"`
	VentaID             uuid.UUID `gorm:"type:uuid;not null;index"`
	Linea               int       `gorm:"not null"`
	ProductoID          uuid.UUID `gorm:"type:uuid;not null"`
	Cantidad            int       `gorm:"not null"`
	PrecioUnitarioCents int64     `gorm:"not null"`
	DescuentoCents      int64     `gorm:"not null"`
	SubtotalCents       int64     `gorm:"not null"`
}

func (i *VentaItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

type VentaPago struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	VentaID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Linea      int        `gorm:"not null"`
	Metodo     MetodoPago `gorm:"type:varchar(20);not null"`
	MontoCents int64      `gorm:"not null"` // cash is stored net of change
}

func (p *VentaPago) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
