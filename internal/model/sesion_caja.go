package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EstadoCaja: "abierta" | "cerrada". The transition is one-way.
type EstadoCaja string

const (
	CajaAbierta EstadoCaja = "abierta"
	CajaCerrada EstadoCaja = "cerrada"
)

// MetodoAprobacion is how a supervisor authenticated an override.
type MetodoAprobacion string

const (
	AprobacionPIN      MetodoAprobacion = "PIN"
	AprobacionPassword MetodoAprobacion = "PASSWORD"
)

// SesionCaja represents the lifecycle of a cash register session.
// At most one open session exists per (tenant, punto de venta) and per
// (tenant, usuario); both are backed by partial unique indexes.
type SesionCaja struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	// PuntoDeVenta nil is its own slot, distinct from every numbered register.
	PuntoDeVenta      *int
	UsuarioID         uuid.UUID  `gorm:"type:uuid;not null"`
	MontoInicialCents int64      `gorm:"not null"`
	Estado            EstadoCaja `gorm:"type:varchar(20);not null;index"`
	Observaciones     *string
	OpenedAt          time.Time `gorm:"not null"`

	CerradaPorID     *uuid.UUID `gorm:"type:uuid"`
	MontoCierreCents *int64
	// MontoEsperadoCents is the snapshot taken at close; it is never recomputed in place.
	MontoEsperadoCents *int64
	// FiadoPendienteCents is the unsettled credit at close; later settlements
	// do not change it.
	FiadoPendienteCents *int64
	ClosedAt            *time.Time
	ObservacionesCierre *string

	AprobadoPorID    *uuid.UUID        `gorm:"type:uuid"`
	AprobadoPorRol   *Rol              `gorm:"type:varchar(20)"`
	AprobacionMetodo *MetodoAprobacion `gorm:"type:varchar(20)"`

	Retiros []Retiro `gorm:"foreignKey:SesionCajaID"`
}

func (SesionCaja) TableName() string { return "sesiones_caja" }

func (s *SesionCaja) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Retiro is a cash withdrawal from an open session. Append-only.
type Retiro struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index"`
	SesionCajaID uuid.UUID `gorm:"type:uuid;not null;index"`
	MontoCents   int64     `gorm:"not null"`
	Motivo       string    `gorm:"not null"`
	UsuarioID    uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt    time.Time
}

func (r *Retiro) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
