package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Fiado is a store-credit receivable created by a sale paid with "fiado".
// It stays pending until SaldadoAt is set.
type Fiado struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index"`
	SesionCajaID uuid.UUID `gorm:"type:uuid;not null;index"`
	VentaID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Cliente      string    `gorm:"not null"`
	MontoCents   int64     `gorm:"not null"`
	SaldadoAt    *time.Time
	CreatedAt    time.Time
}

func (f *Fiado) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
