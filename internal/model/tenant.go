package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is an isolated store. It is the partitioning unit for every other table.
// Tenants are provisioned outside this service (see cmd/blendctl for local seeding).
type Tenant struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Nombre string    `gorm:"not null"`
	Activo bool      `gorm:"not null"`
	// MaxSesionesAbiertas caps concurrently open cash sessions; <= 0 means no cap.
	MaxSesionesAbiertas int `gorm:"not null"`
	// EmailReportes receives the closing report PDF of every cash session.
	EmailReportes *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (t *Tenant) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
