package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SesionAuth is one issued refresh token (one device). The token itself is
// never stored: only a random salt and sha256(salt || token).
type SesionAuth struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index"`
	UsuarioID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Salt        string    `gorm:"type:varchar(64);not null"`
	RefreshHash string    `gorm:"type:varchar(64);not null"`
	UserAgent   string
	IP          string `gorm:"type:varchar(64)"`
	CreatedAt   time.Time
	LastUsedAt  time.Time
	ExpiresAt   time.Time `gorm:"not null"`
	RevokedAt   *time.Time
}

func (SesionAuth) TableName() string { return "sesiones_auth" }

func (s *SesionAuth) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Activa reports whether the session can still mint tokens at now.
func (s *SesionAuth) Activa(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
