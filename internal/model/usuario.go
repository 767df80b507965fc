package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rol is the closed set of user roles.
type Rol string

const (
	RolOwner     Rol = "OWNER"
	RolAdmin     Rol = "ADMIN"
	RolAttendant Rol = "ATTENDANT"
)

// ParseRol rejects anything outside the enum instead of letting it fall through.
func ParseRol(s string) (Rol, error) {
	switch r := Rol(s); r {
	case RolOwner, RolAdmin, RolAttendant:
		return r, nil
	default:
		return "", fmt.Errorf("rol desconocido: %q", s)
	}
}

// PuedeSupervisar reports whether the role can approve operations for others
// (closing a cash session opened by an attendant).
func (r Rol) PuedeSupervisar() bool {
	switch r {
	case RolOwner, RolAdmin:
		return true
	case RolAttendant:
		return false
	default:
		panic(fmt.Sprintf("rol fuera del enum: %q", string(r)))
	}
}

// Usuario stores system users with role-based access.
type Usuario struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	// Email is unique across tenants: login happens before the tenant is known.
	Email        string `gorm:"uniqueIndex;not null"`
	Nombre       string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Rol          Rol    `gorm:"type:varchar(20);not null"`
	// PINHash is the optional supervisor PIN (bcrypt) used to approve closings.
	PINHash   *string
	Activo    bool `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *Usuario) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
