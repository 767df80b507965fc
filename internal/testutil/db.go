// Package testutil builds an in-memory database wired exactly like production
// (same migrations, same tenant filter) plus a few seed helpers.
package testutil

import (
	"context"
	"testing"

	"blendcloud/internal/infra"
	"blendcloud/internal/model"
	"blendcloud/internal/tenant"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	Password = "secreta-123"
	PIN      = "4321"
)

// NewDB opens a private in-memory SQLite database. A single connection keeps
// the database alive and serializes transactions the way row locks would.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infra.Prepare(db))
	return db
}

// Store is a seeded tenant with one user per role.
type Store struct {
	Tenant    model.Tenant
	Owner     model.Usuario
	Admin     model.Usuario
	Attendant model.Usuario
	// Ctx is bound to Tenant.
	Ctx context.Context
}

// SeedStore creates a tenant capped at maxAbiertas open cash sessions. The
// admin has PIN as supervisor PIN; every user has Password.
func SeedStore(t testing.TB, db *gorm.DB, nombre string, maxAbiertas int) Store {
	t.Helper()
	ten := model.Tenant{Nombre: nombre, Activo: true, MaxSesionesAbiertas: maxAbiertas}
	require.NoError(t, db.Create(&ten).Error)

	ctx, err := tenant.Bind(context.Background(), ten.ID)
	require.NoError(t, err)

	pwHash := Hash(t, Password)
	pinHash := Hash(t, PIN)
	suffix := uuid.NewString()[:8]

	mk := func(rol model.Rol, pin *string) model.Usuario {
		u := model.Usuario{
			Email:        string(rol) + "-" + suffix + "@" + "blend.test",
			Nombre:       nombre + " " + string(rol),
			PasswordHash: pwHash,
			Rol:          rol,
			PINHash:      pin,
			Activo:       true,
		}
		require.NoError(t, db.WithContext(ctx).Create(&u).Error)
		return u
	}

	return Store{
		Tenant:    ten,
		Owner:     mk(model.RolOwner, nil),
		Admin:     mk(model.RolAdmin, &pinHash),
		Attendant: mk(model.RolAttendant, nil),
		Ctx:       ctx,
	}
}

// SeedProducto creates a product priced at precioCents with stock units at ubicacion.
func SeedProducto(t testing.TB, db *gorm.DB, ctx context.Context, nombre string, precioCents int64, ubicacion uuid.UUID, stock int) model.Producto {
	t.Helper()
	p := model.Producto{Nombre: nombre, PrecioVentaCents: precioCents, Activo: true}
	require.NoError(t, db.WithContext(ctx).Create(&p).Error)
	s := model.StockUbicacion{ProductoID: p.ID, UbicacionID: ubicacion, Cantidad: stock}
	require.NoError(t, db.WithContext(ctx).Create(&s).Error)
	return p
}

// Hash is a cheap bcrypt hash for fixtures.
func Hash(t testing.TB, secret string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}
