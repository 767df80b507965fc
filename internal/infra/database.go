package infra

import (
	"fmt"

	"blendcloud/internal/model"
	"blendcloud/internal/tenant"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection to Postgres, migrates the schema
// and installs the tenant filter. TranslateError is on so unique-index
// violations surface as gorm.ErrDuplicatedKey.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := Prepare(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Prepare migrates db and then registers the tenant callbacks. Migrations run
// first because they are the trusted bootstrap and touch every table.
func Prepare(db *gorm.DB) error {
	if err := RunMigrations(db); err != nil {
		return err
	}
	return tenant.RegisterCallbacks(db)
}

// RunMigrations creates / updates all tables, then applies the idempotent SQL
// patches GORM cannot express (partial unique indexes).
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Tenant{},
		&model.Usuario{},
		&model.SesionAuth{},
		&model.SesionCaja{},
		&model.Retiro{},
		&model.Venta{},
		&model.VentaItem{},
		&model.VentaPago{},
		&model.Fiado{},
		&model.Producto{},
		&model.StockUbicacion{},
		&model.MovimientoStock{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs DDL that is valid on both Postgres and SQLite (the
// test engine). Each statement uses IF NOT EXISTS so re-running is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// One open session per register; a NULL register is its own slot.
		{"uniq open session per register", `
CREATE UNIQUE INDEX IF NOT EXISTS idx_sesiones_caja_abierta_pdv
    ON sesiones_caja (tenant_id, COALESCE(punto_de_venta, -1))
    WHERE estado = 'abierta'`},
		// One open session per operator.
		{"uniq open session per user", `
CREATE UNIQUE INDEX IF NOT EXISTS idx_sesiones_caja_abierta_usuario
    ON sesiones_caja (tenant_id, usuario_id)
    WHERE estado = 'abierta'`},
		// Live refresh sessions are looked up per user on every refresh.
		{"idx live auth sessions", `
CREATE INDEX IF NOT EXISTS idx_sesiones_auth_activas
    ON sesiones_auth (tenant_id, usuario_id)
    WHERE revoked_at IS NULL`},
		// Pending receivables per session feed the closing report.
		{"idx pending fiados", `
CREATE INDEX IF NOT EXISTS idx_fiados_pendientes
    ON fiados (tenant_id, sesion_caja_id)
    WHERE saldado_at IS NULL`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
