package repository

import (
	"context"

	"blendcloud/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CajaRepository persists cash sessions and their withdrawals. Methods with a
// Tx suffix must run on the transaction the caller opened.
type CajaRepository interface {
	CreateSesionTx(tx *gorm.DB, s *model.SesionCaja) error
	FindAbiertaPorPDVTx(tx *gorm.DB, puntoDeVenta *int) (*model.SesionCaja, error)
	FindAbiertaPorUsuarioTx(tx *gorm.DB, usuarioID uuid.UUID) (*model.SesionCaja, error)
	CountAbiertasTx(tx *gorm.DB) (int64, error)
	// FindSesionByIDTx reads the session under a row lock so a sale and a
	// close on the same session serialize.
	FindSesionByIDTx(tx *gorm.DB, id uuid.UUID) (*model.SesionCaja, error)
	// CerrarTx writes the closing fields only while the row is still open and
	// reports whether it won the transition.
	CerrarTx(tx *gorm.DB, s *model.SesionCaja) (bool, error)

	FindSesionByID(ctx context.Context, id uuid.UUID) (*model.SesionCaja, error)
	FindAbiertaPorUsuario(ctx context.Context, usuarioID uuid.UUID) (*model.SesionCaja, error)
	ListCerradas(ctx context.Context, page, limit int) ([]model.SesionCaja, int64, error)

	CreateRetiroTx(tx *gorm.DB, r *model.Retiro) error
	ListRetiros(ctx context.Context, sesionCajaID uuid.UUID) ([]model.Retiro, error)
	SumRetirosTx(tx *gorm.DB, sesionCajaID uuid.UUID) (int64, error)

	DB() *gorm.DB // exposes the DB for transaction creation in service layer
}

type cajaRepo struct{ db *gorm.DB }

func NewCajaRepository(db *gorm.DB) CajaRepository { return &cajaRepo{db: db} }

func (r *cajaRepo) DB() *gorm.DB { return r.db }

func (r *cajaRepo) CreateSesionTx(tx *gorm.DB, s *model.SesionCaja) error {
	return tx.Create(s).Error
}

func (r *cajaRepo) FindAbiertaPorPDVTx(tx *gorm.DB, puntoDeVenta *int) (*model.SesionCaja, error) {
	var s model.SesionCaja
	q := tx.Where("estado = ?", model.CajaAbierta)
	if puntoDeVenta == nil {
		q = q.Where("punto_de_venta IS NULL")
	} else {
		q = q.Where("punto_de_venta = ?", *puntoDeVenta)
	}
	err := q.First(&s).Error
	return &s, err
}

func (r *cajaRepo) FindAbiertaPorUsuarioTx(tx *gorm.DB, usuarioID uuid.UUID) (*model.SesionCaja, error) {
	var s model.SesionCaja
	err := tx.Where("usuario_id = ? AND estado = ?", usuarioID, model.CajaAbierta).First(&s).Error
	return &s, err
}

func (r *cajaRepo) CountAbiertasTx(tx *gorm.DB) (int64, error) {
	var n int64
	err := tx.Model(&model.SesionCaja{}).Where("estado = ?", model.CajaAbierta).Count(&n).Error
	return n, err
}

func (r *cajaRepo) FindSesionByIDTx(tx *gorm.DB, id uuid.UUID) (*model.SesionCaja, error) {
	var s model.SesionCaja
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *cajaRepo) CerrarTx(tx *gorm.DB, s *model.SesionCaja) (bool, error) {
	res := tx.Model(&model.SesionCaja{}).
		Where("id = ? AND estado = ?", s.ID, model.CajaAbierta).
		Updates(map[string]interface{}{
			"estado":                model.CajaCerrada,
			"cerrada_por_id":        s.CerradaPorID,
			"monto_cierre_cents":    s.MontoCierreCents,
			"monto_esperado_cents":  s.MontoEsperadoCents,
			"fiado_pendiente_cents": s.FiadoPendienteCents,
			"closed_at":             s.ClosedAt,
			"observaciones_cierre":  s.ObservacionesCierre,
			"aprobado_por_id":       s.AprobadoPorID,
			"aprobado_por_rol":      s.AprobadoPorRol,
			"aprobacion_metodo":     s.AprobacionMetodo,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *cajaRepo) FindSesionByID(ctx context.Context, id uuid.UUID) (*model.SesionCaja, error) {
	var s model.SesionCaja
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *cajaRepo) FindAbiertaPorUsuario(ctx context.Context, usuarioID uuid.UUID) (*model.SesionCaja, error) {
	return r.FindAbiertaPorUsuarioTx(r.db.WithContext(ctx), usuarioID)
}

func (r *cajaRepo) ListCerradas(ctx context.Context, page, limit int) ([]model.SesionCaja, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.SesionCaja{}).
		Where("estado = ?", model.CajaCerrada).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sesiones []model.SesionCaja
	err := r.db.WithContext(ctx).
		Where("estado = ?", model.CajaCerrada).
		Order("closed_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sesiones).Error
	return sesiones, total, err
}

func (r *cajaRepo) CreateRetiroTx(tx *gorm.DB, ret *model.Retiro) error {
	return tx.Create(ret).Error
}

func (r *cajaRepo) ListRetiros(ctx context.Context, sesionCajaID uuid.UUID) ([]model.Retiro, error) {
	var out []model.Retiro
	err := r.db.WithContext(ctx).
		Where("sesion_caja_id = ?", sesionCajaID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *cajaRepo) SumRetirosTx(tx *gorm.DB, sesionCajaID uuid.UUID) (int64, error) {
	var total int64
	err := tx.Model(&model.Retiro{}).
		Where("sesion_caja_id = ?", sesionCajaID).
		Select("COALESCE(SUM(monto_cents), 0)").
		Scan(&total).Error
	return total, err
}
