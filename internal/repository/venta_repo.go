package repository

import (
	"context"
	"time"

	"blendcloud/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VentaFilter defines filters for listing sales.
type VentaFilter struct {
	SesionCajaID *uuid.UUID
	Desde        *time.Time
	Hasta        *time.Time
	Page         int
	Limit        int
}

type VentaRepository interface {
	// CreateTx inserts the sale with its items and payments. A duplicate
	// (tenant_id, idempotency_key) surfaces as gorm.ErrDuplicatedKey.
	CreateTx(tx *gorm.DB, v *model.Venta) error
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Venta, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Venta, error)
	ListBySesion(ctx context.Context, sesionCajaID uuid.UUID) ([]model.Venta, error)
	// SumEfectivoTx returns the cash payments of a session, already net of change.
	SumEfectivoTx(tx *gorm.DB, sesionCajaID uuid.UUID) (int64, error)
	List(ctx context.Context, filter VentaFilter) ([]model.Venta, int64, error)
	DB() *gorm.DB // exposes the DB for transaction creation in service layer
}

type ventaRepo struct{ db *gorm.DB }

func NewVentaRepository(db *gorm.DB) VentaRepository { return &ventaRepo{db: db} }

func (r *ventaRepo) DB() *gorm.DB { return r.db }

func (r *ventaRepo) CreateTx(tx *gorm.DB, v *model.Venta) error {
	return tx.Create(v).Error
}

func (r *ventaRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Venta, error) {
	var v model.Venta
	err := r.withChildren(r.db.WithContext(ctx)).
		Where("idempotency_key = ?", key).
		First(&v).Error
	return &v, err
}

func (r *ventaRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Venta, error) {
	var v model.Venta
	err := r.withChildren(r.db.WithContext(ctx)).First(&v, "id = ?", id).Error
	return &v, err
}

func (r *ventaRepo) ListBySesion(ctx context.Context, sesionCajaID uuid.UUID) ([]model.Venta, error) {
	var ventas []model.Venta
	err := r.withChildren(r.db.WithContext(ctx)).
		Where("sesion_caja_id = ?", sesionCajaID).
		Order("created_at ASC, id ASC").
		Find(&ventas).Error
	return ventas, err
}

func (r *ventaRepo) SumEfectivoTx(tx *gorm.DB, sesionCajaID uuid.UUID) (int64, error) {
	var efectivo int64
	err := tx.Model(&model.VentaPago{}).
		Joins("JOIN ventas ON ventas.id = venta_pagos.venta_id").
		Where("ventas.sesion_caja_id = ? AND venta_pagos.metodo = ?", sesionCajaID, model.PagoEfectivo).
		Select("COALESCE(SUM(venta_pagos.monto_cents), 0)").
		Scan(&efectivo).Error
	return efectivo, err
}

func (r *ventaRepo) List(ctx context.Context, filter VentaFilter) ([]model.Venta, int64, error) {
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.SesionCajaID != nil {
			q = q.Where("sesion_caja_id = ?", *filter.SesionCajaID)
		}
		if filter.Desde != nil {
			q = q.Where("created_at >= ?", *filter.Desde)
		}
		if filter.Hasta != nil {
			q = q.Where("created_at < ?", *filter.Hasta)
		}
		return q
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Venta{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ventas []model.Venta
	err := r.withChildren(r.db.WithContext(ctx)).Scopes(scope).
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).Limit(filter.Limit).
		Find(&ventas).Error
	return ventas, total, err
}

func (r *ventaRepo) withChildren(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("linea ASC") }).
		Preload("Pagos", func(db *gorm.DB) *gorm.DB { return db.Order("linea ASC") })
}
