package repository

import (
	"context"
	"errors"

	"blendcloud/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Debito is one stock decrement requested by a sale line.
type Debito struct {
	ProductoID   uuid.UUID
	UbicacionID  uuid.UUID
	Cantidad     int
	Motivo       string
	ReferenciaID *uuid.UUID
}

// StockRepository is the inventory side of a sale: it debits on-hand stock per
// location and records the movement, always inside the caller's transaction.
type StockRepository interface {
	// DebitTx applies d and returns the recorded movement. Stock may go
	// negative; callers read StockNuevo to flag the deficit.
	DebitTx(tx *gorm.DB, d Debito) (*model.MovimientoStock, error)
	Cantidad(ctx context.Context, productoID, ubicacionID uuid.UUID) (int, error)
	// Ajustar sets the on-hand quantity (initial load, manual counts).
	Ajustar(ctx context.Context, productoID, ubicacionID uuid.UUID, cantidad int, motivo string) error
	ListMovimientos(ctx context.Context, productoID uuid.UUID) ([]model.MovimientoStock, error)
}

type stockRepo struct{ db *gorm.DB }

func NewStockRepository(db *gorm.DB) StockRepository { return &stockRepo{db: db} }

func (r *stockRepo) DebitTx(tx *gorm.DB, d Debito) (*model.MovimientoStock, error) {
	if d.Cantidad <= 0 {
		return nil, errors.New("stock: cantidad a debitar debe ser positiva")
	}
	return r.moverTx(tx, d.ProductoID, d.UbicacionID, -d.Cantidad, "venta", d.Motivo, d.ReferenciaID)
}

func (r *stockRepo) Cantidad(ctx context.Context, productoID, ubicacionID uuid.UUID) (int, error) {
	var s model.StockUbicacion
	err := r.db.WithContext(ctx).
		Where("producto_id = ? AND ubicacion_id = ?", productoID, ubicacionID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return s.Cantidad, err
}

func (r *stockRepo) Ajustar(ctx context.Context, productoID, ubicacionID uuid.UUID, cantidad int, motivo string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actual, err := r.lockTx(tx, productoID, ubicacionID)
		if err != nil {
			return err
		}
		_, err = r.moverTx(tx, productoID, ubicacionID, cantidad-actual.Cantidad, "ajuste", motivo, nil)
		return err
	})
}

func (r *stockRepo) ListMovimientos(ctx context.Context, productoID uuid.UUID) ([]model.MovimientoStock, error) {
	var out []model.MovimientoStock
	err := r.db.WithContext(ctx).
		Where("producto_id = ?", productoID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// lockTx returns the stock row under a row lock, creating it at zero on first use.
func (r *stockRepo) lockTx(tx *gorm.DB, productoID, ubicacionID uuid.UUID) (*model.StockUbicacion, error) {
	var s model.StockUbicacion
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("producto_id = ? AND ubicacion_id = ?", productoID, ubicacionID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// A concurrent first use may insert the same row; keep theirs.
		nueva := model.StockUbicacion{ProductoID: productoID, UbicacionID: ubicacionID}
		err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&nueva).Error
		if err == nil {
			s = model.StockUbicacion{}
			err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("producto_id = ? AND ubicacion_id = ?", productoID, ubicacionID).
				First(&s).Error
		}
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *stockRepo) moverTx(tx *gorm.DB, productoID, ubicacionID uuid.UUID, delta int, tipo, motivo string, ref *uuid.UUID) (*model.MovimientoStock, error) {
	s, err := r.lockTx(tx, productoID, ubicacionID)
	if err != nil {
		return nil, err
	}
	anterior := s.Cantidad
	nuevo := anterior + delta

	res := tx.Model(&model.StockUbicacion{}).
		Where("id = ?", s.ID).
		Update("cantidad", nuevo)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, errors.New("stock: fila de stock no actualizada")
	}

	mov := &model.MovimientoStock{
		ProductoID:    productoID,
		UbicacionID:   ubicacionID,
		Tipo:          tipo,
		Cantidad:      delta,
		StockAnterior: anterior,
		StockNuevo:    nuevo,
		Motivo:        motivo,
		ReferenciaID:  ref,
	}
	if err := tx.Create(mov).Error; err != nil {
		return nil, err
	}
	return mov, nil
}
