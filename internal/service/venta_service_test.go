package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"blendcloud/internal/apierror"
	"blendcloud/internal/dto"
	"blendcloud/internal/model"
	"blendcloud/internal/repository"
	"blendcloud/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRegistrar_PaymentBoundaries(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 1000, 50)
	owner := principalOf(f.store.Owner)
	items := []dto.ItemVentaRequest{item(p, 1)}

	resp, err := f.ventas.Registrar(f.ctx(), owner, f.ventaReq(sesionID, "b-1", items, pago(model.PagoDebito, 1000)))
	require.NoError(t, err)
	assert.EqualValues(t, 1000, resp.TotalCents)
	assert.Zero(t, resp.VueltoCents)

	_, err = f.ventas.Registrar(f.ctx(), owner, f.ventaReq(sesionID, "b-2", items, pago(model.PagoDebito, 1200)))
	assert.Equal(t, apierror.CodeValidation, codeOf(err), "non-cash cannot exceed the remaining balance")

	resp, err = f.ventas.Registrar(f.ctx(), owner, f.ventaReq(sesionID, "b-3", items, pago(model.PagoEfectivo, 1200)))
	require.NoError(t, err)
	assert.EqualValues(t, 200, resp.VueltoCents)
	assert.EqualValues(t, 1200, resp.PagadoCents)
	require.Len(t, resp.Pagos, 1)
	assert.EqualValues(t, 1000, resp.Pagos[0].MontoCents, "cash is recorded net of change")

	_, err = f.ventas.Registrar(f.ctx(), owner, f.ventaReq(sesionID, "b-4", items, pago(model.PagoEfectivo, 999)))
	assert.Equal(t, apierror.CodeValidation, codeOf(err), "insufficient payment")

	assert.Equal(t, 48, f.stockDe(t, p.ID), "rejected sales never touch stock")
}

func TestRegistrar_IdempotentSequential(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 450, 10)
	req := f.ventaReq(sesionID, "pos-7-000123", []dto.ItemVentaRequest{item(p, 2)}, pago(model.PagoEfectivo, 1000))

	first, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TotalCents, second.TotalCents)
	assert.Equal(t, first.VueltoCents, second.VueltoCents)
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.Pagos, second.Pagos)

	assert.Equal(t, 8, f.stockDe(t, p.ID), "stock is debited once")
	assertVentas(t, f, 1)
}

func TestRegistrar_IdempotentConcurrent(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 300, 20)
	req := f.ventaReq(sesionID, "concurrente-1", []dto.ItemVentaRequest{item(p, 3)}, pago(model.PagoCredito, 900))

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		originals int
		ids       = map[string]struct{}{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[resp.ID] = struct{}{}
			if !resp.Duplicate {
				originals++
			}
			assert.EqualValues(t, 900, resp.TotalCents)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, originals)
	assert.Len(t, ids, 1)
	assert.Equal(t, 17, f.stockDe(t, p.ID))
	assertVentas(t, f, 1)
}

// missOnceRepo hides the first idempotency lookup so the insert hits the
// unique index, the way a concurrent twin would.
type missOnceRepo struct {
	repository.VentaRepository
	missed atomic.Bool
}

func (r *missOnceRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Venta, error) {
	if r.missed.CompareAndSwap(false, true) {
		return nil, gorm.ErrRecordNotFound
	}
	return r.VentaRepository.FindByIdempotencyKey(ctx, key)
}

func TestRegistrar_UniqueIndexBackstop(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 700, 5)
	req := f.ventaReq(sesionID, "carrera", []dto.ItemVentaRequest{item(p, 1)}, pago(model.PagoPix, 700))

	first, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	require.NoError(t, err)

	racing := f.newVentaService(&missOnceRepo{VentaRepository: repository.NewVentaRepository(f.db)}, repository.NewStockRepository(f.db))
	second, err := racing.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	require.NoError(t, err, "the loser must not see a constraint error")
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 4, f.stockDe(t, p.ID), "the loser's stock debit is rolled back")
	movs, err := repository.NewStockRepository(f.db).ListMovimientos(f.ctx(), p.ID)
	require.NoError(t, err)
	assert.Len(t, movs, 1)
}

type failingStock struct{ repository.StockRepository }

func (failingStock) DebitTx(*gorm.DB, repository.Debito) (*model.MovimientoStock, error) {
	return nil, errors.New("deposito no disponible")
}

func TestRegistrar_StockFailureAbortsSale(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 100, 5)

	svc := f.newVentaService(repository.NewVentaRepository(f.db), failingStock{})
	_, err := svc.Registrar(f.ctx(), principalOf(f.store.Owner),
		f.ventaReq(sesionID, "sin-stock", []dto.ItemVentaRequest{item(p, 1)}, pago(model.PagoEfectivo, 100)))
	assert.Equal(t, apierror.CodeInternal, codeOf(err))
	assert.Equal(t, "Error interno del servidor", apierror.MessageOf(err))

	assertVentas(t, f, 0)
}

type duplicateStock struct{ repository.StockRepository }

func (duplicateStock) DebitTx(*gorm.DB, repository.Debito) (*model.MovimientoStock, error) {
	return nil, fmt.Errorf("alta de stock_ubicacion: %w", gorm.ErrDuplicatedKey)
}

func TestRegistrar_StockUniqueViolationIsInternal(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 100, 5)

	svc := f.newVentaService(repository.NewVentaRepository(f.db), duplicateStock{})
	_, err := svc.Registrar(f.ctx(), principalOf(f.store.Owner),
		f.ventaReq(sesionID, "stock-dup", []dto.ItemVentaRequest{item(p, 1)}, pago(model.PagoEfectivo, 100)))
	assert.Equal(t, apierror.CodeInternal, codeOf(err), "only the sale row's own key means a concurrent retry")

	assertVentas(t, f, 0)
}

func TestStock_FirstUseCreatesRowOnce(t *testing.T) {
	f := newFixture(t, 0)
	stock := repository.NewStockRepository(f.db)
	productoID := f.producto(t, 100, 0).ID
	ubicacionID := uuid.New()

	for i := 0; i < 2; i++ {
		err := f.db.WithContext(f.ctx()).Transaction(func(tx *gorm.DB) error {
			_, err := stock.DebitTx(tx, repository.Debito{ProductoID: productoID, UbicacionID: ubicacionID, Cantidad: 1, Motivo: "venta"})
			return err
		})
		require.NoError(t, err)
	}

	n, err := stock.Cantidad(f.ctx(), productoID, ubicacionID)
	require.NoError(t, err)
	assert.Equal(t, -2, n)
	var filas int64
	require.NoError(t, f.db.WithContext(f.ctx()).Model(&model.StockUbicacion{}).
		Where("producto_id = ? AND ubicacion_id = ?", productoID, ubicacionID).Count(&filas).Error)
	assert.EqualValues(t, 1, filas)
}

func TestRegistrar_SessionChecks(t *testing.T) {
	f := newFixture(t, 0)
	p := f.producto(t, 100, 5)
	items := []dto.ItemVentaRequest{item(p, 1)}
	owner := principalOf(f.store.Owner)

	_, err := f.ventas.Registrar(f.ctx(), owner, f.ventaReq(uuid.New(), "x-1", items, pago(model.PagoEfectivo, 100)))
	assert.Equal(t, apierror.CodeNotFound, codeOf(err))

	cerrada := f.abrir(t, f.store.Owner, intPtr(1), 0)
	f.cerrar(t, f.store.Owner, cerrada, 0)
	_, err = f.ventas.Registrar(f.ctx(), owner, f.ventaReq(cerrada, "x-2", items, pago(model.PagoEfectivo, 100)))
	assert.Equal(t, apierror.CodeConflict, codeOf(err))

	otra := testutil.SeedStore(t, f.db, "Vecina", 0)
	ajena, err := f.caja.Abrir(otra.Ctx, principalOf(otra.Owner), dto.AbrirCajaRequest{})
	require.NoError(t, err)
	_, err = f.ventas.Registrar(f.ctx(), owner, f.ventaReq(uuidOf(t, ajena.ID), "x-3", items, pago(model.PagoEfectivo, 100)))
	assert.Equal(t, apierror.CodeNotFound, codeOf(err), "another tenant's session does not exist here")
}

func TestRegistrar_Discounts(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 335, 10)

	req := f.ventaReq(sesionID, "desc-1",
		[]dto.ItemVentaRequest{{ProductoID: p.ID.String(), Cantidad: 3, DescuentoCents: 0}},
		pago(model.PagoEfectivo, 904))
	req.Descuento = &dto.DescuentoVentaRequest{Tipo: "porcentaje", Valor: decimal.NewFromInt(10)}

	resp, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	require.NoError(t, err)
	assert.EqualValues(t, 1005, resp.SubtotalCents)
	assert.EqualValues(t, 101, resp.DescuentoCents, "100.5 rounds half-up")
	assert.EqualValues(t, 904, resp.TotalCents)

	req = f.ventaReq(sesionID, "desc-2",
		[]dto.ItemVentaRequest{{ProductoID: p.ID.String(), Cantidad: 2, DescuentoCents: 70}},
		pago(model.PagoDebito, 500))
	req.Descuento = &dto.DescuentoVentaRequest{Tipo: "monto", Valor: decimal.NewFromInt(100)}
	resp, err = f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	require.NoError(t, err)
	assert.EqualValues(t, 600, resp.SubtotalCents)
	assert.EqualValues(t, 500, resp.TotalCents)
	require.Len(t, resp.Items, 1)
	assert.EqualValues(t, 70, resp.Items[0].DescuentoCents)

	req = f.ventaReq(sesionID, "desc-3",
		[]dto.ItemVentaRequest{{ProductoID: p.ID.String(), Cantidad: 1, DescuentoCents: 400}},
		pago(model.PagoEfectivo, 100))
	_, err = f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	assert.Equal(t, apierror.CodeValidation, codeOf(err), "item discount above the line gross")
}

func TestRegistrar_StockMayGoNegative(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 100, 1)

	resp, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner),
		f.ventaReq(sesionID, "neg-1", []dto.ItemVentaRequest{item(p, 3)}, pago(model.PagoEfectivo, 300)))
	require.NoError(t, err)
	assert.True(t, resp.ConflictoStock)
	assert.Equal(t, -2, f.stockDe(t, p.ID))
}

func TestRegistrar_Fiado(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)
	p := f.producto(t, 1000, 5)

	req := f.ventaReq(sesionID, "fiado-sin-cliente", []dto.ItemVentaRequest{item(p, 1)}, pago(model.PagoFiado, 1000))
	_, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	assert.Equal(t, apierror.CodeValidation, codeOf(err))

	req.IdempotencyKey = "fiado-con-cliente"
	req.Cliente = strPtr("Juan")
	_, err = f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner), req)
	require.NoError(t, err)

	fiados, err := repository.NewFiadoRepository(f.db).ListBySesion(f.ctx(), sesionID)
	require.NoError(t, err)
	require.Len(t, fiados, 1)
	assert.EqualValues(t, 1000, fiados[0].MontoCents)
	assert.Nil(t, fiados[0].SaldadoAt)
}

func TestRegistrar_CatalogIsTenantScoped(t *testing.T) {
	f := newFixture(t, 0)
	sesionID := f.abrir(t, f.store.Owner, intPtr(1), 0)

	otra := testutil.SeedStore(t, f.db, "Competencia", 0)
	ajeno := testutil.SeedProducto(t, f.db, otra.Ctx, "Ajeno", 100, f.ubicacion, 5)

	_, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner),
		f.ventaReq(sesionID, "ajeno-1", []dto.ItemVentaRequest{item(ajeno, 1)}, pago(model.PagoEfectivo, 100)))
	assert.Equal(t, apierror.CodeValidation, codeOf(err))
}

func TestRegistrar_SameKeyInTwoTenants(t *testing.T) {
	f := newFixture(t, 0)
	sesionA := f.abrir(t, f.store.Owner, intPtr(1), 0)
	pA := f.producto(t, 100, 5)

	otra := testutil.SeedStore(t, f.db, "Sucursal Norte", 0)
	abierta, err := f.caja.Abrir(otra.Ctx, principalOf(otra.Owner), dto.AbrirCajaRequest{})
	require.NoError(t, err)
	pB := testutil.SeedProducto(t, f.db, otra.Ctx, "Norte", 100, f.ubicacion, 5)

	a, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner),
		f.ventaReq(sesionA, "ticket-1", []dto.ItemVentaRequest{item(pA, 1)}, pago(model.PagoEfectivo, 100)))
	require.NoError(t, err)
	b, err := f.ventas.Registrar(otra.Ctx, principalOf(otra.Owner),
		f.ventaReq(uuidOf(t, abierta.ID), "ticket-1", []dto.ItemVentaRequest{item(pB, 1)}, pago(model.PagoEfectivo, 100)))
	require.NoError(t, err)

	assert.False(t, b.Duplicate)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestList_FiltersBySesion(t *testing.T) {
	f := newFixture(t, 0)
	s1 := f.abrir(t, f.store.Owner, intPtr(1), 0)
	s2 := f.abrir(t, f.store.Admin, intPtr(2), 0)
	p := f.producto(t, 100, 50)

	for i, s := range []uuid.UUID{s1, s1, s2} {
		_, err := f.ventas.Registrar(f.ctx(), principalOf(f.store.Owner),
			f.ventaReq(s, "l-"+string(rune('0'+i)), []dto.ItemVentaRequest{item(p, 1)}, pago(model.PagoEfectivo, 100)))
		require.NoError(t, err)
	}

	all, err := f.ventas.List(f.ctx(), dto.VentaFilter{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)

	solo, err := f.ventas.List(f.ctx(), dto.VentaFilter{SesionCajaID: s1.String(), Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 2, solo.Total)
	for _, v := range solo.Data {
		assert.Equal(t, s1.String(), v.SesionCajaID)
		assert.Len(t, v.Items, 1)
	}

	_, err = f.ventas.List(f.ctx(), dto.VentaFilter{Fecha: "ayer"})
	assert.Equal(t, apierror.CodeValidation, codeOf(err))
}

func assertVentas(t *testing.T, f *fixture, want int64) {
	t.Helper()
	var n int64
	require.NoError(t, f.db.WithContext(f.ctx()).Model(&model.Venta{}).Count(&n).Error)
	assert.Equal(t, want, n)
}
