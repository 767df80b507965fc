package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"blendcloud/internal/apierror"
	"blendcloud/internal/model"
	"blendcloud/internal/repository"
	"blendcloud/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func abrir(t *testing.T, db *gorm.DB, ctx context.Context, usuario uuid.UUID, pdv *int) model.SesionCaja {
	t.Helper()
	s := model.SesionCaja{PuntoDeVenta: pdv, UsuarioID: usuario, MontoInicialCents: 1000, Estado: model.CajaAbierta, OpenedAt: time.Now()}
	require.NoError(t, repository.NewCajaRepository(db).CreateSesionTx(db.WithContext(ctx), &s))
	return s
}

func TestCajaRepo_IsolationAcrossTenants(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.SeedStore(t, db, "Almacen A", 0)
	b := testutil.SeedStore(t, db, "Almacen B", 0)
	repo := repository.NewCajaRepository(db)

	sesion := abrir(t, db, a.Ctx, a.Owner.ID, nil)

	_, err := repo.FindSesionByID(b.Ctx, sesion.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "tenant B must not see tenant A's session by id")

	n, err := repo.CountAbiertasTx(db.WithContext(b.Ctx))
	require.NoError(t, err)
	assert.Zero(t, n)

	closed := sesion
	now := time.Now()
	closed.ClosedAt = &now
	won, err := repo.CerrarTx(db.WithContext(b.Ctx), &closed)
	require.NoError(t, err)
	assert.False(t, won, "tenant B must not close tenant A's session")

	got, err := repo.FindSesionByID(a.Ctx, sesion.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CajaAbierta, got.Estado)
}

func TestCajaRepo_PartialIndexesBackstopOpenSlots(t *testing.T) {
	db := testutil.NewDB(t)
	s := testutil.SeedStore(t, db, "Kiosco", 0)
	repo := repository.NewCajaRepository(db)

	abrir(t, db, s.Ctx, s.Owner.ID, nil)

	dup := model.SesionCaja{UsuarioID: s.Admin.ID, Estado: model.CajaAbierta, OpenedAt: time.Now()}
	err := repo.CreateSesionTx(db.WithContext(s.Ctx), &dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey, "null register is a single slot")

	pdv := 2
	other := model.SesionCaja{PuntoDeVenta: &pdv, UsuarioID: s.Owner.ID, Estado: model.CajaAbierta, OpenedAt: time.Now()}
	err = repo.CreateSesionTx(db.WithContext(s.Ctx), &other)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey, "one open session per operator")

	pdv3 := 3
	abrir(t, db, s.Ctx, s.Admin.ID, &pdv3)
}

func TestVentaRepo_DuplicateKeyIsTranslated(t *testing.T) {
	db := testutil.NewDB(t)
	s := testutil.SeedStore(t, db, "Despensa", 0)
	repo := repository.NewVentaRepository(db)

	mk := func() *model.Venta {
		return &model.Venta{
			IdempotencyKey: "pos-1-0001",
			SesionCajaID:   uuid.New(),
			UsuarioID:      s.Owner.ID,
			UbicacionID:    uuid.New(),
			TotalCents:     100,
			Pagos:          []model.VentaPago{{Linea: 1, Metodo: model.PagoEfectivo, MontoCents: 100}},
		}
	}
	first := mk()
	require.NoError(t, repo.CreateTx(db.WithContext(s.Ctx), first))
	assert.Equal(t, s.Tenant.ID, first.Pagos[0].TenantID, "children inherit the tenant")

	err := repo.CreateTx(db.WithContext(s.Ctx), mk())
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	other := testutil.SeedStore(t, db, "Otra", 0)
	require.NoError(t, repo.CreateTx(db.WithContext(other.Ctx), mk()), "keys are unique per tenant only")

	found, err := repo.FindByIdempotencyKey(s.Ctx, "pos-1-0001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	require.Len(t, found.Pagos, 1)
}

func TestStockRepo_DebitRecordsMovement(t *testing.T) {
	db := testutil.NewDB(t)
	s := testutil.SeedStore(t, db, "Drugstore", 0)
	ubicacion := uuid.New()
	p := testutil.SeedProducto(t, db, s.Ctx, "Alfajor", 350, ubicacion, 2)
	repo := repository.NewStockRepository(db)

	var mov *model.MovimientoStock
	err := db.WithContext(s.Ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		mov, err = repo.DebitTx(tx, repository.Debito{ProductoID: p.ID, UbicacionID: ubicacion, Cantidad: 3, Motivo: "venta"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, mov.StockAnterior)
	assert.Equal(t, -1, mov.StockNuevo)

	cant, err := repo.Cantidad(s.Ctx, p.ID, ubicacion)
	require.NoError(t, err)
	assert.Equal(t, -1, cant)

	require.NoError(t, repo.Ajustar(s.Ctx, p.ID, ubicacion, 10, "recuento"))
	cant, err = repo.Cantidad(s.Ctx, p.ID, ubicacion)
	require.NoError(t, err)
	assert.Equal(t, 10, cant)

	movs, err := repo.ListMovimientos(s.Ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, movs, 2)
}

func TestStockRepo_RejectsNonPositiveDebit(t *testing.T) {
	db := testutil.NewDB(t)
	s := testutil.SeedStore(t, db, "Drugstore", 0)
	_, err := repository.NewStockRepository(db).DebitTx(db.WithContext(s.Ctx), repository.Debito{ProductoID: uuid.New(), UbicacionID: uuid.New(), Cantidad: 0})
	assert.Error(t, err)
}

func TestSesionAuthRepo_RotateIsConditional(t *testing.T) {
	db := testutil.NewDB(t)
	s := testutil.SeedStore(t, db, "Bazar", 0)
	repo := repository.NewSesionAuthRepository(db)
	now := time.Now()

	sa := model.SesionAuth{UsuarioID: s.Owner.ID, Salt: "s0", RefreshHash: "h0", ExpiresAt: now.Add(time.Hour), LastUsedAt: now}
	require.NoError(t, repo.Create(s.Ctx, &sa))

	ok, err := repo.Rotate(s.Ctx, sa.ID, "h0", "s1", "h1", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Rotate(s.Ctx, sa.ID, "h0", "s2", "h2", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "a stale hash must not rotate")

	n, err := repo.RevokeAll(s.Ctx, s.Owner.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	activas, err := repo.ListActivas(s.Ctx, s.Owner.ID, now)
	require.NoError(t, err)
	assert.Empty(t, activas)
}

func TestUsuarioRepo_LoginLookupIsTheOnlyBypass(t *testing.T) {
	db := testutil.NewDB(t)
	s := testutil.SeedStore(t, db, "Ferreteria", 0)
	repo := repository.NewUsuarioRepository(db)

	u, err := repo.FindByEmailForLogin(context.Background(), s.Owner.Email)
	require.NoError(t, err)
	assert.Equal(t, s.Owner.ID, u.ID)

	_, err = repo.FindByID(context.Background(), s.Owner.ID)
	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.CodeTenantNotResolved, apiErr.Code)

	sups, err := repo.ListSupervisores(s.Ctx)
	require.NoError(t, err)
	assert.Len(t, sups, 2)
}

func TestFiadoRepo_SaldarOnce(t *testing.T) {
	db := testutil.NewDB(t)
	s := testutil.SeedStore(t, db, "Almacen", 0)
	repo := repository.NewFiadoRepository(db)

	f := model.Fiado{SesionCajaID: uuid.New(), VentaID: uuid.New(), Cliente: "Don Jose", MontoCents: 1500}
	require.NoError(t, repo.CreateTx(db.WithContext(s.Ctx), &f))

	ok, err := repo.Saldar(s.Ctx, f.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Saldar(s.Ctx, f.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}
