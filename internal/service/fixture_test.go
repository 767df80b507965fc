package service

import (
	"context"
	"sync"
	"testing"

	"blendcloud/internal/apierror"
	"blendcloud/internal/config"
	"blendcloud/internal/dto"
	"blendcloud/internal/model"
	"blendcloud/internal/repository"
	"blendcloud/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	cfg       *config.Config
	store     testutil.Store
	auth      AuthService
	caja      CajaService
	ventas    VentaService
	enqueuer  *fakeEnqueuer
	ubicacion uuid.UUID
}

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		JWTSecret:        "clave-de-pruebas-con-mas-de-32-caracteres",
		JWTAccessMinutes: 15,
		JWTRefreshHours:  24,
		BcryptCost:       4,
	}
}

func newFixture(t *testing.T, maxAbiertas int) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testConfig()
	f := &fixture{
		db:        db,
		cfg:       cfg,
		store:     testutil.SeedStore(t, db, "Almacen Central", maxAbiertas),
		enqueuer:  &fakeEnqueuer{},
		ubicacion: uuid.New(),
	}
	f.auth = NewAuthService(
		repository.NewUsuarioRepository(db),
		repository.NewTenantRepository(db),
		repository.NewSesionAuthRepository(db),
		cfg,
	)
	f.caja = NewCajaService(
		repository.NewCajaRepository(db),
		repository.NewTenantRepository(db),
		repository.NewVentaRepository(db),
		repository.NewFiadoRepository(db),
		f.auth,
		f.enqueuer,
	)
	f.ventas = f.newVentaService(repository.NewVentaRepository(db), repository.NewStockRepository(db))
	return f
}

func (f *fixture) newVentaService(repo repository.VentaRepository, stock repository.StockRepository) VentaService {
	return NewVentaService(
		repo,
		repository.NewCajaRepository(f.db),
		repository.NewProductoRepository(f.db),
		stock,
		repository.NewFiadoRepository(f.db),
	)
}

func (f *fixture) ctx() context.Context { return f.store.Ctx }

func principalOf(u model.Usuario) Principal {
	return Principal{UsuarioID: u.ID, TenantID: u.TenantID, Rol: u.Rol}
}

// abrir opens a session for u on the given register and returns its id.
func (f *fixture) abrir(t *testing.T, u model.Usuario, pdv *int, inicial int64) uuid.UUID {
	t.Helper()
	resp, err := f.caja.Abrir(f.ctx(), principalOf(u), dto.AbrirCajaRequest{PuntoDeVenta: pdv, MontoInicialCents: inicial})
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

func (f *fixture) cerrar(t *testing.T, u model.Usuario, sesionID uuid.UUID, monto int64) *dto.ReporteCierre {
	t.Helper()
	rep, err := f.caja.Cerrar(f.ctx(), principalOf(u), dto.CerrarCajaRequest{SesionCajaID: sesionID.String(), MontoCierreCents: monto})
	require.NoError(t, err)
	return rep
}

func (f *fixture) producto(t *testing.T, precio int64, stock int) model.Producto {
	t.Helper()
	return testutil.SeedProducto(t, f.db, f.ctx(), "Producto "+uuid.NewString()[:6], precio, f.ubicacion, stock)
}

func (f *fixture) stockDe(t *testing.T, productoID uuid.UUID) int {
	t.Helper()
	n, err := repository.NewStockRepository(f.db).Cantidad(f.ctx(), productoID, f.ubicacion)
	require.NoError(t, err)
	return n
}

func (f *fixture) ventaReq(sesionID uuid.UUID, key string, items []dto.ItemVentaRequest, pagos ...dto.PagoRequest) dto.RegistrarVentaRequest {
	return dto.RegistrarVentaRequest{
		SesionCajaID:   sesionID.String(),
		UbicacionID:    f.ubicacion.String(),
		IdempotencyKey: key,
		Items:          items,
		Pagos:          pagos,
	}
}

func item(p model.Producto, cantidad int) dto.ItemVentaRequest {
	return dto.ItemVentaRequest{ProductoID: p.ID.String(), Cantidad: cantidad}
}

func pago(metodo model.MetodoPago, cents int64) dto.PagoRequest {
	return dto.PagoRequest{Metodo: string(metodo), MontoCents: cents}
}

func codeOf(err error) apierror.Code { return apierror.CodeOf(err) }

type fakeEnqueuer struct {
	mu       sync.Mutex
	sesiones []uuid.UUID
	err      error
}

func (e *fakeEnqueuer) EnqueueReporteCierre(_ context.Context, _, sesionID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sesiones = append(e.sesiones, sesionID)
	return nil
}

func (e *fakeEnqueuer) encolados() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uuid.UUID(nil), e.sesiones...)
}

func uuidOf(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
