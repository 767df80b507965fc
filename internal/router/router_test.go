package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"blendcloud/internal/apierror"
	"blendcloud/internal/config"
	"blendcloud/internal/dto"
	"blendcloud/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		JWTSecret:        "clave-de-pruebas-con-mas-de-32-caracteres",
		JWTAccessMinutes: 15,
		JWTRefreshHours:  24,
		BcryptCost:       4,
	}
}

type client struct {
	t     *testing.T
	r     http.Handler
	token string
}

func (c *client) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	return w
}

func (c *client) login(email string) dto.LoginResponse {
	c.t.Helper()
	w := c.do(http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: email, Password: testutil.Password})
	require.Equal(c.t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.LoginResponse
	decodeInto(c.t, w, &resp)
	c.token = resp.AccessToken
	return resp
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) apierror.Code {
	t.Helper()
	var e apierror.APIError
	decodeInto(t, w, &e)
	return e.Code
}

func newServer(t *testing.T, db *gorm.DB) http.Handler {
	t.Helper()
	return New(Deps{Config: testConfig(), DB: db})
}

func TestSaleLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.SeedStore(t, db, "Almacen Central", 2)
	ubicacion := uuid.New()
	yerba := testutil.SeedProducto(t, db, store.Ctx, "Yerba", 2_500, ubicacion, 10)
	r := newServer(t, db)

	cajero := &client{t: t, r: r}
	cajero.login(store.Attendant.Email)

	w := cajero.do(http.MethodPost, "/v1/caja/abrir", dto.AbrirCajaRequest{PuntoDeVenta: intPtr(1), MontoInicialCents: 10_000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sesion dto.SesionCajaResponse
	decodeInto(t, w, &sesion)
	assert.Equal(t, "abierta", sesion.Estado)

	venta := dto.RegistrarVentaRequest{
		SesionCajaID: sesion.ID,
		UbicacionID:  ubicacion.String(),
		Items:        []dto.ItemVentaRequest{{ProductoID: yerba.ID.String(), Cantidad: 2}},
		Pagos:        []dto.PagoRequest{{Metodo: "cash", MontoCents: 6_000}},
	}
	w = cajero.do(http.MethodPost, "/v1/ventas", venta, "Idempotency-Key", "pos1-0001")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first dto.VentaResponse
	decodeInto(t, w, &first)
	assert.EqualValues(t, 5_000, first.TotalCents)
	assert.EqualValues(t, 1_000, first.VueltoCents)
	assert.Equal(t, "pos1-0001", first.IdempotencyKey)
	assert.False(t, first.Duplicate)

	w = cajero.do(http.MethodPost, "/v1/ventas", venta, "Idempotency-Key", "pos1-0001")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var again dto.VentaResponse
	decodeInto(t, w, &again)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.ID, again.ID)

	w = cajero.do(http.MethodGet, "/v1/ventas?sesion_caja_id="+sesion.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.VentaListResponse
	decodeInto(t, w, &list)
	assert.EqualValues(t, 1, list.Total)

	w = cajero.do(http.MethodPost, "/v1/caja/cerrar", dto.CerrarCajaRequest{SesionCajaID: sesion.ID, MontoCierreCents: 15_000})
	assert.Equal(t, http.StatusForbidden, w.Code, "attendant needs a supervisor secret")

	pin := testutil.PIN
	w = cajero.do(http.MethodPost, "/v1/caja/cerrar", dto.CerrarCajaRequest{SesionCajaID: sesion.ID, MontoCierreCents: 15_000, SupervisorSecret: &pin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rep dto.ReporteCierre
	decodeInto(t, w, &rep)
	assert.EqualValues(t, 5_000, rep.PaymentBreakdown["cash"], "cash net of the 1_000 change")
	assert.EqualValues(t, 15_000, rep.ExpectedCashCents)
	assert.EqualValues(t, 0, rep.DifferenceCents)
	assert.Equal(t, "normal", rep.Classification)
	require.NotNil(t, rep.ApprovedBy)
	assert.Equal(t, "PIN", rep.ApprovedBy.Metodo)

	w = cajero.do(http.MethodPost, "/v1/ventas", venta, "Idempotency-Key", "pos1-0002")
	assert.Equal(t, http.StatusConflict, w.Code, "closed session rejects new sales")

	t.Run("report formats", func(t *testing.T) {
		base := "/v1/caja/" + sesion.ID + "/reporte"

		w := cajero.do(http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got dto.ReporteCierre
		decodeInto(t, w, &got)
		assert.Equal(t, rep.ExpectedCashCents, got.ExpectedCashCents)

		w = cajero.do(http.MethodGet, base+"?formato=pdf", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

		w = cajero.do(http.MethodGet, base+"?formato=xlsx", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

		w = cajero.do(http.MethodGet, base+"?formato=csv", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("other tenant cannot see the session", func(t *testing.T) {
		other := testutil.SeedStore(t, db, "Kiosco Norte", 1)
		intruso := &client{t: t, r: r}
		intruso.login(other.Owner.Email)

		w := intruso.do(http.MethodGet, "/v1/caja/"+sesion.ID+"/reporte", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, apierror.CodeNotFound, errorCode(t, w))

		w = intruso.do(http.MethodGet, "/v1/ventas?sesion_caja_id="+sesion.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var empty dto.VentaListResponse
		decodeInto(t, w, &empty)
		assert.Zero(t, empty.Total)

		w = intruso.do(http.MethodGet, "/v1/caja/"+sesion.ID+"/reporte", nil, "X-Tenant-ID", store.Tenant.ID.String())
		assert.Equal(t, http.StatusNotFound, w.Code, "the header cannot override the token's tenant")
	})
}

func TestAuthRoutes(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.SeedStore(t, db, "Almacen Central", 1)
	r := newServer(t, db)

	anon := &client{t: t, r: r}
	w := anon.do(http.MethodGet, "/v1/ventas", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apierror.CodeUnauthorized, errorCode(t, w))

	w = anon.do(http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: store.Owner.Email, Password: "incorrecta"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = anon.do(http.MethodPost, "/v1/auth/login", map[string]string{"email": "no-es-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	owner := &client{t: t, r: r}
	login := owner.login(store.Owner.Email)

	w = anon.do(http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rotated dto.LoginResponse
	decodeInto(t, w, &rotated)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	w = anon.do(http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusForbidden, w.Code, "refresh tokens are single use")

	w = owner.do(http.MethodGet, "/v1/auth/sesiones", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sesiones []dto.SesionAuthResponse
	decodeInto(t, w, &sesiones)
	assert.Len(t, sesiones, 1)

	w = owner.do(http.MethodPost, "/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rev dto.RevocacionResponse
	decodeInto(t, w, &rev)
	assert.EqualValues(t, 1, rev.Revocadas)

	w = anon.do(http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRoleGates(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.SeedStore(t, db, "Almacen Central", 1)
	r := newServer(t, db)

	cajero := &client{t: t, r: r}
	cajero.login(store.Attendant.Email)
	w := cajero.do(http.MethodGet, "/v1/caja/historial", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := &client{t: t, r: r}
	admin.login(store.Admin.Email)
	w = admin.do(http.MethodGet, "/v1/caja/historial?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist dto.HistorialCajaResponse
	decodeInto(t, w, &hist)
	assert.Equal(t, 5, hist.Limit)

	w = admin.do(http.MethodGet, "/v1/caja/no-es-uuid/reporte", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	db := testutil.NewDB(t)
	r := newServer(t, db)
	anon := &client{t: t, r: r}

	w := anon.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"db":"connected","redis":"disabled"}`, w.Body.String())

	w = anon.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "blendcloud_http_requests_total")
}

func intPtr(v int) *int { return &v }
