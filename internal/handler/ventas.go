package handler

import (
	"net/http"

	"blendcloud/internal/dto"
	"blendcloud/internal/service"

	"github.com/gin-gonic/gin"
)

// IdempotencyHeader may carry the key when the body omits it.
const IdempotencyHeader = "Idempotency-Key"

type VentasHandler struct{ svc service.VentaService }

func NewVentasHandler(svc service.VentaService) *VentasHandler { return &VentasHandler{svc: svc} }

// RegistrarVenta godoc
// @Summary      Registrar una venta
// @Description  Liquida la venta una sola vez por clave de idempotencia: descuenta stock y registra items y pagos en una transaccion. Un reintento con la misma clave devuelve la venta original con duplicate=true.
// @Tags         ventas
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key header string false "Clave de idempotencia si el body no la trae"
// @Param        body body dto.RegistrarVentaRequest true "Detalle de la venta"
// @Success      201  {object} dto.VentaResponse
// @Success      200  {object} dto.VentaResponse "duplicate"
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/ventas [post]
func (h *VentasHandler) RegistrarVenta(c *gin.Context) {
	var req dto.RegistrarVentaRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(IdempotencyHeader)
	}
	if !runValidation(c, &req) {
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}

	resp, err := h.svc.Registrar(c.Request.Context(), p, req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// ListarVentas godoc
// @Summary      Listar ventas
// @Description  Lista paginada de ventas, filtrable por sesion de caja y fecha (UTC).
// @Tags         ventas
// @Produce      json
// @Security     BearerAuth
// @Param        sesion_caja_id query string false "Sesion de caja"
// @Param        fecha          query string false "YYYY-MM-DD"
// @Param        page           query int    false "Pagina"
// @Param        limit          query int    false "Tamano de pagina"
// @Success      200  {object} dto.VentaListResponse
// @Router       /v1/ventas [get]
func (h *VentasHandler) ListarVentas(c *gin.Context) {
	var filter dto.VentaFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
