package handler

import (
	"context"
	"fmt"
	"net/http"

	"blendcloud/internal/apierror"
	"blendcloud/internal/dto"
	"blendcloud/internal/infra"
	"blendcloud/internal/model"
	"blendcloud/internal/service"
	"blendcloud/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TenantSource loads the store settings used in exported documents.
type TenantSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
}

type CajaHandler struct {
	svc     service.CajaService
	tenants TenantSource
}

func NewCajaHandler(svc service.CajaService, tenants TenantSource) *CajaHandler {
	return &CajaHandler{svc: svc, tenants: tenants}
}

// Abrir godoc
// @Summary Abre una nueva sesion de caja
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.AbrirCajaRequest true "Datos de apertura"
// @Success 201 {object} dto.SesionCajaResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/caja/abrir [post]
func (h *CajaHandler) Abrir(c *gin.Context) {
	var req dto.AbrirCajaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}
	resp, err := h.svc.Abrir(c.Request.Context(), p, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Cerrar godoc
// @Summary Cierra la sesion y devuelve el reporte de arqueo
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CerrarCajaRequest true "Declaracion de cierre"
// @Success 200 {object} dto.ReporteCierre
// @Failure 403 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/caja/cerrar [post]
func (h *CajaHandler) Cerrar(c *gin.Context) {
	var req dto.CerrarCajaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}
	resp, err := h.svc.Cerrar(c.Request.Context(), p, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegistrarRetiro godoc
// @Summary Registra un retiro de efectivo de una caja abierta
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RetiroRequest true "Retiro"
// @Success 201 {object} dto.RetiroResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/caja/retiros [post]
func (h *CajaHandler) RegistrarRetiro(c *gin.Context) {
	var req dto.RetiroRequest
	if !bindAndValidate(c, &req) {
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}
	resp, err := h.svc.RegistrarRetiro(c.Request.Context(), p, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetActiva returns the currently open cash session for the authenticated user.
func (h *CajaHandler) GetActiva(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetActiva(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Historial returns a paginated list of closed cash sessions.
func (h *CajaHandler) Historial(c *gin.Context) {
	var filter dto.HistorialCajaFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.Historial(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ObtenerReporte godoc
// @Summary Obtiene el reporte de cierre de una sesion
// @Tags caja
// @Produce json
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "ID de sesion"
// @Param formato query string false "json | pdf | xlsx"
// @Success 200 {object} dto.ReporteCierre
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/caja/{id}/reporte [get]
func (h *CajaHandler) ObtenerReporte(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	formato := c.DefaultQuery("formato", "json")
	if formato != "json" && formato != "pdf" && formato != "xlsx" {
		respondError(c, apierror.Validation("formato debe ser json, pdf o xlsx"))
		return
	}

	ctx := c.Request.Context()
	rep, err := h.svc.ObtenerReporte(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	switch formato {
	case "pdf":
		tid, err := tenant.Require(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		t, err := h.tenants.FindByID(ctx, tid)
		if err != nil {
			respondError(c, apierror.Internal(err))
			return
		}
		out, err := infra.RenderReporteCierrePDF(t.Nombre, *rep)
		if err != nil {
			respondError(c, apierror.Internal(err))
			return
		}
		attachment(c, "cierre_"+rep.SesionCajaID+".pdf")
		c.Data(http.StatusOK, mimePDF, out)
	case "xlsx":
		out, err := infra.RenderReporteCierreXLSX(*rep)
		if err != nil {
			respondError(c, apierror.Internal(err))
			return
		}
		attachment(c, "cierre_"+rep.SesionCajaID+".xlsx")
		c.Data(http.StatusOK, mimeXLSX, out)
	default:
		c.JSON(http.StatusOK, rep)
	}
	zerolog.Ctx(ctx).Debug().Str("sesion_caja_id", rep.SesionCajaID).Str("formato", formato).Msg("reporte exportado")
}

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
}

// ListFiados returns the store-credit receivables created in a session.
func (h *CajaHandler) ListFiados(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListFiados(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SaldarFiado marks a receivable as paid.
func (h *CajaHandler) SaldarFiado(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.SaldarFiado(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
