package dto

import "github.com/shopspring/decimal"

// ─── Filter / List ──────────────────────────────────────────────────────────

// VentaFilter is bound from query string of GET /v1/ventas.
type VentaFilter struct {
	SesionCajaID string `form:"sesion_caja_id" validate:"omitempty,uuid"`
	Fecha        string `form:"fecha"          validate:"omitempty,datetime=2006-01-02"` // YYYY-MM-DD
	Page         int    `form:"page,default=1"   validate:"min=1"`
	Limit        int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type VentaListResponse struct {
	Data  []VentaResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

type ItemVentaRequest struct {
	ProductoID     string `json:"producto_id"     validate:"required,uuid"`
	Cantidad       int    `json:"cantidad"        validate:"required,min=1,max=100000"`
	DescuentoCents int64  `json:"descuento_cents" validate:"min=0"`
}

type PagoRequest struct {
	Metodo     string `json:"metodo"      validate:"required,oneof=cash debit credit pix fiado"`
	MontoCents int64  `json:"monto_cents" validate:"required,gt=0"`
}

// DescuentoVentaRequest is the sale-level discount: a flat amount in cents
// (tipo "monto") or a percentage of the gross (tipo "porcentaje").
type DescuentoVentaRequest struct {
	Tipo  string          `json:"tipo"  validate:"required,oneof=monto porcentaje"`
	Valor decimal.Decimal `json:"valor"`
}

type RegistrarVentaRequest struct {
	SesionCajaID   string                 `json:"sesion_caja_id"  validate:"required,uuid"`
	UbicacionID    string                 `json:"ubicacion_id"    validate:"required,uuid"`
	IdempotencyKey string                 `json:"idempotency_key" validate:"required,min=1,max=128"`
	Items          []ItemVentaRequest     `json:"items"           validate:"required,min=1,max=500,dive"`
	Pagos          []PagoRequest          `json:"pagos"           validate:"required,min=1,max=20,dive"`
	Descuento      *DescuentoVentaRequest `json:"descuento"       validate:"omitempty"`
	// Cliente is required when any payment is "fiado".
	Cliente *string `json:"cliente" validate:"omitempty,min=2,max=120"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ItemVentaResponse struct {
	ProductoID          string `json:"producto_id"`
	Cantidad            int    `json:"cantidad"`
	PrecioUnitarioCents int64  `json:"precio_unitario_cents"`
	DescuentoCents      int64  `json:"descuento_cents"`
	SubtotalCents       int64  `json:"subtotal_cents"`
}

type PagoResponse struct {
	Metodo     string `json:"metodo"`
	MontoCents int64  `json:"monto_cents"`
}

type VentaResponse struct {
	ID             string              `json:"id"`
	IdempotencyKey string              `json:"idempotency_key"`
	SesionCajaID   string              `json:"sesion_caja_id"`
	UbicacionID    string              `json:"ubicacion_id"`
	UsuarioID      string              `json:"usuario_id"`
	SubtotalCents  int64               `json:"subtotal_cents"`
	DescuentoCents int64               `json:"descuento_cents"`
	TotalCents     int64               `json:"total_cents"`
	PagadoCents    int64               `json:"pagado_cents"`
	VueltoCents    int64               `json:"vuelto_cents"`
	ConflictoStock bool                `json:"conflicto_stock"`
	Items          []ItemVentaResponse `json:"items"`
	Pagos          []PagoResponse      `json:"pagos"`
	CreatedAt      string              `json:"created_at"`
	// Duplicate is true when the idempotency key matched an earlier sale.
	Duplicate bool `json:"duplicate"`
}
