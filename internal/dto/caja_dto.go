package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type AbrirCajaRequest struct {
	// PuntoDeVenta nil opens the store's unnumbered register.
	PuntoDeVenta      *int    `json:"punto_de_venta"      validate:"omitempty,min=1"`
	MontoInicialCents int64   `json:"monto_inicial_cents" validate:"min=0"`
	Observaciones     *string `json:"observaciones"       validate:"omitempty,max=500"`
}

type CerrarCajaRequest struct {
	SesionCajaID     string `json:"sesion_caja_id"     validate:"required,uuid"`
	MontoCierreCents int64  `json:"monto_cierre_cents" validate:"min=0"`
	// SupervisorSecret is the PIN or password of an OWNER/ADMIN; required when
	// an ATTENDANT closes.
	SupervisorSecret *string `json:"supervisor_secret" validate:"omitempty,max=72"`
	Observaciones    *string `json:"observaciones"     validate:"omitempty,max=500"`
}

type RetiroRequest struct {
	SesionCajaID string `json:"sesion_caja_id" validate:"required,uuid"`
	MontoCents   int64  `json:"monto_cents"    validate:"required,gt=0"`
	Motivo       string `json:"motivo"         validate:"required,min=3,max=200"`
}

type HistorialCajaFilter struct {
	Page  int `form:"page,default=1"   validate:"min=1"`
	Limit int `form:"limit,default=20" validate:"min=1,max=100"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type AprobacionResponse struct {
	UsuarioID string `json:"user_id"`
	Rol       string `json:"role"`
	Metodo    string `json:"method"` // PIN | PASSWORD
}

type SesionCajaResponse struct {
	ID                 string              `json:"id"`
	PuntoDeVenta       *int                `json:"punto_de_venta"`
	UsuarioID          string              `json:"usuario_id"`
	Estado             string              `json:"estado"`
	MontoInicialCents  int64               `json:"monto_inicial_cents"`
	Observaciones      *string             `json:"observaciones"`
	OpenedAt           string              `json:"opened_at"`
	CerradaPorID       *string             `json:"cerrada_por_id"`
	MontoCierreCents   *int64              `json:"monto_cierre_cents"`
	MontoEsperadoCents *int64              `json:"monto_esperado_cents"`
	ClosedAt           *string             `json:"closed_at"`
	Aprobacion         *AprobacionResponse `json:"approved_by"`
}

type HistorialCajaResponse struct {
	Data  []SesionCajaResponse `json:"data"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

type RetiroResponse struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
	UserID      string `json:"user_id"`
	CreatedAt   string `json:"created_at"`
}

type FiadoResponse struct {
	ID           string  `json:"id"`
	SesionCajaID string  `json:"sesion_caja_id"`
	VentaID      string  `json:"venta_id"`
	Cliente      string  `json:"cliente"`
	MontoCents   int64   `json:"monto_cents"`
	SaldadoAt    *string `json:"saldado_at"`
}

// ReporteCierre is the closing reconciliation of a cash session. Field names
// and units are a published contract (receipts UI, print worker).
type ReporteCierre struct {
	SesionCajaID      string  `json:"sesion_caja_id"`
	PuntoDeVenta      *int    `json:"punto_de_venta"`
	OpenedAt          string  `json:"opened_at"`
	ClosedAt          *string `json:"closed_at"`
	MontoInicialCents int64   `json:"monto_inicial_cents"`
	MontoCierreCents  *int64  `json:"monto_cierre_cents"`
	CantidadVentas    int     `json:"sales_count"`

	// PaymentBreakdown is keyed by payment method; encoding/json emits keys sorted.
	PaymentBreakdown      map[string]int64 `json:"payment_breakdown"`
	TotalPaymentsCents    int64            `json:"total_payments_cents"`
	TotalChangeCents      int64            `json:"total_change_cents"`
	CashSalesCents        int64            `json:"cash_sales_cents"`
	TotalWithdrawalsCents int64            `json:"total_withdrawals_cents"`
	Withdrawals           []RetiroResponse `json:"withdrawals"`

	ExpectedCashCents int64           `json:"expected_cash_cents"`
	DifferenceCents   int64           `json:"difference_cents"`
	DifferencePct     decimal.Decimal `json:"difference_pct"`
	Classification    string          `json:"classification"` // normal | advertencia | critico

	FiadoPendienteCents int64               `json:"fiado_pendiente_cents"`
	ApprovedBy          *AprobacionResponse `json:"approved_by"`
}
