package service

import (
	"sort"

	"blendcloud/internal/dto"
	"blendcloud/internal/model"

	"github.com/shopspring/decimal"
)

var metodosPago = []model.MetodoPago{
	model.PagoEfectivo, model.PagoDebito, model.PagoCredito, model.PagoPix, model.PagoFiado,
}

// BuildReporte aggregates a cash session into its closing report. It is pure:
// the same inputs always produce the same report.
//
// Cash payments are stored net of change, so their sum is what stayed in the
// drawer and expected cash is opening + cash payments - withdrawals.
func BuildReporte(sesion model.SesionCaja, ventas []model.Venta, retiros []model.Retiro, fiados []model.Fiado) dto.ReporteCierre {
	breakdown := make(map[string]int64, len(metodosPago))
	for _, m := range metodosPago {
		breakdown[string(m)] = 0
	}

	var totalPagos, totalVuelto int64
	for _, v := range ventas {
		for _, p := range v.Pagos {
			breakdown[string(p.Metodo)] += p.MontoCents
			totalPagos += p.MontoCents
		}
		totalVuelto += v.VueltoCents
	}
	efectivo := breakdown[string(model.PagoEfectivo)]

	ordenados := append([]model.Retiro(nil), retiros...)
	sort.SliceStable(ordenados, func(i, j int) bool {
		if !ordenados[i].CreatedAt.Equal(ordenados[j].CreatedAt) {
			return ordenados[i].CreatedAt.Before(ordenados[j].CreatedAt)
		}
		return ordenados[i].ID.String() < ordenados[j].ID.String()
	})
	var totalRetiros int64
	withdrawals := make([]dto.RetiroResponse, len(ordenados))
	for i, r := range ordenados {
		totalRetiros += r.MontoCents
		withdrawals[i] = retiroToResponse(&r)
	}

	var fiadoPendiente int64
	if sesion.FiadoPendienteCents != nil {
		fiadoPendiente = *sesion.FiadoPendienteCents
	} else {
		for _, f := range fiados {
			if f.SaldadoAt == nil {
				fiadoPendiente += f.MontoCents
			}
		}
	}

	esperado := sesion.MontoInicialCents + efectivo - totalRetiros
	var diferencia int64
	if sesion.MontoCierreCents != nil {
		diferencia = *sesion.MontoCierreCents - esperado
	}
	pct := desvioPct(diferencia, esperado)

	return dto.ReporteCierre{
		SesionCajaID:          sesion.ID.String(),
		PuntoDeVenta:          sesion.PuntoDeVenta,
		OpenedAt:              formatTime(sesion.OpenedAt),
		ClosedAt:              formatTimePtr(sesion.ClosedAt),
		MontoInicialCents:     sesion.MontoInicialCents,
		MontoCierreCents:      sesion.MontoCierreCents,
		CantidadVentas:        len(ventas),
		PaymentBreakdown:      breakdown,
		TotalPaymentsCents:    totalPagos,
		TotalChangeCents:      totalVuelto,
		CashSalesCents:        efectivo,
		TotalWithdrawalsCents: totalRetiros,
		Withdrawals:           withdrawals,
		ExpectedCashCents:     esperado,
		DifferenceCents:       diferencia,
		DifferencePct:         pct,
		Classification:        clasificarDesvio(pct),
		FiadoPendienteCents:   fiadoPendiente,
		ApprovedBy:            aprobacionToResponse(&sesion),
	}
}

// desvioPct is the difference as a percentage of the expected cash, rounded
// to two decimals. A difference against an expected amount of zero counts as 100%.
func desvioPct(diferencia, esperado int64) decimal.Decimal {
	if diferencia == 0 {
		return decimal.Zero
	}
	if esperado == 0 {
		if diferencia < 0 {
			return cien.Neg()
		}
		return cien
	}
	return decimal.NewFromInt(diferencia).Div(decimal.NewFromInt(esperado)).Mul(cien).Round(2)
}

// clasificarDesvio returns "normal" | "advertencia" | "critico"
// normal: |desvio| <= 1%, advertencia: <= 5%, critico: > 5%
func clasificarDesvio(pct decimal.Decimal) string {
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(decimal.NewFromInt(1)):
		return "normal"
	case abs.LessThanOrEqual(decimal.NewFromInt(5)):
		return "advertencia"
	default:
		return "critico"
	}
}

func retiroToResponse(r *model.Retiro) dto.RetiroResponse {
	return dto.RetiroResponse{
		ID:          r.ID.String(),
		AmountCents: r.MontoCents,
		Reason:      r.Motivo,
		UserID:      r.UsuarioID.String(),
		CreatedAt:   formatTime(r.CreatedAt),
	}
}

func aprobacionToResponse(s *model.SesionCaja) *dto.AprobacionResponse {
	if s.AprobadoPorID == nil {
		return nil
	}
	resp := &dto.AprobacionResponse{UsuarioID: s.AprobadoPorID.String()}
	if s.AprobadoPorRol != nil {
		resp.Rol = string(*s.AprobadoPorRol)
	}
	if s.AprobacionMetodo != nil {
		resp.Metodo = string(*s.AprobacionMetodo)
	}
	return resp
}

func sesionToResponse(s *model.SesionCaja) *dto.SesionCajaResponse {
	resp := &dto.SesionCajaResponse{
		ID:                 s.ID.String(),
		PuntoDeVenta:       s.PuntoDeVenta,
		UsuarioID:          s.UsuarioID.String(),
		Estado:             string(s.Estado),
		MontoInicialCents:  s.MontoInicialCents,
		Observaciones:      s.Observaciones,
		OpenedAt:           formatTime(s.OpenedAt),
		MontoCierreCents:   s.MontoCierreCents,
		MontoEsperadoCents: s.MontoEsperadoCents,
		ClosedAt:           formatTimePtr(s.ClosedAt),
		Aprobacion:         aprobacionToResponse(s),
	}
	if s.CerradaPorID != nil {
		id := s.CerradaPorID.String()
		resp.CerradaPorID = &id
	}
	return resp
}

func fiadoToResponse(f *model.Fiado) dto.FiadoResponse {
	return dto.FiadoResponse{
		ID:           f.ID.String(),
		SesionCajaID: f.SesionCajaID.String(),
		VentaID:      f.VentaID.String(),
		Cliente:      f.Cliente,
		MontoCents:   f.MontoCents,
		SaldadoAt:    formatTimePtr(f.SaldadoAt),
	}
}
