package infra

// pdf.go: closing report rendering with go-pdf/fpdf.
// A4 portrait with:
//   - Store name and register header
//   - Session window (opened/closed)
//   - Payment breakdown by method
//   - Withdrawals table
//   - Expected vs declared cash, difference and classification

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"blendcloud/internal/dto"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// pesos formats minor units as "$1234.56".
func pesos(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}

// RenderReporteCierrePDF renders the closing report of a cash session.
func RenderReporteCierrePDF(tienda string, rep dto.ReporteCierre) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 9, tr(tienda), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	caja := "Caja sin numero"
	if rep.PuntoDeVenta != nil {
		caja = fmt.Sprintf("Caja %d", *rep.PuntoDeVenta)
	}
	pdf.CellFormat(contentW, 6, tr("Cierre de caja - "+caja), "", 1, "L", false, 0, "")
	cierre := "-"
	if rep.ClosedAt != nil {
		cierre = *rep.ClosedAt
	}
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Apertura: %s   Cierre: %s", rep.OpenedAt, cierre), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Sesion: %s   Ventas: %d", rep.SesionCajaID, rep.CantidadVentas), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	half := contentW / 2
	row := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(half, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(half, 6, value, "", 1, "R", false, 0, "")
	}

	// ── Payments ─────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentW, 7, "Pagos por metodo", "B", 1, "L", false, 0, "")
	metodos := make([]string, 0, len(rep.PaymentBreakdown))
	for m := range rep.PaymentBreakdown {
		metodos = append(metodos, m)
	}
	sort.Strings(metodos)
	for _, m := range metodos {
		row(m, pesos(rep.PaymentBreakdown[m]), false)
	}
	row("Total cobrado", pesos(rep.TotalPaymentsCents), true)
	row("Vuelto entregado", pesos(rep.TotalChangeCents), false)
	pdf.Ln(3)

	// ── Withdrawals ──────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentW, 7, "Retiros", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	if len(rep.Withdrawals) == 0 {
		pdf.CellFormat(contentW, 6, "Sin retiros", "", 1, "L", false, 0, "")
	}
	for _, w := range rep.Withdrawals {
		pdf.CellFormat(contentW*0.35, 6, w.CreatedAt, "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.40, 6, tr(w.Reason), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.25, 6, pesos(w.AmountCents), "", 1, "R", false, 0, "")
	}
	pdf.Ln(3)

	// ── Reconciliation ───────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentW, 7, "Arqueo", "B", 1, "L", false, 0, "")
	row("Monto inicial", pesos(rep.MontoInicialCents), false)
	row("Efectivo neto de ventas", pesos(rep.CashSalesCents), false)
	row("Retiros", "-"+pesos(rep.TotalWithdrawalsCents), false)
	row("Efectivo esperado", pesos(rep.ExpectedCashCents), true)
	declarado := "-"
	if rep.MontoCierreCents != nil {
		declarado = pesos(*rep.MontoCierreCents)
	}
	row("Efectivo declarado", declarado, false)
	row("Diferencia", fmt.Sprintf("%s (%s%%)", pesos(rep.DifferenceCents), rep.DifferencePct.StringFixed(2)), true)
	row("Clasificacion", rep.Classification, true)
	if rep.FiadoPendienteCents > 0 {
		row("Fiado pendiente", pesos(rep.FiadoPendienteCents), false)
	}
	if rep.ApprovedBy != nil {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(contentW, 5, fmt.Sprintf("Aprobado por %s (%s, %s)", rep.ApprovedBy.UsuarioID, rep.ApprovedBy.Rol, rep.ApprovedBy.Metodo), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveReporteCierrePDF writes a rendered report under storagePath and returns
// the file path.
func SaveReporteCierrePDF(storagePath string, sesionCajaID string, content []byte) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	filePath := filepath.Join(storagePath, fmt.Sprintf("cierre_%s.pdf", sesionCajaID))
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}
