package infra

import (
	"fmt"

	"blendcloud/internal/dto"

	"github.com/xuri/excelize/v2"
)

const (
	hojaResumen = "Resumen"
	hojaRetiros = "Retiros"
)

// RenderReporteCierreXLSX exports the closing report as a two-sheet workbook:
// a summary and the withdrawals list. Amounts are written in cents.
func RenderReporteCierreXLSX(rep dto.ReporteCierre) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", hojaResumen); err != nil {
		return nil, fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(hojaRetiros); err != nil {
		return nil, fmt.Errorf("xlsx: new sheet: %w", err)
	}

	resumen := [][]any{
		{"sesion_caja_id", rep.SesionCajaID},
		{"opened_at", rep.OpenedAt},
		{"closed_at", deref(rep.ClosedAt)},
		{"sales_count", rep.CantidadVentas},
		{"monto_inicial_cents", rep.MontoInicialCents},
	}
	for _, m := range []string{"cash", "debit", "credit", "pix", "fiado"} {
		resumen = append(resumen, []any{"payment_" + m + "_cents", rep.PaymentBreakdown[m]})
	}
	resumen = append(resumen,
		[]any{"total_payments_cents", rep.TotalPaymentsCents},
		[]any{"total_change_cents", rep.TotalChangeCents},
		[]any{"cash_sales_cents", rep.CashSalesCents},
		[]any{"total_withdrawals_cents", rep.TotalWithdrawalsCents},
		[]any{"expected_cash_cents", rep.ExpectedCashCents},
		[]any{"difference_cents", rep.DifferenceCents},
		[]any{"difference_pct", rep.DifferencePct.StringFixed(2)},
		[]any{"classification", rep.Classification},
		[]any{"fiado_pendiente_cents", rep.FiadoPendienteCents},
	)
	if err := writeRows(f, hojaResumen, resumen); err != nil {
		return nil, err
	}

	retiros := [][]any{{"id", "created_at", "user_id", "reason", "amount_cents"}}
	for _, w := range rep.Withdrawals {
		retiros = append(retiros, []any{w.ID, w.CreatedAt, w.UserID, w.Reason, w.AmountCents})
	}
	if err := writeRows(f, hojaRetiros, retiros); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx: write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("xlsx: %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
