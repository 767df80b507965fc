package worker

// reporte_worker.go
// Processes closing-report jobs from QueueReportes: rebuilds the report of a
// closed cash session, renders it as PDF under the storage path and, when the
// store has a report address, enqueues the email delivery.

import (
	"context"
	"encoding/json"
	"fmt"

	"blendcloud/internal/apierror"
	"blendcloud/internal/dto"
	"blendcloud/internal/infra"
	"blendcloud/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReporteSource loads a closing report inside the bound tenant.
type ReporteSource interface {
	ObtenerReporte(ctx context.Context, sesionID uuid.UUID) (*dto.ReporteCierre, error)
}

// TenantSource loads store settings.
type TenantSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
}

// EmailEnqueuer schedules an email delivery.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, tenantID uuid.UUID, payload EmailJobPayload) error
}

type ReporteWorker struct {
	reportes    ReporteSource
	tenants     TenantSource
	emails      EmailEnqueuer
	storagePath string
}

func NewReporteWorker(reportes ReporteSource, tenants TenantSource, emails EmailEnqueuer, storagePath string) *ReporteWorker {
	return &ReporteWorker{reportes: reportes, tenants: tenants, emails: emails, storagePath: storagePath}
}

func (w *ReporteWorker) Process(ctx context.Context, job Job) error {
	var payload ReporteJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return Permanent(fmt.Errorf("reporte_worker: invalid payload: %w", err))
	}

	rep, err := w.reportes.ObtenerReporte(ctx, payload.SesionCajaID)
	if err != nil {
		switch apierror.CodeOf(err) {
		case apierror.CodeNotFound, apierror.CodeConflict, apierror.CodeTenantNotResolved:
			return Permanent(err)
		}
		return err
	}
	t, err := w.tenants.FindByID(ctx, job.TenantID)
	if err != nil {
		return err
	}

	pdf, err := infra.RenderReporteCierrePDF(t.Nombre, *rep)
	if err != nil {
		return Permanent(err)
	}
	path, err := infra.SaveReporteCierrePDF(w.storagePath, rep.SesionCajaID, pdf)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("path", path).Msg("reporte_worker: PDF generado")

	if t.EmailReportes == nil || *t.EmailReportes == "" {
		return nil
	}
	return w.emails.EnqueueEmail(ctx, job.TenantID, EmailJobPayload{
		ToEmail: *t.EmailReportes,
		Subject: fmt.Sprintf("%s - cierre de caja %s", t.Nombre, rep.OpenedAt[:10]),
		Body: fmt.Sprintf("Diferencia: %d centavos (%s%%, %s). Se adjunta el reporte.",
			rep.DifferenceCents, rep.DifferencePct.StringFixed(2), rep.Classification),
		PDFPath: path,
	})
}
