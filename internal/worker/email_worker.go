package worker

// email_worker.go
// Processes email jobs from QueueEmail.
// Sends closing report PDFs to the store's report address via SMTP, guarded
// by a circuit breaker.

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"blendcloud/internal/infra"

	"github.com/rs/zerolog"
)

// EmailJobPayload is the job envelope sent to QueueEmail.
type EmailJobPayload struct {
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	PDFPath string `json:"pdf_path"`
}

// ReporteSender delivers a report email.
type ReporteSender interface {
	SendReporte(to, subject, body, fileName string, pdf []byte) error
}

type EmailWorker struct {
	mailer ReporteSender
	cb     *infra.CircuitBreaker
}

// NewEmailWorker creates an EmailWorker. mailer nil disables delivery.
func NewEmailWorker(mailer ReporteSender, cb *infra.CircuitBreaker) *EmailWorker {
	return &EmailWorker{mailer: mailer, cb: cb}
}

func (w *EmailWorker) Process(ctx context.Context, job Job) error {
	var payload EmailJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return Permanent(fmt.Errorf("email_worker: invalid payload: %w", err))
	}
	if payload.ToEmail == "" {
		zerolog.Ctx(ctx).Warn().Msg("email_worker: empty to_email, skipping")
		return nil
	}
	if w.mailer == nil {
		zerolog.Ctx(ctx).Warn().Str("to", payload.ToEmail).Msg("email_worker: SMTP no configurado, skipping")
		return nil
	}

	var pdf []byte
	if payload.PDFPath != "" {
		var err error
		if pdf, err = os.ReadFile(payload.PDFPath); err != nil {
			return Permanent(fmt.Errorf("email_worker: read PDF: %w", err))
		}
	}

	err := w.cb.Execute(func() error {
		return w.mailer.SendReporte(payload.ToEmail, payload.Subject, payload.Body, filepath.Base(payload.PDFPath), pdf)
	})
	if err != nil {
		return fmt.Errorf("email_worker: send: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("to", payload.ToEmail).Msg("email_worker: reporte enviado")
	return nil
}
