package service

import (
	"context"
	"errors"
	"time"

	"blendcloud/internal/apierror"
	"blendcloud/internal/dto"
	"blendcloud/internal/metrics"
	"blendcloud/internal/model"
	"blendcloud/internal/repository"
	"blendcloud/internal/tenant"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ReporteEnqueuer hands a closed session to the background report pipeline
// (PDF render and mail). Enqueue failures never fail the close.
type ReporteEnqueuer interface {
	EnqueueReporteCierre(ctx context.Context, tenantID, sesionCajaID uuid.UUID) error
}

type CajaService interface {
	Abrir(ctx context.Context, p Principal, req dto.AbrirCajaRequest) (*dto.SesionCajaResponse, error)
	Cerrar(ctx context.Context, p Principal, req dto.CerrarCajaRequest) (*dto.ReporteCierre, error)
	RegistrarRetiro(ctx context.Context, p Principal, req dto.RetiroRequest) (*dto.RetiroResponse, error)
	GetActiva(ctx context.Context, p Principal) (*dto.SesionCajaResponse, error)
	Historial(ctx context.Context, filter dto.HistorialCajaFilter) (*dto.HistorialCajaResponse, error)
	// ObtenerReporte rebuilds the closing report of a closed session.
	ObtenerReporte(ctx context.Context, sesionID uuid.UUID) (*dto.ReporteCierre, error)
	ListFiados(ctx context.Context, sesionID uuid.UUID) ([]dto.FiadoResponse, error)
	SaldarFiado(ctx context.Context, fiadoID uuid.UUID) (*dto.FiadoResponse, error)
}

type cajaService struct {
	repo     repository.CajaRepository
	tenants  repository.TenantRepository
	ventas   repository.VentaRepository
	fiados   repository.FiadoRepository
	auth     AuthService
	reportes ReporteEnqueuer
	now      func() time.Time
}

// NewCajaService wires the cash session state machine. reportes may be nil
// (no background pipeline).
func NewCajaService(
	repo repository.CajaRepository,
	tenants repository.TenantRepository,
	ventas repository.VentaRepository,
	fiados repository.FiadoRepository,
	auth AuthService,
	reportes ReporteEnqueuer,
) CajaService {
	return &cajaService{
		repo:     repo,
		tenants:  tenants,
		ventas:   ventas,
		fiados:   fiados,
		auth:     auth,
		reportes: reportes,
		now:      time.Now,
	}
}

// ── Abrir ─────────────────────────────────────────────────────────────────────
// The tenant row is locked first so concurrent openings in one tenant run the
// slot checks and the cap check one at a time. The partial unique indexes catch
// anything that still slips through.

func (s *cajaService) Abrir(ctx context.Context, p Principal, req dto.AbrirCajaRequest) (resp *dto.SesionCajaResponse, err error) {
	defer func() { metrics.CajaOperacionesTotal.WithLabelValues("abrir", metrics.Resultado(err)).Inc() }()

	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if req.MontoInicialCents < 0 {
		return nil, apierror.Validation("el monto inicial no puede ser negativo")
	}
	if req.PuntoDeVenta != nil && *req.PuntoDeVenta < 1 {
		return nil, apierror.Validation("punto_de_venta invalido")
	}

	var sesion *model.SesionCaja
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		t, err := s.tenants.LockTx(tx, tid)
		if err != nil {
			return notFoundOr(err, "tenant no encontrado")
		}
		if !t.Activo {
			return apierror.Forbidden("tenant inactivo")
		}

		if err := absent(s.repo.FindAbiertaPorPDVTx(tx, req.PuntoDeVenta)); err != nil {
			return conflictIfFound(err, "Ya existe una caja abierta en este punto de venta")
		}
		if err := absent(s.repo.FindAbiertaPorUsuarioTx(tx, p.UsuarioID)); err != nil {
			return conflictIfFound(err, "El usuario ya tiene otra caja abierta")
		}
		if t.MaxSesionesAbiertas > 0 {
			n, err := s.repo.CountAbiertasTx(tx)
			if err != nil {
				return err
			}
			if n >= int64(t.MaxSesionesAbiertas) {
				return apierror.Conflict("Se alcanzo el maximo de cajas abiertas del tenant")
			}
		}

		sesion = &model.SesionCaja{
			PuntoDeVenta:      req.PuntoDeVenta,
			UsuarioID:         p.UsuarioID,
			MontoInicialCents: req.MontoInicialCents,
			Estado:            model.CajaAbierta,
			Observaciones:     req.Observaciones,
			OpenedAt:          s.now(),
		}
		if err := s.repo.CreateSesionTx(tx, sesion); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apierror.Conflict("Ya existe una caja abierta en este punto de venta")
			}
			return err
		}
		return nil
	})
	if err != nil {
		err = internal(err)
		logError(ctx, err, "abrir caja")
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("sesion_caja_id", sesion.ID.String()).
		Str("usuario_id", p.UsuarioID.String()).
		Msg("caja abierta")
	return sesionToResponse(sesion), nil
}

// ── Cerrar ────────────────────────────────────────────────────────────────────
// State is checked before the role gate so a second close always reports
// CONFLICT whatever the payload.

func (s *cajaService) Cerrar(ctx context.Context, p Principal, req dto.CerrarCajaRequest) (resp *dto.ReporteCierre, err error) {
	defer func() { metrics.CajaOperacionesTotal.WithLabelValues("cerrar", metrics.Resultado(err)).Inc() }()

	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	sesionID, err := uuid.Parse(req.SesionCajaID)
	if err != nil {
		return nil, apierror.Validation("sesion_caja_id invalido")
	}
	if req.MontoCierreCents < 0 {
		return nil, apierror.Validation("el monto de cierre no puede ser negativo")
	}

	actual, err := s.repo.FindSesionByID(ctx, sesionID)
	if err != nil {
		return nil, notFoundOr(err, "sesion de caja no encontrada")
	}
	if actual.Estado != model.CajaAbierta {
		return nil, apierror.Conflict("la sesion de caja ya esta cerrada")
	}

	var aprobacion *Aprobacion
	switch p.Rol {
	case model.RolOwner, model.RolAdmin:
	case model.RolAttendant:
		secret := ""
		if req.SupervisorSecret != nil {
			secret = *req.SupervisorSecret
		}
		aprobacion, err = s.auth.VerifySupervisor(ctx, secret)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apierror.Forbidden("rol sin permiso para cerrar caja")
	}

	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		sesion, err := s.repo.FindSesionByIDTx(tx, sesionID)
		if err != nil {
			return notFoundOr(err, "sesion de caja no encontrada")
		}
		if sesion.Estado != model.CajaAbierta {
			return apierror.Conflict("la sesion de caja ya esta cerrada")
		}
		esperado, err := s.efectivoEsperadoTx(tx, sesion)
		if err != nil {
			return err
		}
		pendiente, err := s.fiados.SumPendienteTx(tx, sesion.ID)
		if err != nil {
			return err
		}

		now := s.now()
		monto := req.MontoCierreCents
		sesion.CerradaPorID = &p.UsuarioID
		sesion.MontoCierreCents = &monto
		sesion.MontoEsperadoCents = &esperado
		sesion.FiadoPendienteCents = &pendiente
		sesion.ClosedAt = &now
		sesion.ObservacionesCierre = req.Observaciones
		if aprobacion != nil {
			metodo := aprobacion.Metodo
			rol := aprobacion.Rol
			sesion.AprobadoPorID = &aprobacion.UsuarioID
			sesion.AprobadoPorRol = &rol
			sesion.AprobacionMetodo = &metodo
		}
		won, err := s.repo.CerrarTx(tx, sesion)
		if err != nil {
			return err
		}
		if !won {
			return apierror.Conflict("la sesion de caja ya esta cerrada")
		}
		return nil
	})
	if err != nil {
		err = internal(err)
		logError(ctx, err, "cerrar caja")
		return nil, err
	}

	log := zerolog.Ctx(ctx)
	log.Info().Str("sesion_caja_id", sesionID.String()).Msg("caja cerrada")
	if s.reportes != nil {
		if err := s.reportes.EnqueueReporteCierre(ctx, tid, sesionID); err != nil {
			log.Warn().Err(err).Str("sesion_caja_id", sesionID.String()).Msg("no se pudo encolar el reporte de cierre")
		}
	}
	return s.ObtenerReporte(ctx, sesionID)
}

// efectivoEsperadoTx is opening + cash payments - withdrawals.
func (s *cajaService) efectivoEsperadoTx(tx *gorm.DB, sesion *model.SesionCaja) (int64, error) {
	efectivo, err := s.ventas.SumEfectivoTx(tx, sesion.ID)
	if err != nil {
		return 0, err
	}
	retiros, err := s.repo.SumRetirosTx(tx, sesion.ID)
	if err != nil {
		return 0, err
	}
	return sesion.MontoInicialCents + efectivo - retiros, nil
}

// ── RegistrarRetiro ───────────────────────────────────────────────────────────
// Withdrawals are append-only and may not take more cash than the drawer holds.

func (s *cajaService) RegistrarRetiro(ctx context.Context, p Principal, req dto.RetiroRequest) (resp *dto.RetiroResponse, err error) {
	defer func() { metrics.CajaOperacionesTotal.WithLabelValues("retiro", metrics.Resultado(err)).Inc() }()

	sesionID, err := uuid.Parse(req.SesionCajaID)
	if err != nil {
		return nil, apierror.Validation("sesion_caja_id invalido")
	}
	if req.MontoCents <= 0 {
		return nil, apierror.Validation("el monto del retiro debe ser positivo")
	}

	var retiro *model.Retiro
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		sesion, err := s.repo.FindSesionByIDTx(tx, sesionID)
		if err != nil {
			return notFoundOr(err, "sesion de caja no encontrada")
		}
		if sesion.Estado != model.CajaAbierta {
			return apierror.Conflict("la sesion de caja no esta abierta")
		}
		switch p.Rol {
		case model.RolOwner, model.RolAdmin:
		case model.RolAttendant:
			if sesion.UsuarioID != p.UsuarioID {
				return apierror.Forbidden("solo puede retirar de su propia caja")
			}
		default:
			return apierror.Forbidden("rol sin permiso para retirar efectivo")
		}

		disponible, err := s.efectivoEsperadoTx(tx, sesion)
		if err != nil {
			return err
		}
		if req.MontoCents > disponible {
			return apierror.Validation("el retiro supera el efectivo disponible en caja")
		}

		retiro = &model.Retiro{
			SesionCajaID: sesionID,
			MontoCents:   req.MontoCents,
			Motivo:       req.Motivo,
			UsuarioID:    p.UsuarioID,
		}
		return s.repo.CreateRetiroTx(tx, retiro)
	})
	if err != nil {
		err = internal(err)
		logError(ctx, err, "registrar retiro")
		return nil, err
	}
	r := retiroToResponse(retiro)
	return &r, nil
}

// ── Consultas ─────────────────────────────────────────────────────────────────

func (s *cajaService) GetActiva(ctx context.Context, p Principal) (*dto.SesionCajaResponse, error) {
	sesion, err := s.repo.FindAbiertaPorUsuario(ctx, p.UsuarioID)
	if err != nil {
		return nil, notFoundOr(err, "No hay sesion de caja abierta")
	}
	return sesionToResponse(sesion), nil
}

func (s *cajaService) Historial(ctx context.Context, filter dto.HistorialCajaFilter) (*dto.HistorialCajaResponse, error) {
	page, limit := paginar(filter.Page, filter.Limit, 20)
	sesiones, total, err := s.repo.ListCerradas(ctx, page, limit)
	if err != nil {
		return nil, internal(err)
	}
	data := make([]dto.SesionCajaResponse, len(sesiones))
	for i := range sesiones {
		data[i] = *sesionToResponse(&sesiones[i])
	}
	return &dto.HistorialCajaResponse{Data: data, Total: total, Page: page, Limit: limit}, nil
}

func (s *cajaService) ObtenerReporte(ctx context.Context, sesionID uuid.UUID) (*dto.ReporteCierre, error) {
	sesion, err := s.repo.FindSesionByID(ctx, sesionID)
	if err != nil {
		return nil, notFoundOr(err, "sesion de caja no encontrada")
	}
	if sesion.Estado != model.CajaCerrada {
		return nil, apierror.Conflict("la sesion de caja sigue abierta")
	}
	ventas, err := s.ventas.ListBySesion(ctx, sesionID)
	if err != nil {
		return nil, internal(err)
	}
	retiros, err := s.repo.ListRetiros(ctx, sesionID)
	if err != nil {
		return nil, internal(err)
	}
	fiados, err := s.fiados.ListBySesion(ctx, sesionID)
	if err != nil {
		return nil, internal(err)
	}
	rep := BuildReporte(*sesion, ventas, retiros, fiados)
	return &rep, nil
}

// ── Fiados ────────────────────────────────────────────────────────────────────

func (s *cajaService) ListFiados(ctx context.Context, sesionID uuid.UUID) ([]dto.FiadoResponse, error) {
	if _, err := s.repo.FindSesionByID(ctx, sesionID); err != nil {
		return nil, notFoundOr(err, "sesion de caja no encontrada")
	}
	fiados, err := s.fiados.ListBySesion(ctx, sesionID)
	if err != nil {
		return nil, internal(err)
	}
	resp := make([]dto.FiadoResponse, len(fiados))
	for i := range fiados {
		resp[i] = fiadoToResponse(&fiados[i])
	}
	return resp, nil
}

func (s *cajaService) SaldarFiado(ctx context.Context, fiadoID uuid.UUID) (*dto.FiadoResponse, error) {
	if _, err := s.fiados.FindByID(ctx, fiadoID); err != nil {
		return nil, notFoundOr(err, "fiado no encontrado")
	}
	ok, err := s.fiados.Saldar(ctx, fiadoID, s.now())
	if err != nil {
		return nil, internal(err)
	}
	if !ok {
		return nil, apierror.Conflict("el fiado ya fue saldado")
	}
	f, err := s.fiados.FindByID(ctx, fiadoID)
	if err != nil {
		return nil, internal(err)
	}
	resp := fiadoToResponse(f)
	return &resp, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// absent turns a lookup result into nil when nothing was found.
func absent(_ *model.SesionCaja, err error) error {
	if err == nil {
		return errFound
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

var errFound = errors.New("found")

func conflictIfFound(err error, msg string) error {
	if errors.Is(err, errFound) {
		return apierror.Conflict(msg)
	}
	return err
}

func paginar(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	return page, limit
}
