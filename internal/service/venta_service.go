package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"blendcloud/internal/apierror"
	"blendcloud/internal/dto"
	"blendcloud/internal/metrics"
	"blendcloud/internal/model"
	"blendcloud/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type VentaService interface {
	// Registrar settles a sale at most once per idempotency key. A retry
	// returns the stored sale with Duplicate set instead of an error.
	Registrar(ctx context.Context, p Principal, req dto.RegistrarVentaRequest) (*dto.VentaResponse, error)
	List(ctx context.Context, filter dto.VentaFilter) (*dto.VentaListResponse, error)
}

// errVentaDuplicada marks a unique violation on the sale row itself, the only
// one that means an identical request won the race.
var errVentaDuplicada = errors.New("venta: clave de idempotencia duplicada")

type ventaService struct {
	repo      repository.VentaRepository
	cajaRepo  repository.CajaRepository
	productos repository.ProductoRepository
	stock     repository.StockRepository
	fiados    repository.FiadoRepository
}

func NewVentaService(
	repo repository.VentaRepository,
	cajaRepo repository.CajaRepository,
	productos repository.ProductoRepository,
	stock repository.StockRepository,
	fiados repository.FiadoRepository,
) VentaService {
	return &ventaService{
		repo:      repo,
		cajaRepo:  cajaRepo,
		productos: productos,
		stock:     stock,
		fiados:    fiados,
	}
}

// ── Registrar ─────────────────────────────────────────────────────────────────
//   1. Session must exist in the tenant and be open
//   2. Same idempotency key already settled -> return it as duplicate
//   3. Price items from the catalog, apply discounts, validate payments
//   4. BEGIN TX: re-check session (row lock), debit stock per line, insert
//      venta+items+pagos, create fiado receivables
//   5. COMMIT; a unique-key violation means a concurrent twin won -> duplicate

func (s *ventaService) Registrar(ctx context.Context, p Principal, req dto.RegistrarVentaRequest) (resp *dto.VentaResponse, err error) {
	defer func() { metrics.VentasTotal.WithLabelValues(resultadoVenta(resp, err)).Inc() }()

	sesionID, err := uuid.Parse(req.SesionCajaID)
	if err != nil {
		return nil, apierror.Validation("sesion_caja_id invalido")
	}
	ubicacionID, err := uuid.Parse(req.UbicacionID)
	if err != nil {
		return nil, apierror.Validation("ubicacion_id invalido")
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, apierror.Validation("idempotency_key requerido")
	}
	if len(req.Items) == 0 {
		return nil, apierror.Validation("la venta requiere al menos un item")
	}

	// 1. Validate open session
	sesion, err := s.cajaRepo.FindSesionByID(ctx, sesionID)
	if err != nil {
		return nil, notFoundOr(err, "sesion de caja no encontrada")
	}
	if sesion.Estado != model.CajaAbierta {
		return nil, apierror.Conflict("la sesion de caja no esta abierta")
	}

	// 2. Deduplicate retried requests
	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err == nil {
		return ventaToResponse(existing, true), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal(err)
	}

	// 3. Pricing and payment validation (pre-flight, outside TX)
	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, it := range req.Items {
		if pid, err := uuid.Parse(it.ProductoID); err == nil {
			ids = append(ids, pid)
		}
	}
	catalogo, err := s.productos.FindByIDs(ctx, ids)
	if err != nil {
		return nil, internal(err)
	}
	tot, err := calcularTotales(req, catalogo)
	if err != nil {
		return nil, err
	}
	cliente := ""
	if req.Cliente != nil {
		cliente = strings.TrimSpace(*req.Cliente)
	}
	for _, pg := range req.Pagos {
		if model.MetodoPago(pg.Metodo) == model.PagoFiado && cliente == "" {
			return nil, apierror.Validation("los pagos fiado requieren el cliente")
		}
	}

	venta := &model.Venta{
		ID:             uuid.New(),
		IdempotencyKey: key,
		SesionCajaID:   sesionID,
		UsuarioID:      p.UsuarioID,
		UbicacionID:    ubicacionID,
		SubtotalCents:  tot.subtotalCents,
		DescuentoCents: tot.descuentoCents,
		TotalCents:     tot.totalCents,
		PagadoCents:    tot.pagadoCents,
		VueltoCents:    tot.vueltoCents,
	}
	for i, l := range tot.lineas {
		venta.Items = append(venta.Items, model.VentaItem{
			Linea:               i + 1,
			ProductoID:          l.productoID,
			Cantidad:            l.cantidad,
			PrecioUnitarioCents: l.precioCents,
			DescuentoCents:      l.descuentoCents,
			SubtotalCents:       l.subtotalCents,
		})
	}
	for i, pg := range req.Pagos {
		venta.Pagos = append(venta.Pagos, model.VentaPago{
			Linea:      i + 1,
			Metodo:     model.MetodoPago(pg.Metodo),
			MontoCents: tot.aplicados[i],
		})
	}

	// 4. Atomic write
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		actual, err := s.cajaRepo.FindSesionByIDTx(tx, sesionID)
		if err != nil {
			return notFoundOr(err, "sesion de caja no encontrada")
		}
		if actual.Estado != model.CajaAbierta {
			return apierror.Conflict("la sesion de caja no esta abierta")
		}

		for _, it := range venta.Items {
			mov, err := s.stock.DebitTx(tx, repository.Debito{
				ProductoID:   it.ProductoID,
				UbicacionID:  ubicacionID,
				Cantidad:     it.Cantidad,
				Motivo:       "venta",
				ReferenciaID: &venta.ID,
			})
			if err != nil {
				return apierror.Wrap(apierror.CodeInternal, "No se pudo debitar el stock", err)
			}
			if mov.StockNuevo < 0 {
				venta.ConflictoStock = true
			}
		}

		if err := s.repo.CreateTx(tx, venta); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errVentaDuplicada
			}
			return err
		}

		for _, pg := range venta.Pagos {
			if pg.Metodo != model.PagoFiado {
				continue
			}
			f := &model.Fiado{
				SesionCajaID: sesionID,
				VentaID:      venta.ID,
				Cliente:      cliente,
				MontoCents:   pg.MontoCents,
			}
			if err := s.fiados.CreateTx(tx, f); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errVentaDuplicada) {
		// 5. Lost the race against an identical request
		winner, ferr := s.repo.FindByIdempotencyKey(ctx, key)
		if ferr == nil {
			return ventaToResponse(winner, true), nil
		}
		if errors.Is(ferr, gorm.ErrRecordNotFound) {
			return nil, apierror.Conflict("venta concurrente en curso, reintente con la misma clave")
		}
		return nil, internal(ferr)
	}
	if err != nil {
		err = internal(err)
		logError(ctx, err, "registrar venta")
		return nil, err
	}

	if venta.ConflictoStock {
		metrics.VentasConflictoStock.Inc()
		zerolog.Ctx(ctx).Warn().
			Str("venta_id", venta.ID.String()).
			Msg("venta con stock negativo")
	}
	return ventaToResponse(venta, false), nil
}

// ── List ──────────────────────────────────────────────────────────────────────

func (s *ventaService) List(ctx context.Context, filter dto.VentaFilter) (*dto.VentaListResponse, error) {
	page, limit := paginar(filter.Page, filter.Limit, 50)
	f := repository.VentaFilter{Page: page, Limit: limit}
	if filter.SesionCajaID != "" {
		id, err := uuid.Parse(filter.SesionCajaID)
		if err != nil {
			return nil, apierror.Validation("sesion_caja_id invalido")
		}
		f.SesionCajaID = &id
	}
	if filter.Fecha != "" {
		desde, err := time.Parse("2006-01-02", filter.Fecha)
		if err != nil {
			return nil, apierror.Validation("fecha invalida, se espera YYYY-MM-DD")
		}
		hasta := desde.AddDate(0, 0, 1)
		f.Desde, f.Hasta = &desde, &hasta
	}

	ventas, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, internal(err)
	}
	data := make([]dto.VentaResponse, len(ventas))
	for i := range ventas {
		data[i] = *ventaToResponse(&ventas[i], false)
	}
	return &dto.VentaListResponse{Data: data, Total: total, Page: page, Limit: limit}, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func resultadoVenta(resp *dto.VentaResponse, err error) string {
	switch {
	case err == nil && resp != nil && resp.Duplicate:
		return "duplicada"
	case err == nil:
		return "creada"
	case apierror.CodeOf(err) == apierror.CodeInternal:
		return "error"
	default:
		return "rechazada"
	}
}

func ventaToResponse(v *model.Venta, duplicate bool) *dto.VentaResponse {
	resp := &dto.VentaResponse{
		ID:             v.ID.String(),
		IdempotencyKey: v.IdempotencyKey,
		SesionCajaID:   v.SesionCajaID.String(),
		UbicacionID:    v.UbicacionID.String(),
		UsuarioID:      v.UsuarioID.String(),
		SubtotalCents:  v.SubtotalCents,
		DescuentoCents: v.DescuentoCents,
		TotalCents:     v.TotalCents,
		PagadoCents:    v.PagadoCents,
		VueltoCents:    v.VueltoCents,
		ConflictoStock: v.ConflictoStock,
		Items:          make([]dto.ItemVentaResponse, len(v.Items)),
		Pagos:          make([]dto.PagoResponse, len(v.Pagos)),
		CreatedAt:      formatTime(v.CreatedAt),
		Duplicate:      duplicate,
	}
	for i, it := range v.Items {
		resp.Items[i] = dto.ItemVentaResponse{
			ProductoID:          it.ProductoID.String(),
			Cantidad:            it.Cantidad,
			PrecioUnitarioCents: it.PrecioUnitarioCents,
			DescuentoCents:      it.DescuentoCents,
			SubtotalCents:       it.SubtotalCents,
		}
	}
	for i, pg := range v.Pagos {
		resp.Pagos[i] = dto.PagoResponse{Metodo: string(pg.Metodo), MontoCents: pg.MontoCents}
	}
	return resp
}
