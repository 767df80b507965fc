package service

import (
	"fmt"

	"blendcloud/internal/apierror"
	"blendcloud/internal/dto"
	"blendcloud/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var cien = decimal.NewFromInt(100)

// lineaVenta is one priced sale line.
type lineaVenta struct {
	productoID     uuid.UUID
	cantidad       int
	precioCents    int64
	descuentoCents int64
	subtotalCents  int64
}

// totalesVenta is the outcome of pricing and payment validation.
type totalesVenta struct {
	lineas         []lineaVenta
	subtotalCents  int64 // gross after per-item discounts
	descuentoCents int64 // sale-level discount
	totalCents     int64
	pagadoCents    int64
	vueltoCents    int64
	aplicados      []int64 // per payment, cash net of change
}

// calcularLineas prices every item from the catalog. Unknown or inactive
// products and discounts above the line gross are client errors.
func calcularLineas(items []dto.ItemVentaRequest, catalogo map[uuid.UUID]model.Producto) ([]lineaVenta, int64, error) {
	lineas := make([]lineaVenta, 0, len(items))
	var subtotal int64
	for i, it := range items {
		pid, err := uuid.Parse(it.ProductoID)
		if err != nil {
			return nil, 0, apierror.Validation(fmt.Sprintf("item %d: producto_id invalido", i+1))
		}
		if it.Cantidad <= 0 {
			return nil, 0, apierror.Validation(fmt.Sprintf("item %d: la cantidad debe ser positiva", i+1))
		}
		p, ok := catalogo[pid]
		if !ok {
			return nil, 0, apierror.Validation(fmt.Sprintf("item %d: producto %s no encontrado", i+1, pid))
		}
		if !p.Activo {
			return nil, 0, apierror.Validation(fmt.Sprintf("item %d: producto %s esta inactivo y no puede venderse", i+1, p.Nombre))
		}
		bruto := p.PrecioVentaCents * int64(it.Cantidad)
		if it.DescuentoCents < 0 || it.DescuentoCents > bruto {
			return nil, 0, apierror.Validation(fmt.Sprintf("item %d: descuento fuera de rango", i+1))
		}
		l := lineaVenta{
			productoID:     pid,
			cantidad:       it.Cantidad,
			precioCents:    p.PrecioVentaCents,
			descuentoCents: it.DescuentoCents,
			subtotalCents:  bruto - it.DescuentoCents,
		}
		subtotal += l.subtotalCents
		lineas = append(lineas, l)
	}
	return lineas, subtotal, nil
}

// calcularDescuentoVenta turns the sale-level discount into cents. Percentages
// round half-up to the cent.
func calcularDescuentoVenta(subtotal int64, d *dto.DescuentoVentaRequest) (int64, error) {
	if d == nil {
		return 0, nil
	}
	if d.Valor.IsNegative() {
		return 0, apierror.Validation("el descuento no puede ser negativo")
	}
	var cents int64
	switch d.Tipo {
	case "monto":
		if !d.Valor.IsInteger() {
			return 0, apierror.Validation("el descuento en monto se expresa en centavos enteros")
		}
		cents = d.Valor.IntPart()
	case "porcentaje":
		if d.Valor.GreaterThan(cien) {
			return 0, apierror.Validation("el porcentaje de descuento no puede superar 100")
		}
		cents = decimal.NewFromInt(subtotal).Mul(d.Valor).Div(cien).Round(0).IntPart()
	default:
		return 0, apierror.Validation("tipo de descuento desconocido")
	}
	if cents > subtotal {
		return 0, apierror.Validation("el descuento supera el subtotal de la venta")
	}
	return cents, nil
}

// validarPagos applies payments in list order. A non-cash payment may not
// exceed the balance still owed when it is applied; only cash produces change.
func validarPagos(total int64, pagos []dto.PagoRequest) (pagado, vuelto int64, err error) {
	if len(pagos) == 0 {
		return 0, 0, apierror.Validation("la venta requiere al menos un pago")
	}
	restante := total
	for i, p := range pagos {
		metodo := model.MetodoPago(p.Metodo)
		if !metodo.Valido() {
			return 0, 0, apierror.Validation(fmt.Sprintf("pago %d: metodo %q desconocido", i+1, p.Metodo))
		}
		if p.MontoCents <= 0 {
			return 0, 0, apierror.Validation(fmt.Sprintf("pago %d: el monto debe ser positivo", i+1))
		}
		if metodo != model.PagoEfectivo && p.MontoCents > restante {
			return 0, 0, apierror.Validation(fmt.Sprintf("pago %d: %s no puede superar el saldo restante (%d)", i+1, metodo, restante))
		}
		pagado += p.MontoCents
		restante -= p.MontoCents
		if restante < 0 {
			restante = 0
		}
	}
	if pagado < total {
		return 0, 0, apierror.Validation("El monto total de pagos es insuficiente")
	}
	return pagado, pagado - total, nil
}

// aplicarVuelto returns the amount each payment leaves in the sale. Change is
// taken back from the cash payments, last one first, so the stored cash
// amounts add up to the cash that stays in the drawer.
func aplicarVuelto(pagos []dto.PagoRequest, vuelto int64) []int64 {
	aplicados := make([]int64, len(pagos))
	for i, p := range pagos {
		aplicados[i] = p.MontoCents
	}
	for i := len(pagos) - 1; i >= 0 && vuelto > 0; i-- {
		if model.MetodoPago(pagos[i].Metodo) != model.PagoEfectivo {
			continue
		}
		d := min(aplicados[i], vuelto)
		aplicados[i] -= d
		vuelto -= d
	}
	return aplicados
}

// calcularTotales runs pricing, discounts and payment validation.
func calcularTotales(req dto.RegistrarVentaRequest, catalogo map[uuid.UUID]model.Producto) (*totalesVenta, error) {
	lineas, subtotal, err := calcularLineas(req.Items, catalogo)
	if err != nil {
		return nil, err
	}
	descuento, err := calcularDescuentoVenta(subtotal, req.Descuento)
	if err != nil {
		return nil, err
	}
	total := subtotal - descuento
	pagado, vuelto, err := validarPagos(total, req.Pagos)
	if err != nil {
		return nil, err
	}
	return &totalesVenta{
		lineas:         lineas,
		subtotalCents:  subtotal,
		descuentoCents: descuento,
		totalCents:     total,
		pagadoCents:    pagado,
		vueltoCents:    vuelto,
		aplicados:      aplicarVuelto(req.Pagos, vuelto),
	}, nil
}
