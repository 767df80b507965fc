// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strings"

	"blendcloud/internal/apierror"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendcloud_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blendcloud_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Sales

	VentasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendcloud_ventas_total",
			Help: "Sale settlement attempts by outcome",
		},
		[]string{"resultado"}, // creada | duplicada | rechazada | error
	)

	VentasConflictoStock = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blendcloud_ventas_conflicto_stock_total",
			Help: "Sales that drove a location's stock below zero",
		},
	)

	// Cash sessions

	CajaOperacionesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendcloud_caja_operaciones_total",
			Help: "Cash session transitions by operation and outcome",
		},
		[]string{"operacion", "resultado"},
	)

	// Auth

	AuthOperacionesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendcloud_auth_operaciones_total",
			Help: "Login, refresh and revocation attempts by outcome",
		},
		[]string{"operacion", "resultado"},
	)

	// Workers

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendcloud_jobs_total",
			Help: "Background jobs processed by queue and outcome",
		},
		[]string{"queue", "resultado"},
	)
)

// Resultado maps an error to a low-cardinality outcome label: "ok" or the
// lower-cased error code.
func Resultado(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apierror.CodeOf(err)))
}
