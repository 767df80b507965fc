package router

import (
	"blendcloud/internal/config"
	"blendcloud/internal/handler"
	"blendcloud/internal/middleware"
	"blendcloud/internal/model"
	"blendcloud/internal/repository"
	"blendcloud/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps carries the process-wide resources the HTTP layer is built from.
// Redis and Reportes are optional: without them /health reports redis as
// disabled and closing a session does not schedule the background report.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Reportes service.ReporteEnqueuer
}

// Services is the service layer built over one database handle.
type Services struct {
	Auth    service.AuthService
	Caja    service.CajaService
	Ventas  service.VentaService
	Tenants repository.TenantRepository
}

// Wire builds repositories and services. The worker pool uses it too, so
// background jobs run through the same tenant-scoped code as requests.
func Wire(d Deps) *Services {
	db := d.DB
	usuarioRepo := repository.NewUsuarioRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	sesionAuthRepo := repository.NewSesionAuthRepository(db)
	cajaRepo := repository.NewCajaRepository(db)
	ventaRepo := repository.NewVentaRepository(db)
	productoRepo := repository.NewProductoRepository(db)
	stockRepo := repository.NewStockRepository(db)
	fiadoRepo := repository.NewFiadoRepository(db)

	authSvc := service.NewAuthService(usuarioRepo, tenantRepo, sesionAuthRepo, d.Config)
	return &Services{
		Auth:    authSvc,
		Caja:    service.NewCajaService(cajaRepo, tenantRepo, ventaRepo, fiadoRepo, authSvc, d.Reportes),
		Ventas:  service.NewVentaService(ventaRepo, cajaRepo, productoRepo, stockRepo, fiadoRepo),
		Tenants: tenantRepo,
	}
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB
func New(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimiter(cfg.RateLimitRPS))

	svc := Wire(d)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(svc.Auth)
	cajaH := handler.NewCajaHandler(svc.Caja, svc.Tenants)
	ventasH := handler.NewVentasHandler(svc.Ventas)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(d.DB, d.Redis))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Protected routes: every handler below runs with the caller's tenant bound.
	anyRol := middleware.RequireRole(model.RolOwner, model.RolAdmin, model.RolAttendant)
	managers := middleware.RequireRole(model.RolOwner, model.RolAdmin)

	v1 := r.Group("/v1", middleware.JWTAuth(svc.Auth), middleware.Tenant())
	{
		v1.POST("/auth/logout", authH.Logout)
		v1.GET("/auth/sesiones", authH.ListSesiones)
		v1.DELETE("/auth/sesiones/:id", authH.RevocarSesion)

		caja := v1.Group("/caja")
		{
			caja.POST("/abrir", anyRol, cajaH.Abrir)
			caja.POST("/cerrar", anyRol, cajaH.Cerrar)
			caja.POST("/retiros", anyRol, cajaH.RegistrarRetiro)
			caja.GET("/activa", anyRol, cajaH.GetActiva)
			caja.GET("/historial", managers, cajaH.Historial)
			caja.GET("/:id/reporte", anyRol, cajaH.ObtenerReporte)
			caja.GET("/:id/fiados", anyRol, cajaH.ListFiados)
		}
		v1.POST("/fiados/:id/saldar", managers, cajaH.SaldarFiado)

		v1.POST("/ventas", anyRol, ventasH.RegistrarVenta)
		v1.GET("/ventas", anyRol, ventasH.ListarVentas)
	}

	// Swagger UI, only outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
