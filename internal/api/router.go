package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/authgate/docs" // registers the OpenAPI document
	"github.com/99minutos/authgate/internal/api/handler"
	"github.com/99minutos/authgate/internal/api/middleware"
	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
)

// Dependencies are the services the HTTP layer is built from.
type Dependencies struct {
	Auth        ports.AuthService
	Accounts    ports.AccountService
	Tokens      ports.TokenValidator
	Enforcement ports.EnforcementToggle
	// Readiness lists the dependencies probed by /health/ready.
	Readiness map[string]handler.Pinger
	// Registry receives the HTTP metrics and backs /metrics. Nil means the
	// default Prometheus registry, where the domain metrics live.
	Registry *prometheus.Registry
	Log      zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "authgate",
		Subsystem:  "http",
		Registerer: registerer,
	}))

	authenticate := middleware.Authenticate(deps.Tokens, deps.Enforcement, deps.Log.With().Str("component", "access").Logger())
	adminOnly := middleware.RequireRoles(domain.RoleAdmin)

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	e.POST("/auth/login", authHandler.Login)

	self := e.Group("/auth", authenticate, middleware.RequireIdentity())
	self.GET("/me", authHandler.Me)
	self.POST("/password", authHandler.ChangePassword)

	// --- Admin routes ---
	admin := e.Group("/admin", authenticate, adminOnly)

	accounts := handler.NewAccountHandler(deps.Accounts)
	admin.GET("/accounts", accounts.List)
	admin.POST("/accounts", accounts.Create)
	admin.PATCH("/accounts/:id", accounts.Update)
	admin.PUT("/accounts/:id/role", accounts.UpdateRole)
	admin.POST("/accounts/:id/password", accounts.ResetPassword)
	admin.DELETE("/accounts/:id", accounts.Deactivate)
	admin.DELETE("/accounts/:id/hard", accounts.HardDelete)

	enforcement := handler.NewEnforcementHandler(deps.Enforcement)
	admin.GET("/enforcement", enforcement.Get)
	admin.PUT("/enforcement", enforcement.Set)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
