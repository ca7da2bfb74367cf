package router

import (
	"fmt"

	"github.com/erp/stockengine/internal/infrastructure/auth"
	"github.com/erp/stockengine/internal/infrastructure/config"
	"github.com/erp/stockengine/internal/infrastructure/logger"
	"github.com/erp/stockengine/internal/interfaces/http/handler"
	"github.com/erp/stockengine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Dependencies are the collaborators of the HTTP engine
type Dependencies struct {
	Logger      *zap.Logger
	HTTP        config.HTTPConfig
	JWT         *auth.JWTService
	Revocations auth.RevocationList
	// Meter enables HTTP metrics when set
	Meter     metric.Meter
	Tracing   middleware.TracingConfig
	Profiling middleware.ProfilingConfig
	Stock     *handler.StockHandler
	Health    *handler.HealthHandler
}

// NewEngine builds the gin engine with the global middleware stack, the
// unauthenticated /health endpoint and the JWT-protected /api/v1 routes.
//
// Middleware order: RequestID, Recovery, request logging, tracing, span
// enrichment, metrics, profiling labels, security headers, CORS, body limit.
func NewEngine(deps Dependencies) (*gin.Engine, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("router: JWT service is required")
	}
	if deps.Stock == nil {
		return nil, fmt.Errorf("router: stock handler is required")
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(deps.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(deps.HTTP.TrustedProxies); err != nil {
			return nil, fmt.Errorf("set trusted proxies: %w", err)
		}
	}

	metrics, err := middleware.HTTPMetrics(deps.Meter)
	if err != nil {
		return nil, err
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = deps.HTTP.CORSAllowOrigins

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(deps.Tracing))
	engine.Use(middleware.SpanAttributes())
	engine.Use(metrics)
	engine.Use(middleware.Profiling(deps.Profiling))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(deps.HTTP.MaxBodySize))

	if deps.Health != nil {
		engine.GET("/health", deps.Health.Health)
	}

	jwtConfig := middleware.DefaultJWTConfig(deps.JWT)
	jwtConfig.Revocations = deps.Revocations
	jwtConfig.Logger = log

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))
	r.Register(NewStockRoutes(deps.Stock, middleware.PermissionConfig{Logger: log}))
	r.Setup()

	return engine, nil
}
