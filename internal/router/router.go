package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/carebook-api/internal/middleware"
	"github.com/jwalitptl/carebook-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// HealthHandler registers the unauthenticated liveness and readiness routes.
type HealthHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type RouterConfig struct {
	Mode           string
	RequestTimeout time.Duration
	AllowedOrigins []string
	SizeLimit      middleware.SizeLimitConfig
	Security       middleware.SecurityConfig
	// RateLimiter is nil when rate limiting is disabled.
	RateLimiter *middleware.RateLimiter
	Gatherer    prometheus.Gatherer
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	health  HealthHandler
	api     []Handler
	config  RouterConfig
	metrics *metrics.Metrics
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	health HealthHandler,
	metrics *metrics.Metrics,
	config RouterConfig,
	handlers ...Handler,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	r := &Router{
		engine:  engine,
		auth:    auth,
		health:  health,
		api:     handlers,
		config:  config,
		metrics: metrics,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Metrics(metrics),
		middleware.SecurityHeaders(config.Security),
		cors.New(corsConfig(config.AllowedOrigins)),
		middleware.SizeLimit(config.SizeLimit),
	)
	if config.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(config.RequestTimeout))
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	cfg.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

func (r *Router) Setup() {
	if r.config.Gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.config.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.engine.Group("/api/v1")
	if r.health != nil {
		r.health.RegisterRoutes(api)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	if r.config.RateLimiter != nil {
		protected.Use(r.config.RateLimiter.RateLimit())
	}
	for _, h := range r.api {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
