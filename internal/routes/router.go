package routes

import (
	"net/http"

	"pulse/internal/controllers"
	"pulse/internal/middleware"
	"pulse/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers groups the controllers the router dispatches to
type Handlers struct {
	Metrics    *controllers.MetricsController
	Samples    *controllers.SamplesController
	Executions *controllers.ExecutionsController
	Alerts     *controllers.AlertsController
	WebSocket  *controllers.WebSocketController
}

// Options configures the middleware chain. Auth nil disables token checks.
type Options struct {
	Auth           *services.AuthService
	Security       *middleware.SecurityLogger
	RateLimiter    *middleware.RateLimiter
	Whitelist      *middleware.IPWhitelist
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Logger         *logrus.Logger
}

// NewRouter builds the HTTP surface
func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Logger != nil {
		r.Use(middleware.RequestLogger(opts.Logger))
	}
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	if opts.Whitelist != nil {
		r.Use(middleware.IPWhitelistMiddleware(opts.Whitelist, opts.Security))
	}
	if opts.RateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(opts.RateLimiter, opts.Security))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	tenant := middleware.TenantMiddleware(opts.Auth, opts.Security)

	api := r.Group("/api/v1", tenant)
	RegisterMetricsRoutes(api, h.Metrics, h.Samples, h.Executions)
	RegisterAlertRoutes(api, h.Alerts)
	RegisterAuthRoutes(r, tenant, h.WebSocket)

	return r
}
