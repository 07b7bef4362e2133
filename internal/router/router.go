package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
)

// APIPrefix is the versioned route prefix.
const APIPrefix = "/api/v1"

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// PublicHandler exposes routes reachable without a bearer token.
type PublicHandler interface {
	RegisterPublicRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimit middleware.RateLimiterConfig
	CORS      middleware.CORSConfig
	SizeLimit middleware.SizeLimitConfig
	Mode      string
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger zerolog.Logger,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	r := &Router{
		engine:   engine,
		auth:     auth,
		metrics:  m,
		gatherer: gatherer,
		logger:   logger,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORS),
		middleware.SizeLimit(config.SizeLimit),
		middleware.NewRateLimiter(config.RateLimit).RateLimit(),
	)

	return r
}

// Setup mounts health and metrics, the public routes, then every handler
// behind the authentication gate.
func (r *Router) Setup(health Handler, public []PublicHandler, protected []Handler) {
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	api := r.engine.Group(APIPrefix)
	health.RegisterRoutes(api)

	for _, h := range public {
		h.RegisterPublicRoutes(api)
	}

	authenticated := api.Group("")
	authenticated.Use(r.auth.Authenticate())
	for _, h := range protected {
		h.RegisterRoutes(authenticated)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		r.metrics.RequestsActive.Inc()
		defer r.metrics.RequestsActive.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		r.metrics.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		r.metrics.RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}
