package handler

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig holds the HTTP-level settings of the server.
type RouterConfig struct {
	CORSOrigins  []string
	MaxBodyBytes int64
	Metrics      bool
}

// NewRouter assembles the gin engine: shared middleware, health and
// metrics endpoints, the PAC routes and a JSON 404 fallback.
func NewRouter(h *PACHandler, p Pinger, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(SecurityHeaders())
	router.Use(BodyLimit(cfg.MaxBodyBytes))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	}
	if cfg.Metrics {
		router.Use(PrometheusMiddleware())
		router.GET("/metrics", MetricsHandler())
	}
	router.Use(RequestLogger(logger))

	RegisterHealth(router, p, logger)
	h.Register(router)
	router.NoRoute(NotFound)
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Content-Location", "ETag"},
		MaxAge:        12 * time.Hour,
	}
	if containsWildcard(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
