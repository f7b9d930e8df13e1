package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"supplement-effects/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	Checkins    *CheckinHandler
	Supplements *SupplementHandler
	Effects     *EffectsHandler
	Recompute   *RecomputeHandler
	Health      *HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog(cfg.Log))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if cfg.Health != nil {
		r.GET("/healthz", cfg.Health.Healthz)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		users := api.Group("/users/:user_id")
		if cfg.Checkins != nil {
			users.POST("/entries", cfg.Checkins.UpsertEntry)
			users.POST("/supplement-logs", cfg.Checkins.UpsertLog)
		}
		if cfg.Supplements != nil {
			users.POST("/supplements", cfg.Supplements.Create)
			users.GET("/cockpit", cfg.Supplements.Cockpit)
			api.POST("/user-supplements/:id/trial", cfg.Supplements.StartTrial)
		}
		if cfg.Effects != nil {
			users.GET("/effects", cfg.Effects.GetEffects)
			users.GET("/stats", cfg.Effects.GetStats)
		}
		if cfg.Recompute != nil {
			users.POST("/recompute", cfg.Recompute.RecomputeUser)
			api.POST("/cron/recompute", cfg.Recompute.Cron)
		}
	}
	return r
}

// requestLog writes one line per request. The route template is logged
// instead of the raw path so user ids stay out of the log.
func requestLog(log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		log.Info("request",
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
