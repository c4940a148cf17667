package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sentio/internal/metrics"
)

// HealthCheck reporta si una dependencia responde.
type HealthCheck func(ctx context.Context) error

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	identity gin.HandlerFunc,
	captureH *CaptureHandler,
	chatH *ChatHandler,
	insightsH *InsightsHandler,
	dashboardH *DashboardHandler,
	health HealthCheck,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y metricas.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), metricsMiddleware())

	r.GET("/healthz", healthHandler(health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("", identity)

	captures := api.Group("/capture/:modality", jsonContentTypeMiddleware())
	captures.POST("/start", captureH.Start)
	captures.POST("/stop", captureH.Stop)
	captures.POST("/frame", captureH.Frame)
	captures.POST("/discard", captureH.Discard)
	captures.GET("/status", captureH.Status)

	// sin content-type forzado: /chat puede responder SSE
	api.POST("/chat", chatH.PostMessage)
	api.GET("/chat/:session_id", chatH.Transcript)

	api.POST("/recommend", insightsH.Recommend)
	api.GET("/recommendations/current", insightsH.CurrentRecommendation)
	api.GET("/events", insightsH.ListEvents)

	api.GET("/dashboard", dashboardH.Snapshot)
	api.GET("/dashboard/ws", dashboardH.Live)

	return r
}

func healthHandler(check HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware cuenta requests por ruta registrada, no por path crudo.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestCount.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
