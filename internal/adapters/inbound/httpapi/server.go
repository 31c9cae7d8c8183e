// Package httpapi exposes the fix pipeline over HTTP.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdidvp/layerfix/internal/bootstrap"
)

// DefaultMaxUpload bounds zip uploads.
const DefaultMaxUpload = 64 << 20

// Option configures the router.
type Option func(*Handlers)

// WithMaxUpload sets the largest accepted zip upload in bytes.
func WithMaxUpload(n int64) Option {
	return func(h *Handlers) { h.maxUpload = n }
}

// NewRouter registers every route on a fresh engine.
//
//	GET  /health
//	GET  /metrics
//	GET  /api/v1/rules
//	POST /api/v1/detect/json
//	POST /api/v1/fix/json
//	POST /api/v1/fix/zip
func NewRouter(app *bootstrap.App, opts ...Option) *gin.Engine {
	h := &Handlers{app: app, maxUpload: DefaultMaxUpload}
	for _, o := range opts {
		o(h)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(app.Logger))
	r.MaxMultipartMemory = h.maxUpload
	r.GET("/health", h.HandleHealth)
	if app.Metrics != nil {
		r.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/rules", h.HandleRules)
	v1.POST("/detect/json", h.HandleDetectJSON)
	v1.POST("/fix/json", h.HandleFixJSON)
	v1.POST("/fix/zip", h.HandleFixZip)
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
