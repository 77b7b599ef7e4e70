package broker

import (
	"net/http"
	"time"

	"github.com/danmuck/stompctl/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const nodeName = "stompd"

func (s *Service) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.log))
	r.Use(observability.RequestMetricsMiddleware(nodeName))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET(s.cfg.WebSocketPath, s.serveWebSocket)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"component":   nodeName,
			"uptime":      time.Since(s.started).String(),
			"connections": s.Connections(),
			"hub":         s.hub.Stats(),
		})
	})
	return r
}
