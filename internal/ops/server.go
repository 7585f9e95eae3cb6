// Package ops implements the worker's ops endpoint (A6): a minimal gin
// server exposing /healthz and /metrics. This is intentionally separate
// from any control-plane API — it answers only "is this worker process
// alive and what is it doing", for whatever watches the worker fleet.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/dprod-run/dprod/internal/metrics"
	"github.com/dprod-run/dprod/internal/status"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the gin engine and http.Server lifecycle for the ops
// endpoint.
type Server struct {
	httpServer *http.Server
}

// New builds the ops router. store is used only for a lightweight
// liveness check (a query against the database); a nil store skips that
// check and /healthz reports liveness alone.
func New(addr string, collector *metrics.Collector, store *status.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "time": time.Now().UTC()}
		if store != nil {
			if err := store.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", func(c *gin.Context) {
		promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{EnableOpenMetrics: true}).ServeHTTP(c.Writer, c.Request)
	})

	return &Server{httpServer: &http.Server{Addr: addr, Handler: r}}
}

func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
