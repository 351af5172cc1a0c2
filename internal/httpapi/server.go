// Package httpapi exposes the engine's read surface and mode toggles to
// the display layer over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"marketsync/internal/engine"
	"marketsync/internal/stream"
	"marketsync/internal/timeseries"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Engine is the part of *engine.Engine the routes use.
type Engine interface {
	CurrentPrice(symbol string) (engine.PriceView, bool)
	Series(symbol string) (timeseries.Series, bool)
	ConnectionStatus() engine.Status
	Signals() []stream.Signal
	Metrics() engine.MetricsSnapshot

	SetDisplay(ctx context.Context, symbol, timeframe string) error
	EnableRealtime()
	DisableRealtime()
	EnablePolling()
	DisablePolling()
	EnableIndicator(name string) error
	DisableIndicator(name string) error
}

type Server struct {
	engine Engine
	logger *zap.Logger
	router *gin.Engine
}

func New(eng Engine, logger *zap.Logger, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{engine: eng, logger: logger, router: gin.New()}
	s.router.Use(gin.Recovery(), s.accessLog)
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	api.GET("/status", s.getStatus)
	api.GET("/prices/:symbol", s.getPrice)
	api.GET("/series/:symbol", s.getSeries)
	api.GET("/signals", s.getSignals)

	api.PUT("/display", s.putDisplay)
	api.POST("/realtime", s.toggle(s.engine.EnableRealtime))
	api.DELETE("/realtime", s.toggle(s.engine.DisableRealtime))
	api.POST("/polling", s.toggle(s.engine.EnablePolling))
	api.DELETE("/polling", s.toggle(s.engine.DisablePolling))
	api.POST("/indicators/:name", s.indicator(s.engine.EnableIndicator))
	api.DELETE("/indicators/:name", s.indicator(s.engine.DisableIndicator))
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("took", time.Since(start)),
	)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connection": s.engine.ConnectionStatus(),
		"metrics":    s.engine.Metrics(),
	})
}

func (s *Server) getPrice(c *gin.Context) {
	view, ok := s.engine.CurrentPrice(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no price for symbol"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getSeries(c *gin.Context) {
	series, ok := s.engine.Series(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol is not displayed"})
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) getSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.engine.Signals()})
}

type displayRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe"`
}

func (s *Server) putDisplay(c *gin.Context) {
	var req displayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.SetDisplay(c.Request.Context(), req.Symbol, req.Timeframe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.engine.ConnectionStatus())
}

func (s *Server) toggle(fn func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn()
		c.JSON(http.StatusOK, s.engine.ConnectionStatus())
	}
}

func (s *Server) indicator(fn func(string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Param("name")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
