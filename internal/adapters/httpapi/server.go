package httpapi

// server.go: API de solo lectura sobre el estado del core.
//
//   GET /api/health
//   GET /api/risk
//   GET /api/positions
//   GET /api/orders/active | /api/orders/stats | /api/orders/unresolved
//   GET /api/performance[?strategy=]
//   GET /api/trades?strategy=&limit=
//   GET /api/trends
//   GET /ws   stream de eventos del bus

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/tradecore/internal/application/strategy"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RiskView es la vista del risk gate.
type RiskView interface {
	Metrics() domain.RiskMetrics
}

// PositionView es la vista del ledger.
type PositionView interface {
	Positions() []domain.Position
}

// OrderView es la vista del order manager.
type OrderView interface {
	Active() []domain.Order
	History() []domain.Order
	Stats() domain.OrderStats
	Unresolved() []string
}

// PerformanceView es la vista del performance tracker.
type PerformanceView interface {
	StrategyPerformance(strategy string) (domain.StrategyPerformance, error)
	AllPerformance() map[string]domain.StrategyPerformance
	Overall() domain.OverallPerformance
	TradeHistory(strategy string, limit int) []domain.TradeRecord
	Trends() domain.TrendAnalysis
}

// StrategyView es el registro de estrategias.
type StrategyView interface {
	Reports() []strategy.Report
}

// EventSource es el bus de eventos.
type EventSource interface {
	Subscribe(buffer int, types ...domain.EventType) (<-chan domain.Event, func())
}

// Deps agrupa las vistas que sirve la API. Todas son obligatorias salvo
// Strategies y Events.
type Deps struct {
	Risk        RiskView
	Positions   PositionView
	Orders      OrderView
	Performance PerformanceView
	Strategies  StrategyView
	Events      EventSource
	Version     string
	DryRun      bool
}

// Server expone el estado del core por HTTP.
type Server struct {
	Router  *gin.Engine
	deps    Deps
	started time.Time
}

// New crea el server con sus rutas.
func New(deps Deps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger())

	s := &Server{Router: r, deps: deps, started: time.Now()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/risk", s.getRisk)
		api.GET("/positions", s.getPositions)
		api.GET("/orders/active", s.getActiveOrders)
		api.GET("/orders/stats", s.getOrderStats)
		api.GET("/orders/unresolved", s.getUnresolved)
		api.GET("/orders/history", s.getOrderHistory)
		api.GET("/performance", s.getPerformance)
		api.GET("/trades", s.getTrades)
		api.GET("/trends", s.getTrends)
		if s.deps.Strategies != nil {
			api.GET("/strategies", s.getStrategies)
		}
	}
}

// Serve escucha en addr hasta que ctx se cancela.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: server starting", "addr", addr)
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
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("api: shutdown error", "err", err)
		}
		slog.Info("api: server stopped")
		return nil
	}
}

// requestID asigna un id a cada request y lo devuelve en X-Request-ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("RequestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("api: request",
			"id", c.GetString("RequestID"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}
