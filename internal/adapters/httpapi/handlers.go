package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/gin-gonic/gin"
)

const defaultLimit = 100

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.deps.Version,
		"dry_run": s.deps.DryRun,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) getRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Risk.Metrics())
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Positions.Positions())
}

func (s *Server) getActiveOrders(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Orders.Active())
}

func (s *Server) getOrderStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Orders.Stats())
}

func (s *Server) getUnresolved(c *gin.Context) {
	ids := s.deps.Orders.Unresolved()
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"order_ids": ids})
}

func (s *Server) getPerformance(c *gin.Context) {
	strategy := c.Query("strategy")
	if strategy == "" {
		c.JSON(http.StatusOK, gin.H{
			"overall":    s.deps.Performance.Overall(),
			"strategies": s.deps.Performance.AllPerformance(),
		})
		return
	}
	perf, err := s.deps.Performance.StrategyPerformance(strategy)
	if err != nil {
		respondError(c, http.StatusNotFound, "STRATEGY_NOT_FOUND", err.Error())
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (s *Server) getOrderHistory(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	// History viene del más antiguo al más reciente; la API devuelve lo último primero.
	history := s.deps.Orders.History()
	out := make([]domain.Order, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getTrades(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.deps.Performance.TradeHistory(c.Query("strategy"), limit))
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Strategies.Reports())
}

// queryLimit lee ?limit=; responde 400 y devuelve false si no es válido.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func (s *Server) getTrends(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Performance.Trends())
}
