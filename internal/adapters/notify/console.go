package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.OpportunityNotifier y pinta los reportes del core.
type Console struct {
	out     io.Writer
	table   bool
	maxRows int
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table, maxRows: 20}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, maxRows: 20}
}

// NotifyOpportunities imprime las oportunidades del ciclo, mejor spread primero.
func (c *Console) NotifyOpportunities(_ context.Context, opps []domain.ArbitrageOpportunity) error {
	now := time.Now().Format("15:04:05")
	if len(opps) == 0 {
		fmt.Fprintf(c.out, "[%s] no arbitrage opportunities\n", now)
		return nil
	}
	if !c.table {
		c.printCompact(now, opps)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] %d arbitrage opportunities\n", now, len(opps))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Symbol", "Buy", "Ask", "Sell", "Bid", "Gross", "Net", "Volume")
	for i, o := range opps {
		if i >= c.maxRows {
			break
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			o.Symbol,
			o.BuyVenue,
			fmt.Sprintf("%.6g", o.BuyPrice),
			o.SellVenue,
			fmt.Sprintf("%.6g", o.SellPrice),
			pctLabel(o.GrossSpread),
			pctLabel(o.NetSpread),
			fmt.Sprintf("%.4g", min(o.BuyVolume, o.SellVolume)),
		)
	}
	table.Render()
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(now string, opps []domain.ArbitrageOpportunity) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d arb", now, len(opps))
	for i, o := range opps {
		if i >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s→%s net %s", o.Symbol, o.BuyVenue, o.SellVenue, pctLabel(o.NetSpread))
	}
	fmt.Fprintln(c.out, sb.String())
}

// PrintRisk imprime el estado del risk gate y las posiciones abiertas.
func (c *Console) PrintRisk(m domain.RiskMetrics) {
	status := "ENABLED"
	if !m.TradingEnabled {
		status = "DISABLED (" + m.DisabledReason + ")"
	}
	fmt.Fprintf(c.out, "\n=== RISK ===\n")
	fmt.Fprintf(c.out, "  Trading:          %s\n", status)
	fmt.Fprintf(c.out, "  Open positions:   %d\n", m.OpenPositions)
	fmt.Fprintf(c.out, "  Total exposure:   $%.2f\n", m.TotalExposure)
	fmt.Fprintf(c.out, "  Daily P&L:        $%.2f\n", m.DailyPnL)
	fmt.Fprintf(c.out, "  Drawdown:         %s (max %s, peak $%.2f)\n",
		pctLabel(m.CurrentDrawdown), pctLabel(m.MaxDrawdown), m.PeakBalance)
	fmt.Fprintf(c.out, "  VaR 95%%:          $%.2f\n", m.VaR95)

	if len(m.PositionDetails) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Side", "Qty", "Avg", "Value", "Since")
	for _, p := range m.PositionDetails {
		table.Append(
			p.Symbol,
			string(p.Side),
			fmt.Sprintf("%.6g", p.Quantity),
			fmt.Sprintf("%.6g", p.AvgPrice),
			fmt.Sprintf("$%.2f", p.Value),
			p.EntryTime.Format("01-02 15:04"),
		)
	}
	table.Render()
}

// PrintPerformance imprime una fila por estrategia más el agregado.
func (c *Console) PrintPerformance(all map[string]domain.StrategyPerformance, overall domain.OverallPerformance) {
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintf(c.out, "\n=== STRATEGY PERFORMANCE ===\n")
	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Trades", "Win%", "PnL", "Avg", "Best", "Worst", "Open", "24h PnL")
	for _, n := range names {
		p := all[n]
		m := p.Metrics
		table.Append(
			n,
			fmt.Sprintf("%d", m.TotalTrades),
			pctLabel(m.WinRate),
			fmt.Sprintf("$%.2f", m.TotalPnL),
			pctLabel(m.AvgReturn),
			pctLabel(m.BestTrade),
			pctLabel(m.WorstTrade),
			fmt.Sprintf("%d", m.ActivePositions),
			fmt.Sprintf("$%.2f", p.Periods["24h"].PnL),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  Total: $%.2f over %d trades | win %s | sharpe %.2f | max DD %s\n",
		overall.TotalPnL, overall.TotalTrades, pctLabel(overall.WinRate), overall.SharpeRatio, pctLabel(overall.MaxDrawdown))
	if overall.BestStrategy != "" {
		fmt.Fprintf(c.out, "  Best: %s | Worst: %s\n", overall.BestStrategy, overall.WorstStrategy)
	}
}

// PrintOrderStats imprime el resumen del order manager.
func (c *Console) PrintOrderStats(s domain.OrderStats) {
	fmt.Fprintf(c.out, "\n=== ORDERS ===\n")
	fmt.Fprintf(c.out, "  Total: %d | filled %d | cancelled %d | failed %d\n",
		s.TotalOrders, s.FilledOrders, s.CancelledOrders, s.FailedOrders)
	fmt.Fprintf(c.out, "  Active: %d | unresolved %d | fill rate %s | avg exec %.2fs\n",
		s.ActiveOrders, s.Unresolved, pctLabel(s.FillRate), s.AvgExecutionTime)
}

// PrintTrends imprime el P&L diario y las recomendaciones.
func (c *Console) PrintTrends(t domain.TrendAnalysis) {
	fmt.Fprintf(c.out, "\n=== TRENDS ===\n")
	days := make([]string, 0, len(t.DailyPnL))
	for d := range t.DailyPnL {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		fmt.Fprintf(c.out, "  %s  $%.2f\n", d, t.DailyPnL[d])
	}
	if len(t.Recommendations) == 0 {
		fmt.Fprintln(c.out, "  No recommendations")
		return
	}
	for _, r := range t.Recommendations {
		fmt.Fprintf(c.out, "  >> %s\n", r)
	}
}

func pctLabel(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}
