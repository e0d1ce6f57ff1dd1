package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/tradecore/config"
	"github.com/alejandrodnm/tradecore/internal/adapters/exchange"
	"github.com/alejandrodnm/tradecore/internal/adapters/exchange/paper"
	"github.com/alejandrodnm/tradecore/internal/adapters/exchange/rest"
	"github.com/alejandrodnm/tradecore/internal/adapters/httpapi"
	"github.com/alejandrodnm/tradecore/internal/adapters/notify"
	"github.com/alejandrodnm/tradecore/internal/adapters/storage"
	"github.com/alejandrodnm/tradecore/internal/application/arbitrage"
	"github.com/alejandrodnm/tradecore/internal/application/orders"
	"github.com/alejandrodnm/tradecore/internal/application/performance"
	"github.com/alejandrodnm/tradecore/internal/application/positions"
	"github.com/alejandrodnm/tradecore/internal/application/risk"
	"github.com/alejandrodnm/tradecore/internal/application/strategy"
	"github.com/alejandrodnm/tradecore/internal/events"
	"github.com/alejandrodnm/tradecore/internal/metrics"
	"github.com/alejandrodnm/tradecore/internal/ports"
	"golang.org/x/sync/errgroup"
)

type options struct {
	dryRun bool
	table  bool
}

// app agrupa los componentes cableados del core.
type app struct {
	cfg  *config.Config
	opts options

	store      *storage.SQLiteStorage
	redis      *notify.RedisPublisher
	bus        *events.Bus
	collector  *metrics.Collector
	venues     *exchange.Registry
	walkers    []*paper.Venue
	ledger     *positions.Ledger
	tracker    *performance.Tracker
	gate       *risk.Gate
	monitor    *risk.Monitor
	orders     *orders.Manager
	scanner    *arbitrage.Scanner
	strategies *strategy.Registry
	runner     *strategy.Runner
	console    *notify.Console
}

func build(ctx context.Context, cfg *config.Config, opts options) (*app, error) {
	a := &app{
		cfg:       cfg,
		opts:      opts,
		bus:       events.NewBus(),
		collector: metrics.NewCollector(),
		ledger:    positions.NewLedger(),
		console:   notify.NewConsole(opts.table),
	}

	if err := a.buildVenues(); err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}
	a.store = store

	var snapshots ports.SnapshotStore = store
	if cfg.Performance.Snapshot == "file" {
		snapshots = storage.NewJSONFileStore(cfg.Performance.SnapshotPath)
	}
	perfCfg := performance.DefaultConfig()
	perfCfg.RiskFreeRate = cfg.Performance.RiskFreeRate
	perfCfg.MemoTTL = cfg.Performance.MemoTTL
	a.tracker, err = performance.NewTracker(ctx, perfCfg, snapshots, performance.WithPublisher(a.bus))
	if err != nil {
		a.close()
		return nil, err
	}

	a.gate = risk.New(riskConfig(cfg), a.ledger,
		risk.WithWinStats(a.tracker),
		risk.WithRecorder(a.collector),
		risk.WithPublisher(a.bus),
	)
	a.monitor = risk.NewMonitor(a.gate, a.venues.All(), a.ledger, store, cfg.Risk.MonitorInterval,
		risk.WithMarking(a.venues, a.ledger))
	if err := a.monitor.Restore(ctx); err != nil {
		slog.Warn("risk: could not restore state", "err", err)
	}
	// Las estimaciones del config prevalecen sobre las persistidas.
	for key, rho := range cfg.Risk.Correlations {
		pair := strings.SplitN(key, "|", 2)
		if len(pair) != 2 {
			slog.Warn("risk: ignoring malformed correlation key", "key", key)
			continue
		}
		a.gate.SetCorrelation(strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1]), rho)
	}
	a.collector.WatchPositions(a.ledger)

	a.orders = orders.New(orders.Config{
		PollInterval: cfg.Orders.PollInterval,
		MaxPolls:     cfg.Orders.MaxPolls,
		ErrorBackoff: cfg.Orders.ErrorBackoff,
		HistoryLimit: cfg.Orders.HistoryLimit,
	}, a.venues, a.venues, a.gate, a.ledger,
		orders.WithStore(store),
		orders.WithPublisher(a.bus),
		orders.WithRecorder(a.collector),
		orders.WithTradeRecorder(a.tracker),
	)
	if err := a.orders.Restore(ctx); err != nil {
		slog.Warn("orders: could not restore history", "err", err)
	}

	notifiers := []ports.OpportunityNotifier{a.console}
	if cfg.Redis.Addr != "" {
		a.redis = notify.NewRedisPublisher(notify.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err := a.redis.Ping(ctx); err != nil {
			slog.Warn("notify: redis unreachable, publishing anyway", "addr", cfg.Redis.Addr, "err", err)
		}
		notifiers = append(notifiers, a.redis)
	}
	a.scanner = arbitrage.New(arbitrageConfig(cfg, opts.dryRun), a.venues, a.orders,
		arbitrage.WithSizeLimiter(a.gate),
		arbitrage.WithNotifiers(notifiers...),
		arbitrage.WithPublisher(a.bus),
		arbitrage.WithRecorder(a.collector),
	)

	if err := a.buildStrategies(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildVenues() error {
	a.venues = exchange.NewRegistry()
	for _, name := range a.cfg.ExchangeNames() {
		ex := a.cfg.Exchanges[name]
		if !ex.Usable() {
			slog.Warn("exchange skipped: missing credentials", "venue", name)
			continue
		}
		switch ex.Kind {
		case "paper":
			v := paper.New(name, ex.FeeRate)
			for asset, amount := range ex.Paper.Balances {
				v.SetBalance(asset, amount)
			}
			for symbol, q := range ex.Paper.Books {
				v.SetQuote(symbol, q.Bid, q.BidSize, q.Ask, q.AskSize)
			}
			a.venues.Add(v)
			if ex.Paper.WalkInterval > 0 {
				a.walkers = append(a.walkers, v)
			}
		case "rest":
			c, err := rest.New(rest.Config{
				Name:      name,
				BaseURL:   ex.BaseURL,
				APIKey:    ex.APIKey,
				APISecret: ex.APISecret,
				RateLimit: ex.RateLimit,
			})
			if err != nil {
				return fmt.Errorf("exchange %s: %w", name, err)
			}
			a.venues.Add(c)
		}
	}
	if len(a.venues.All()) == 0 {
		return errors.New("no exchange connected")
	}
	slog.Info("exchanges connected", "venues", a.venues.Names())
	return nil
}

func (a *app) buildStrategies() error {
	a.strategies = strategy.NewRegistry()
	if err := a.strategies.Register(strategy.NewReporting("arbitrage", strategy.KindArbitrage, a.tracker)); err != nil {
		return err
	}
	if a.cfg.Strategies.ExitGuard {
		venue := a.cfg.Strategies.ExitVenue
		if venue == "" {
			venue = a.venues.Names()[0]
		}
		guard := strategy.NewExitGuard(strategy.ExitGuardConfig{
			Venue:      venue,
			StopLoss:   a.cfg.Trading.StopLossPercent,
			TakeProfit: a.cfg.Trading.TakeProfitPercent,
		}, a.ledger, a.venues, a.tracker)
		if err := a.strategies.Register(guard); err != nil {
			return err
		}
	}
	a.runner = strategy.NewRunner(a.strategies, a.orders, strategy.RunnerConfig{
		DefaultInterval: a.cfg.Strategies.Interval,
	})
	return nil
}

// run arranca todos los loops y bloquea hasta que ctx se cancela.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.monitor.Run(ctx) })
	g.Go(func() error { return a.orders.RunReconciler(ctx, a.cfg.Orders.ReconcileInterval) })
	g.Go(func() error { return a.runner.Run(ctx) })
	if *a.cfg.Arbitrage.Enabled {
		g.Go(func() error { return a.scanner.Run(ctx) })
	}
	for i, v := range a.walkers {
		i, v := i, v
		ex := a.cfg.Exchanges[v.Name()]
		g.Go(func() error {
			v.Walk(ctx, ex.Paper.WalkInterval, ex.Paper.Volatility, int64(i+1))
			return nil
		})
	}
	if a.cfg.API.Enabled {
		srv := httpapi.New(httpapi.Deps{
			Risk:        a.gate,
			Positions:   a.ledger,
			Orders:      a.orders,
			Performance: a.tracker,
			Strategies:  a.strategies,
			Events:      a.bus,
			Version:     version,
			DryRun:      a.opts.dryRun,
		})
		g.Go(func() error { return srv.Serve(ctx, a.cfg.API.Addr) })
	}
	if a.cfg.Metrics.Enabled {
		g.Go(func() error { return a.collector.Serve(ctx, a.cfg.Metrics.Addr) })
	}

	err := g.Wait()
	a.scanner.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runOnce hace un ciclo del scanner y espera a las ejecuciones lanzadas.
func (a *app) runOnce(ctx context.Context) error {
	if err := a.scanner.Run(ctx); err != nil {
		return err
	}
	a.scanner.Wait()
	return nil
}

func (a *app) printReport() {
	a.console.PrintRisk(a.gate.Metrics())
	a.console.PrintPerformance(a.tracker.AllPerformance(), a.tracker.Overall())
	a.console.PrintOrderStats(a.orders.Stats())
	a.console.PrintTrends(a.tracker.Trends())
	st := a.scanner.Stats()
	slog.Info("arb: stats",
		"cycles", st.Cycles,
		"opportunities", st.Opportunities,
		"executions", st.Executions,
		"partial_failures", st.PartialFailures,
		"skipped_liquidity", st.SkippedLiquidity,
	)
}

func (a *app) close() {
	if a.orders != nil {
		a.orders.Close()
	}
	if a.tracker != nil {
		a.tracker.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("notify: redis close", "err", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("storage close", "err", err)
		}
	}
}

func riskConfig(cfg *config.Config) risk.Config {
	r := cfg.Risk
	return risk.Config{
		MaxPositionSize:         cfg.Trading.MaxPositionSize,
		MinOrderNotional:        cfg.Trading.MinTradeAmountUSD,
		MaxOpenPositions:        cfg.Trading.MaxOpenPositions,
		MaxDailyLoss:            r.MaxDailyLoss,
		MaxDrawdown:             r.MaxDrawdown,
		CircuitBreakerThreshold: r.CircuitBreakerThreshold,
		CorrelationLimit:        r.CorrelationLimit,
		DefaultCorrelation:      r.DefaultCorrelation,
		VolatilityEstimate:      r.VolatilityEstimate,
		DailyVolatility:         r.DailyVolatility,
		VaRConfidence:           r.VaRConfidence,
		KellyFraction:           r.KellyFraction,
		RiskPerTrade:            cfg.Trading.RiskPerTrade,
		StopLoss:                cfg.Trading.StopLossPercent,
		PriorWinRate:            r.PriorWinRate,
		PriorAvgWin:             r.PriorAvgWin,
		PriorAvgLoss:            r.PriorAvgLoss,
		MinKellySamples:         r.MinKellySamples,
		QuoteAssets:             cfg.Trading.QuoteAssets,
	}
}

func arbitrageConfig(cfg *config.Config, dryRun bool) arbitrage.Config {
	a := cfg.Arbitrage
	return arbitrage.Config{
		CheckInterval:     a.CheckInterval,
		MinSpread:         a.MinSpread,
		DefaultFee:        a.DefaultFee,
		Fees:              cfg.Fees(),
		BalanceFraction:   a.BalanceFraction,
		LiquidityFraction: a.LiquidityFraction,
		MinTradeNotional:  cfg.Trading.MinTradeAmountUSD,
		MaxTradeNotional:  cfg.Trading.MaxTradeAmountUSD,
		BookDepth:         a.BookDepth,
		MaxConcurrency:    a.MaxConcurrency,
		MaxExecutionTime:  a.MaxExecutionTime,
		Symbols:           a.Symbols,
		AutoExecute:       *a.AutoExecute && !dryRun,
		DryRun:            dryRun,
	}
}
