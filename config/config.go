package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del core.
type Config struct {
	Trading     TradingConfig             `yaml:"trading"`
	Risk        RiskConfig                `yaml:"risk"`
	Orders      OrdersConfig              `yaml:"orders"`
	Arbitrage   ArbitrageConfig           `yaml:"arbitrage"`
	Strategies  StrategiesConfig          `yaml:"strategies"`
	Exchanges   map[string]ExchangeConfig `yaml:"exchanges"`
	Performance PerformanceConfig         `yaml:"performance"`
	Storage     StorageConfig             `yaml:"storage"`
	API         APIConfig                 `yaml:"api"`
	Metrics     MetricsConfig             `yaml:"metrics"`
	Redis       RedisConfig               `yaml:"redis"`
	Log         LogConfig                 `yaml:"log"`
}

// TradingConfig son los límites por operación. Las fracciones son del balance quote total.
type TradingConfig struct {
	MaxPositionSize   float64  `yaml:"max_position_size"`
	MaxOpenPositions  int      `yaml:"max_open_positions"`
	MinTradeAmountUSD float64  `yaml:"min_trade_amount_usd"`
	MaxTradeAmountUSD float64  `yaml:"max_trade_amount_usd"`
	StopLossPercent   float64  `yaml:"stop_loss_percent"`
	TakeProfitPercent float64  `yaml:"take_profit_percent"`
	RiskPerTrade      float64  `yaml:"risk_per_trade"`
	QuoteAssets       []string `yaml:"quote_assets"`
}

// RiskConfig controla el risk gate y el monitor.
type RiskConfig struct {
	MaxDailyLoss            float64       `yaml:"max_daily_loss"`
	MaxDrawdown             float64       `yaml:"max_drawdown"`
	CircuitBreakerThreshold float64       `yaml:"circuit_breaker_threshold"`
	CorrelationLimit        float64       `yaml:"correlation_limit"`
	DefaultCorrelation      float64       `yaml:"default_correlation"`
	VaRConfidence           float64       `yaml:"var_confidence"`
	VolatilityEstimate      float64       `yaml:"volatility_estimate"`
	DailyVolatility         float64       `yaml:"daily_volatility"`
	KellyFraction           float64       `yaml:"kelly_fraction"`
	PriorWinRate            float64       `yaml:"prior_win_rate"`
	PriorAvgWin             float64       `yaml:"prior_avg_win"`
	PriorAvgLoss            float64       `yaml:"prior_avg_loss"`
	MinKellySamples         int           `yaml:"min_kelly_samples"`
	MonitorInterval         time.Duration `yaml:"monitor_interval"`

	// Correlations fija estimaciones por par, clave "A|B".
	Correlations map[string]float64 `yaml:"correlations"`
}

// OrdersConfig controla la supervisión de órdenes.
type OrdersConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxPolls          int           `yaml:"max_polls"`
	ErrorBackoff      time.Duration `yaml:"error_backoff"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	HistoryLimit      int           `yaml:"history_limit"`
}

// ArbitrageConfig controla el scanner de arbitraje.
type ArbitrageConfig struct {
	Enabled           *bool         `yaml:"enabled"`
	AutoExecute       *bool         `yaml:"auto_execute"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	MinSpread         float64       `yaml:"min_spread"`
	DefaultFee        float64       `yaml:"default_fee"`
	BalanceFraction   float64       `yaml:"balance_fraction"`
	LiquidityFraction float64       `yaml:"liquidity_fraction"`
	BookDepth         int           `yaml:"book_depth"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	MaxExecutionTime  time.Duration `yaml:"max_execution_time"`
	Symbols           []string      `yaml:"symbols"` // allow-list opcional
}

// StrategiesConfig controla el runner de estrategias internas.
type StrategiesConfig struct {
	Interval  time.Duration `yaml:"interval"`
	ExitGuard bool          `yaml:"exit_guard"`
	ExitVenue string        `yaml:"exit_venue"`
}

// ExchangeConfig describe un venue. Kind es rest o paper.
type ExchangeConfig struct {
	Kind      string      `yaml:"kind"`
	BaseURL   string      `yaml:"base_url"`
	APIKey    string      `yaml:"api_key"`
	APISecret string      `yaml:"api_secret"`
	RateLimit float64     `yaml:"rate_limit"` // requests/s
	FeeRate   float64     `yaml:"fee_rate"`
	Paper     PaperConfig `yaml:"paper"`
}

// PaperConfig es el estado inicial de un venue simulado.
type PaperConfig struct {
	Balances map[string]float64    `yaml:"balances"`
	Books    map[string]PaperQuote `yaml:"books"`

	// Random walk de los books; WalkInterval 0 los deja fijos.
	WalkInterval time.Duration `yaml:"walk_interval"`
	Volatility   float64       `yaml:"volatility"`
}

// PaperQuote es un book de un nivel por lado.
type PaperQuote struct {
	Bid     float64 `yaml:"bid"`
	BidSize float64 `yaml:"bid_size"`
	Ask     float64 `yaml:"ask"`
	AskSize float64 `yaml:"ask_size"`
}

// PerformanceConfig controla el tracker y su snapshot.
type PerformanceConfig struct {
	Snapshot     string        `yaml:"snapshot"` // file | sqlite
	SnapshotPath string        `yaml:"snapshot_path"`
	RiskFreeRate float64       `yaml:"risk_free_rate"`
	MemoTTL      time.Duration `yaml:"memo_ttl"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// APIConfig controla la API de solo lectura.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RedisConfig controla el stream de oportunidades. Addr vacío lo desactiva.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Venues por defecto cuando el YAML no define ninguno.
var defaultRateLimits = map[string]float64{
	"kraken":   10,
	"binance":  1200,
	"coinbase": 10,
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse interpreta un documento YAML, aplica overrides de entorno y defaults
// y valida el resultado.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
// Las credenciales se leen de <VENUE>_API_KEY y <VENUE>_API_SECRET.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	for name, ex := range cfg.Exchanges {
		prefix := envPrefix(name)
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			ex.APIKey = v
		}
		if v := os.Getenv(prefix + "_API_SECRET"); v != "" {
			ex.APISecret = v
		}
		cfg.Exchanges[name] = ex
	}
}

func envPrefix(venue string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(venue))
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	t := &cfg.Trading
	setFloat(&t.MaxPositionSize, 0.05)
	setInt(&t.MaxOpenPositions, 10)
	setFloat(&t.MinTradeAmountUSD, 50)
	setFloat(&t.MaxTradeAmountUSD, 5000)
	setFloat(&t.StopLossPercent, 0.02)
	setFloat(&t.TakeProfitPercent, 0.05)
	setFloat(&t.RiskPerTrade, 0.01)
	if len(t.QuoteAssets) == 0 {
		t.QuoteAssets = []string{"USDT", "USDC", "USD"}
	}

	r := &cfg.Risk
	setFloat(&r.MaxDailyLoss, 0.05)
	setFloat(&r.MaxDrawdown, 0.10)
	setFloat(&r.CircuitBreakerThreshold, 0.03)
	setFloat(&r.CorrelationLimit, 0.7)
	setFloat(&r.DefaultCorrelation, 0.5)
	setFloat(&r.VaRConfidence, 0.95)
	setFloat(&r.VolatilityEstimate, 0.5)
	setFloat(&r.DailyVolatility, 0.02)
	setFloat(&r.KellyFraction, 0.25)
	setFloat(&r.PriorWinRate, 0.55)
	setFloat(&r.PriorAvgWin, 100)
	setFloat(&r.PriorAvgLoss, 80)
	setInt(&r.MinKellySamples, 10)
	setDuration(&r.MonitorInterval, 30*time.Second)

	o := &cfg.Orders
	setDuration(&o.PollInterval, time.Second)
	setInt(&o.MaxPolls, 60)
	setDuration(&o.ErrorBackoff, 5*time.Second)
	setDuration(&o.ReconcileInterval, 30*time.Second)
	setInt(&o.HistoryLimit, 10000)

	a := &cfg.Arbitrage
	if a.Enabled == nil {
		a.Enabled = boolPtr(true)
	}
	if a.AutoExecute == nil {
		a.AutoExecute = boolPtr(true)
	}
	setDuration(&a.CheckInterval, time.Second)
	setFloat(&a.MinSpread, 0.005)
	setFloat(&a.DefaultFee, 0.001)
	setFloat(&a.BalanceFraction, 0.3)
	setFloat(&a.LiquidityFraction, 0.5)
	setInt(&a.BookDepth, 5)
	setInt(&a.MaxConcurrency, 8)
	setDuration(&a.MaxExecutionTime, 30*time.Second)

	setDuration(&cfg.Strategies.Interval, 10*time.Second)

	if len(cfg.Exchanges) == 0 {
		cfg.Exchanges = make(map[string]ExchangeConfig, len(defaultRateLimits))
		for name := range defaultRateLimits {
			cfg.Exchanges[name] = ExchangeConfig{Kind: "rest"}
		}
	}
	for name, ex := range cfg.Exchanges {
		if ex.Kind == "" {
			ex.Kind = "rest"
		}
		if ex.RateLimit <= 0 {
			ex.RateLimit = defaultRateLimits[name]
		}
		setFloat(&ex.FeeRate, a.DefaultFee)
		if ex.Paper.WalkInterval > 0 {
			setFloat(&ex.Paper.Volatility, 0.001)
		}
		cfg.Exchanges[name] = ex
	}

	p := &cfg.Performance
	if p.Snapshot == "" {
		p.Snapshot = "file"
	}
	if p.SnapshotPath == "" {
		p.SnapshotPath = "data/performance_history.json"
	}
	setFloat(&p.RiskFreeRate, 0.02)
	setDuration(&p.MemoTTL, time.Hour)

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tradecore.db"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = "tradecore:opportunities"
	}
	if cfg.Redis.MaxLen <= 0 {
		cfg.Redis.MaxLen = 1000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate comprueba rangos y coherencia. Un error aquí es fatal al arrancar.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Trading.MaxPositionSize > 0 && c.Trading.MaxPositionSize <= 1, "trading.max_position_size must be in (0,1]")
	check(c.Trading.MinTradeAmountUSD < c.Trading.MaxTradeAmountUSD, "trading.min_trade_amount_usd must be below max_trade_amount_usd")
	check(c.Risk.MaxDailyLoss > 0 && c.Risk.MaxDailyLoss < 1, "risk.max_daily_loss must be in (0,1)")
	check(c.Risk.MaxDrawdown > 0 && c.Risk.MaxDrawdown < 1, "risk.max_drawdown must be in (0,1)")
	check(c.Risk.VaRConfidence == 0.95 || c.Risk.VaRConfidence == 0.99, "risk.var_confidence must be 0.95 or 0.99")
	check(c.Risk.CorrelationLimit > 0 && c.Risk.CorrelationLimit <= 1, "risk.correlation_limit must be in (0,1]")
	check(c.Arbitrage.MinSpread >= 0, "arbitrage.min_spread must not be negative")
	check(c.Performance.Snapshot == "file" || c.Performance.Snapshot == "sqlite", "performance.snapshot must be file or sqlite")
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format must be text or json")

	usable := 0
	for _, name := range c.ExchangeNames() {
		ex := c.Exchanges[name]
		switch ex.Kind {
		case "paper":
			usable++
		case "rest":
			if ex.APIKey != "" && ex.APISecret != "" {
				check(ex.BaseURL != "", "exchanges.%s.base_url is required", name)
				usable++
			}
		default:
			check(false, "exchanges.%s.kind %q must be rest or paper", name, ex.Kind)
		}
	}
	check(usable > 0, "no usable venue: every rest venue lacks credentials and no paper venue is configured")

	if c.Strategies.ExitGuard && c.Strategies.ExitVenue != "" {
		_, ok := c.Exchanges[c.Strategies.ExitVenue]
		check(ok, "strategies.exit_venue %q is not a configured exchange", c.Strategies.ExitVenue)
	}

	return errors.Join(errs...)
}

// Usable indica si el venue se puede conectar: paper siempre, rest solo con credenciales.
func (e ExchangeConfig) Usable() bool {
	return e.Kind == "paper" || (e.APIKey != "" && e.APISecret != "")
}

// ExchangeNames devuelve los venues configurados en orden alfabético.
func (c *Config) ExchangeNames() []string {
	names := make([]string, 0, len(c.Exchanges))
	for n := range c.Exchanges {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fees devuelve la fee de cada venue.
func (c *Config) Fees() map[string]float64 {
	out := make(map[string]float64, len(c.Exchanges))
	for n, ex := range c.Exchanges {
		out[n] = ex.FeeRate
	}
	return out
}

func setFloat(v *float64, def float64) {
	if *v <= 0 {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

func boolPtr(b bool) *bool { return &b }
