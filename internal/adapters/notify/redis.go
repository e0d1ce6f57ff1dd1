package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configura el stream de oportunidades.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// RedisPublisher añade cada oportunidad a un stream de Redis para consumidores
// externos. Implementa ports.OpportunityNotifier.
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher crea el cliente. No conecta hasta el primer comando.
func NewRedisPublisher(cfg RedisConfig) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisPublisher(rdb, cfg)
}

// NewRedisPublisherClient reutiliza un cliente existente.
func NewRedisPublisherClient(rdb *redis.Client, cfg RedisConfig) *RedisPublisher {
	return newRedisPublisher(rdb, cfg)
}

func newRedisPublisher(rdb *redis.Client, cfg RedisConfig) *RedisPublisher {
	stream := cfg.Stream
	if stream == "" {
		stream = "tradecore:opportunities"
	}
	return &RedisPublisher{rdb: rdb, stream: stream, maxLen: cfg.MaxLen}
}

// Ping verifica la conexión.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("notify.RedisPublisher.Ping: %w", err)
	}
	return nil
}

// NotifyOpportunities hace XADD de cada oportunidad en un pipeline.
func (p *RedisPublisher) NotifyOpportunities(ctx context.Context, opps []domain.ArbitrageOpportunity) error {
	if len(opps) == 0 {
		return nil
	}
	pipe := p.rdb.Pipeline()
	for _, o := range opps {
		args := &redis.XAddArgs{
			Stream: p.stream,
			Values: opportunityFields(o),
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify.RedisPublisher: xadd %d entries to %s: %w", len(opps), p.stream, err)
	}
	return nil
}

// Close cierra el cliente.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

func opportunityFields(o domain.ArbitrageOpportunity) map[string]any {
	return map[string]any{
		"symbol":       o.Symbol,
		"buy_venue":    o.BuyVenue,
		"buy_price":    formatFloat(o.BuyPrice),
		"sell_venue":   o.SellVenue,
		"sell_price":   formatFloat(o.SellPrice),
		"gross_spread": formatFloat(o.GrossSpread),
		"net_spread":   formatFloat(o.NetSpread),
		"volume":       formatFloat(min(o.BuyVolume, o.SellVolume)),
		"ts_ms":        o.DetectedAt.UnixMilli(),
		"detected_at":  o.DetectedAt.UTC().Format(time.RFC3339Nano),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
