package notify_test

import (
	"context"
	"testing"

	"github.com/alejandrodnm/tradecore/internal/adapters/notify"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher_AppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	p := notify.NewRedisPublisher(notify.RedisConfig{Addr: mr.Addr(), Stream: "test:opps", MaxLen: 100})
	defer p.Close()
	require.NoError(t, p.Ping(ctx))

	err := p.NotifyOpportunities(ctx, []domain.ArbitrageOpportunity{
		makeOpp("BTC/USDT", 0.008),
		makeOpp("ETH/USDT", 0.006),
	})
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	entries, err := rdb.XRange(ctx, "test:opps", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0].Values
	assert.Equal(t, "BTC/USDT", first["symbol"])
	assert.Equal(t, "kraken", first["buy_venue"])
	assert.Equal(t, "30300", first["sell_price"])
	assert.Equal(t, "0.008", first["net_spread"])
	assert.Equal(t, "0.8", first["volume"])
}

func TestRedisPublisher_EmptyIsNoop(t *testing.T) {
	mr := miniredis.RunT(t)
	p := notify.NewRedisPublisher(notify.RedisConfig{Addr: mr.Addr()})
	defer p.Close()

	require.NoError(t, p.NotifyOpportunities(context.Background(), nil))
	assert.False(t, mr.Exists("tradecore:opportunities"))
}

func TestRedisPublisher_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	p := notify.NewRedisPublisher(notify.RedisConfig{Addr: addr})
	defer p.Close()
	err := p.NotifyOpportunities(context.Background(), []domain.ArbitrageOpportunity{makeOpp("BTC/USDT", 0.01)})
	assert.ErrorContains(t, err, "xadd")
}
