package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
)

// RedisStore shares quotes between liquidator processes through Redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

type redisQuote struct {
	Price     string    `json:"price"`
	Decimals  uint8     `json:"decimals"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// NewRedisStore connects using a redis:// URL.
func NewRedisStore(rawURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "liquidator:price:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(token common.Address) string {
	return s.prefix + strings.ToLower(token.Hex())
}

func (s *RedisStore) Load(ctx context.Context, token common.Address) (Quote, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, fmt.Errorf("redis get: %w", err)
	}
	q, err := decodeQuote(data)
	if err != nil {
		return Quote{}, false, err
	}
	return q, true, nil
}

func decodeQuote(data []byte) (Quote, error) {
	var rq redisQuote
	if err := json.Unmarshal(data, &rq); err != nil {
		return Quote{}, fmt.Errorf("decode cached quote: %w", err)
	}
	price, err := uint256.FromDecimal(rq.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("decode cached price %q: %w", rq.Price, err)
	}
	if err := fixedpoint.CheckDecimals(rq.Decimals); err != nil {
		return Quote{}, fmt.Errorf("decode cached quote: %w", err)
	}
	return Quote{Price: price, Decimals: rq.Decimals, FetchedAt: rq.FetchedAt}, nil
}

func (s *RedisStore) Save(ctx context.Context, token common.Address, q Quote, ttl time.Duration) error {
	if q.Price == nil {
		return ErrNoPrice
	}
	data, err := json.Marshal(redisQuote{Price: q.Price.Dec(), Decimals: q.Decimals, FetchedAt: q.FetchedAt})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(token), data, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
