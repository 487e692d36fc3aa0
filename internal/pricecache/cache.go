// Package pricecache caches native-denominated token prices and token
// decimals for the evaluation engine.
//
// Prices expire after a fixed window measured by an injected Clock; decimals
// never change and are kept for the life of the process.
package pricecache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
)

// DefaultTTL is how long a fetched price stays fresh.
const DefaultTTL = 15 * time.Minute

// ErrNoPrice is returned when a source reports no usable price.
var ErrNoPrice = errors.New("pricecache: no price")

// Quote is the value of one whole token in the 18-decimal native base.
type Quote struct {
	Price     *uint256.Int
	Decimals  uint8
	FetchedAt time.Time
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// PriceSource fetches a token's price in native wei per whole token.
type PriceSource interface {
	TokenPrice(ctx context.Context, token common.Address) (*uint256.Int, error)
}

// DecimalsSource reads a token's decimals.
type DecimalsSource interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Store is an optional shared second-level cache.
type Store interface {
	Load(ctx context.Context, token common.Address) (Quote, bool, error)
	Save(ctx context.Context, token common.Address, q Quote, ttl time.Duration) error
}

type Option func(*Cache)

func WithClock(c Clock) Option { return func(x *Cache) { x.clock = c } }

func WithTTL(ttl time.Duration) Option {
	return func(x *Cache) {
		if ttl > 0 {
			x.ttl = ttl
		}
	}
}

func WithStore(s Store) Option { return func(x *Cache) { x.store = s } }

// Cache is a get-or-fetch price cache. It is safe for concurrent use. The lock
// is never held while a source is queried, so two callers may fetch the same
// token concurrently; the later write wins.
type Cache struct {
	prices   PriceSource
	decimals DecimalsSource
	store    Store
	clock    Clock
	ttl      time.Duration

	mu        sync.Mutex
	quotes    map[common.Address]Quote
	decimalsM map[common.Address]uint8
}

func New(prices PriceSource, decimals DecimalsSource, opts ...Option) *Cache {
	c := &Cache{
		prices:    prices,
		decimals:  decimals,
		clock:     SystemClock{},
		ttl:       DefaultTTL,
		quotes:    make(map[common.Address]Quote),
		decimalsM: make(map[common.Address]uint8),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Price returns a fresh quote for token. The native sentinel (zero address)
// is always worth 1e18 with 18 decimals.
func (c *Cache) Price(ctx context.Context, token common.Address) (Quote, error) {
	now := c.clock.Now()
	if token == (common.Address{}) {
		return Quote{Price: fixedpoint.WAD(), Decimals: fixedpoint.BaseDecimals, FetchedAt: now}, nil
	}

	c.mu.Lock()
	q, ok := c.quotes[token]
	c.mu.Unlock()
	if ok && c.fresh(q, now) {
		return q, nil
	}

	if c.store != nil {
		q, ok, err := c.store.Load(ctx, token)
		switch {
		case err != nil:
			log.Printf("[warn] price store load %s: %v", token.Hex(), err)
		case ok && q.Price != nil && !q.Price.IsZero() && fixedpoint.CheckDecimals(q.Decimals) == nil && c.fresh(q, now):
			c.put(token, q)
			return q, nil
		}
	}

	dec, err := c.Decimals(ctx, token)
	if err != nil {
		return Quote{}, err
	}
	price, err := c.prices.TokenPrice(ctx, token)
	if err != nil {
		return Quote{}, fmt.Errorf("price %s: %w", token.Hex(), err)
	}
	if price == nil || price.IsZero() {
		return Quote{}, fmt.Errorf("%w for %s", ErrNoPrice, token.Hex())
	}

	q = Quote{Price: price, Decimals: dec, FetchedAt: now}
	c.put(token, q)
	if c.store != nil {
		if err := c.store.Save(ctx, token, q, c.ttl); err != nil {
			log.Printf("[warn] price store save %s: %v", token.Hex(), err)
		}
	}
	return q, nil
}

// Decimals returns token's decimals, reading them once.
func (c *Cache) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if token == (common.Address{}) {
		return fixedpoint.BaseDecimals, nil
	}
	c.mu.Lock()
	d, ok := c.decimalsM[token]
	c.mu.Unlock()
	if ok {
		return d, nil
	}

	d, err := c.decimals.Decimals(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("decimals %s: %w", token.Hex(), err)
	}
	if err := fixedpoint.CheckDecimals(d); err != nil {
		return 0, fmt.Errorf("decimals %s: %w", token.Hex(), err)
	}
	c.mu.Lock()
	c.decimalsM[token] = d
	c.mu.Unlock()
	return d, nil
}

// Invalidate drops a cached price.
func (c *Cache) Invalidate(token common.Address) {
	c.mu.Lock()
	delete(c.quotes, token)
	c.mu.Unlock()
}

func (c *Cache) put(token common.Address, q Quote) {
	c.mu.Lock()
	c.quotes[token] = q
	c.mu.Unlock()
}

func (c *Cache) fresh(q Quote, now time.Time) bool {
	return now.Sub(q.FetchedAt) < c.ttl
}
