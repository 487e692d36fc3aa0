package pricecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSource struct {
	price     *uint256.Int
	decimals  uint8
	err       error
	priceHits int
	decHits   int
}

func (f *fakeSource) TokenPrice(context.Context, common.Address) (*uint256.Int, error) {
	f.priceHits++
	if f.err != nil {
		return nil, f.err
	}
	return f.price, nil
}

func (f *fakeSource) Decimals(context.Context, common.Address) (uint8, error) {
	f.decHits++
	return f.decimals, nil
}

var token = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestCache_ReusesUntilStale(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &fakeSource{price: uint256.NewInt(5e14), decimals: 6}
	c := New(src, src, WithClock(clock))

	q, err := c.Price(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, uint64(5e14), q.Price.Uint64())
	require.Equal(t, uint8(6), q.Decimals)

	clock.now = clock.now.Add(14 * time.Minute)
	_, err = c.Price(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, 1, src.priceHits)

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = c.Price(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, 2, src.priceHits)
	require.Equal(t, 1, src.decHits, "decimals are cached for good")
}

func TestCache_NativeNeedsNoFetch(t *testing.T) {
	src := &fakeSource{err: errors.New("should not be called")}
	c := New(src, src)
	q, err := c.Price(context.Background(), common.Address{})
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", q.Price.Dec())
	require.Equal(t, uint8(18), q.Decimals)
	require.Zero(t, src.priceHits)
}

func TestCache_SourceErrorsPropagate(t *testing.T) {
	src := &fakeSource{err: errors.New("feed down"), decimals: 18}
	c := New(src, src)
	_, err := c.Price(context.Background(), token)
	require.ErrorContains(t, err, "feed down")

	src.err = nil
	src.price = new(uint256.Int)
	_, err = c.Price(context.Background(), token)
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestCache_Invalidate(t *testing.T) {
	src := &fakeSource{price: uint256.NewInt(1), decimals: 18}
	c := New(src, src)
	_, err := c.Price(context.Background(), token)
	require.NoError(t, err)
	c.Invalidate(token)
	_, err = c.Price(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, 2, src.priceHits)
}

type memStore struct {
	quotes  map[common.Address]Quote
	saveErr error
	loads   int
	saves   int
	ttl     time.Duration
}

func (m *memStore) Load(_ context.Context, token common.Address) (Quote, bool, error) {
	m.loads++
	q, ok := m.quotes[token]
	return q, ok, nil
}

func (m *memStore) Save(_ context.Context, token common.Address, q Quote, ttl time.Duration) error {
	m.saves++
	m.ttl = ttl
	if m.saveErr != nil {
		return m.saveErr
	}
	m.quotes[token] = q
	return nil
}

func TestCache_FreshStoredQuoteSkipsSource(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := &memStore{quotes: map[common.Address]Quote{
		token: {Price: uint256.NewInt(7e14), Decimals: 6, FetchedAt: clock.now.Add(-time.Minute)},
	}}
	src := &fakeSource{err: errors.New("should not be called")}
	c := New(src, src, WithClock(clock), WithStore(store))

	q, err := c.Price(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, uint64(7e14), q.Price.Uint64())
	require.Zero(t, src.priceHits)

	_, err = c.Price(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, 1, store.loads, "second read is served locally")
}

func TestCache_StaleOrInvalidStoredQuoteIsRefetched(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	other := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	store := &memStore{quotes: map[common.Address]Quote{
		token: {Price: uint256.NewInt(1), Decimals: 6, FetchedAt: clock.now.Add(-time.Hour)},
		other: {Price: uint256.NewInt(1), Decimals: 40, FetchedAt: clock.now},
	}}
	src := &fakeSource{price: uint256.NewInt(9e14), decimals: 6}
	c := New(src, src, WithClock(clock), WithStore(store), WithTTL(10*time.Minute))

	q, err := c.Price(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, uint64(9e14), q.Price.Uint64())

	q, err = c.Price(context.Background(), other)
	require.NoError(t, err)
	require.Equal(t, uint8(6), q.Decimals)

	require.Equal(t, 2, src.priceHits)
	require.Equal(t, 2, store.saves)
	require.Equal(t, 10*time.Minute, store.ttl)
	require.Equal(t, uint64(9e14), store.quotes[token].Price.Uint64())
}

func TestCache_StoreSaveFailureIsNotFatal(t *testing.T) {
	store := &memStore{quotes: map[common.Address]Quote{}, saveErr: errors.New("redis down")}
	src := &fakeSource{price: uint256.NewInt(3), decimals: 18}
	c := New(src, src, WithStore(store))

	q, err := c.Price(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, uint64(3), q.Price.Uint64())
	require.Equal(t, 1, store.saves)
}

func TestDecodeQuote(t *testing.T) {
	q, err := decodeQuote([]byte(`{"price":"500000000000000","decimals":6,"fetchedAt":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, "500000000000000", q.Price.Dec())
	require.Equal(t, uint8(6), q.Decimals)
	require.Equal(t, 2024, q.FetchedAt.Year())

	_, err = decodeQuote([]byte(`{"price":"1","decimals":40,"fetchedAt":"2024-01-01T00:00:00Z"}`))
	require.ErrorIs(t, err, fixedpoint.ErrInvalidDecimals)

	_, err = decodeQuote([]byte(`{"price":"-1","decimals":6}`))
	require.Error(t, err)
}
