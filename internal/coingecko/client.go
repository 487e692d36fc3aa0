// Package coingecko reads token prices quoted in the chain's native currency
// from the CoinGecko simple price API.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/time/rate"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
)

const (
	DefaultURL      = "https://api.coingecko.com/api/v3"
	DefaultPlatform = "ethereum"
	DefaultCurrency = "eth"
)

// ErrNotListed is returned when the API has no price for a token.
var ErrNotListed = errors.New("coingecko: token not listed")

type Client struct {
	host       string
	platform   string
	currency   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client. Empty arguments take the defaults; rps <= 0
// disables client-side throttling.
func NewClient(host, platform, currency string, rps float64) (*Client, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = DefaultURL
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("coingecko url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("coingecko url must be http(s), got %q", host)
	}
	if strings.TrimSpace(platform) == "" {
		platform = DefaultPlatform
	}
	if strings.TrimSpace(currency) == "" {
		currency = DefaultCurrency
	}

	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		host:       host,
		platform:   strings.TrimSpace(platform),
		currency:   strings.ToLower(strings.TrimSpace(currency)),
		httpClient: &http.Client{Timeout: 12 * time.Second},
		limiter:    lim,
	}, nil
}

// TokenPrice returns the native-wei value of one whole token.
func (c *Client) TokenPrice(ctx context.Context, token common.Address) (*uint256.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("coingecko client nil")
	}
	key := strings.ToLower(token.Hex())

	q := url.Values{}
	q.Set("contract_addresses", key)
	q.Set("vs_currencies", c.currency)
	endpoint := c.host + "/simple/token_price/" + url.PathEscape(c.platform) + "?" + q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return nil, fmt.Errorf("coingecko %s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}

	var out map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("coingecko decode: %w", err)
	}

	var quote json.Number
	for addr, prices := range out {
		if strings.EqualFold(addr, key) {
			quote = prices[c.currency]
			break
		}
	}
	if quote == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotListed, token.Hex())
	}
	price, err := fixedpoint.ParseUnits(quote.String(), fixedpoint.BaseDecimals)
	if err != nil {
		return nil, fmt.Errorf("coingecko price %s: %w", token.Hex(), err)
	}
	return price, nil
}

func readBodyLimit(r io.Reader, limit int64) string {
	if r == nil {
		return ""
	}
	if limit <= 0 {
		limit = 8 << 10
	}
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return string(b)
}
