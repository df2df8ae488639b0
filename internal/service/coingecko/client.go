// Package coingecko reads historical and spot prices from a CoinGecko
// compatible API. Each call is a single attempt; callers own retries.
package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PriceAgent/internal/domain/failure"
	"PriceAgent/internal/domain/models"
	"PriceAgent/internal/service/ratelimit"
	xhttp "PriceAgent/pkg/http"
	applogger "PriceAgent/pkg/logger"
	"PriceAgent/pkg/util"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Option configures Client.
type Option func(*Client)

// Client implements repository.PriceSource.
type Client struct {
	baseURL    string
	vsCurrency string
	interval   string
	http       *xhttp.Client
	limiter    *ratelimit.Limiter
	l          *applogger.Logger
}

// New creates a client for baseURL. Defaults: usd, daily interval, 10s timeout.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		vsCurrency: "usd",
		interval:   "daily",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}
	return c
}

// WithHTTPClient sets the underlying client (and thus the request timeout).
func WithHTTPClient(hc *xhttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithVsCurrency sets the quote currency.
func WithVsCurrency(cur string) Option {
	return func(c *Client) {
		if cur != "" {
			c.vsCurrency = strings.ToLower(cur)
		}
	}
}

// WithLimiter throttles outgoing calls.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// SetLogger injects a logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

// MarketChart returns daily closes for the last days days, ascending.
func (c *Client) MarketChart(ctx context.Context, assetID string, days int) ([]models.PricePoint, error) {
	const op = "market_chart"
	var body []byte
	err := c.get(ctx, op, "/coins/"+url.PathEscape(assetID)+"/market_chart", map[string][]string{
		"vs_currency": {c.vsCurrency},
		"days":        {strconv.Itoa(days)},
		"interval":    {c.interval},
	}, &body)
	if err != nil {
		return nil, err
	}
	points, err := ParseMarketChart(body)
	if err != nil {
		return nil, failure.MalformedError(op, err)
	}
	if c.l != nil {
		c.l.Debug("market chart fetched",
			applogger.String("asset", assetID),
			applogger.Int("days", days),
			applogger.Int("points", len(points)),
		)
	}
	return points, nil
}

// SimplePrice returns the current price of assetID.
func (c *Client) SimplePrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	const op = "simple_price"
	var body []byte
	err := c.get(ctx, op, "/simple/price", map[string][]string{
		"ids":           {assetID},
		"vs_currencies": {c.vsCurrency},
	}, &body)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := ParseSimplePrice(body, assetID, c.vsCurrency)
	if err != nil {
		return decimal.Zero, failure.MalformedError(op, err)
	}
	return price, nil
}

func (c *Client) get(ctx context.Context, op, path string, query map[string][]string, dest *[]byte) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.baseURL); err != nil {
			return failure.NetworkError(op, fmt.Errorf("rate limiter: %w", err))
		}
	}
	err := c.http.GetJSON(ctx, c.baseURL+path, query, dest)
	if err == nil {
		return nil
	}

	var te *xhttp.TimeoutError
	if errors.As(err, &te) {
		return failure.TimeoutError(op, err)
	}
	return failure.NetworkError(op, err)
}

// ParseMarketChart decodes {"prices": [[ms, price], ...]}.
func ParseMarketChart(body []byte) ([]models.PricePoint, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	pricesRaw, ok := raw["prices"]
	if !ok {
		return nil, errors.New("missing prices field")
	}

	dec := json.NewDecoder(bytes.NewReader(pricesRaw))
	dec.UseNumber()
	var pairs [][]json.Number
	if err := dec.Decode(&pairs); err != nil {
		return nil, fmt.Errorf("prices is not an array of pairs: %w", err)
	}

	points := make([]models.PricePoint, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("prices[%d]: expected [timestamp, price]", i)
		}
		ms, err := pair[0].Float64()
		if err != nil {
			return nil, fmt.Errorf("prices[%d] timestamp: %w", i, err)
		}
		price, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			return nil, fmt.Errorf("prices[%d] price: %w", i, err)
		}
		points = append(points, models.PricePoint{Timestamp: util.FromUnixMilli(ms), Price: price})
	}
	return points, nil
}

// ParseSimplePrice decodes {"<id>": {"<cur>": price}}.
func ParseSimplePrice(body []byte, assetID, vsCurrency string) (decimal.Decimal, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]map[string]json.Number
	if err := dec.Decode(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("decode body: %w", err)
	}
	quotes, ok := raw[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("missing %s field", assetID)
	}
	n, ok := quotes[vsCurrency]
	if !ok {
		return decimal.Zero, fmt.Errorf("missing %s.%s field", assetID, vsCurrency)
	}
	return decimal.NewFromString(n.String())
}
