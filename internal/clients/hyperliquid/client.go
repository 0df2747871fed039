// Package hyperliquid is a client for the Hyperliquid /info endpoint, scoped
// to one builder-deployed DEX (the TradFi perp universe).
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/dkallos/arbiter/internal/modules/market"
)

// Per-request deadlines. The book fetch is on the deep-scan hot path and
// gets a tighter budget.
const (
	metaTimeout    = 15 * time.Second
	fundingTimeout = 15 * time.Second
	bookTimeout    = 10 * time.Second
)

// Client posts typed queries to a single /info URL. All methods honor the
// caller's context, share one rate limiter and sit behind one circuit
// breaker so a venue outage fails fast instead of stacking timeouts.
type Client struct {
	client  *http.Client
	infoURL string
	dex     string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewClient creates a new Hyperliquid info client for the given DEX.
func NewClient(infoURL, dex string, log zerolog.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "hyperliquid-info",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		client:  &http.Client{Timeout: 20 * time.Second},
		infoURL: infoURL,
		dex:     dex,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log.With().Str("client", "hyperliquid").Logger(),
	}
}

// post sends one /info query and returns the raw response body.
func (c *Client) post(ctx context.Context, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.infoURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// FetchUniverseAndContexts fetches metaAndAssetCtxs for the configured DEX
// and returns normalized snapshots. Malformed entries are skipped, not
// fatal; the universe and context arrays are zipped index-wise.
func (c *Client) FetchUniverseAndContexts(ctx context.Context) ([]market.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, metaTimeout)
	defer cancel()

	data, err := c.post(ctx, map[string]string{"type": "metaAndAssetCtxs", "dex": c.dex})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metaAndAssetCtxs: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed metaAndAssetCtxs response: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("malformed metaAndAssetCtxs response: %d elements", len(raw))
	}

	var meta struct {
		Universe []assetMeta `json:"universe"`
	}
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, fmt.Errorf("failed to parse universe: %w", err)
	}
	var ctxs []assetContext
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, fmt.Errorf("failed to parse asset contexts: %w", err)
	}

	n := len(meta.Universe)
	if len(ctxs) < n {
		n = len(ctxs)
	}

	snapshots := make([]market.Snapshot, 0, n)
	for i := 0; i < n; i++ {
		snap, ok := normalize(meta.Universe[i], ctxs[i])
		if !ok {
			c.log.Debug().Str("coin", meta.Universe[i].Name).Msg("skipping malformed market entry")
			continue
		}
		snapshots = append(snapshots, snap)
	}

	c.log.Debug().Int("markets", len(snapshots)).Msg("fetched universe")
	return snapshots, nil
}

// FetchOrderBook fetches the L2 book for a coin. Bids come back descending
// by price, asks ascending, per the venue contract.
func (c *Client) FetchOrderBook(ctx context.Context, coin string) (market.OrderBook, error) {
	ctx, cancel := context.WithTimeout(ctx, bookTimeout)
	defer cancel()

	data, err := c.post(ctx, map[string]string{"type": "l2Book", "coin": coin})
	if err != nil {
		return market.OrderBook{}, fmt.Errorf("failed to fetch l2Book for %s: %w", coin, err)
	}

	var resp struct {
		Levels [][]bookLevel `json:"levels"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return market.OrderBook{}, fmt.Errorf("failed to parse l2Book for %s: %w", coin, err)
	}

	var book market.OrderBook
	if len(resp.Levels) > 0 {
		book.Bids = toLevels(resp.Levels[0])
	}
	if len(resp.Levels) > 1 {
		book.Asks = toLevels(resp.Levels[1])
	}
	return book, nil
}

// FetchFundingHistory fetches hourly funding samples for a coin since
// startTime, ascending by time.
func (c *Client) FetchFundingHistory(ctx context.Context, coin string, startTime time.Time) ([]market.FundingSample, error) {
	ctx, cancel := context.WithTimeout(ctx, fundingTimeout)
	defer cancel()

	payload := map[string]any{
		"type":      "fundingHistory",
		"coin":      coin,
		"startTime": startTime.UnixMilli(),
	}
	data, err := c.post(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fundingHistory for %s: %w", coin, err)
	}

	var raw []struct {
		Coin        string    `json:"coin"`
		FundingRate flexFloat `json:"fundingRate"`
		Time        int64     `json:"time"` // epoch ms
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fundingHistory for %s: %w", coin, err)
	}

	samples := make([]market.FundingSample, 0, len(raw))
	for _, r := range raw {
		samples = append(samples, market.FundingSample{
			Coin: r.Coin,
			Time: time.UnixMilli(r.Time).UTC(),
			Rate: float64(r.FundingRate),
		})
	}
	return samples, nil
}
