// Package nasdaq validates hedge tickers against the public NASDAQ and
// other-listed symbol directory files.
package nasdaq

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	successTTL = 24 * time.Hour  // refresh once a day once we have symbols
	failureTTL = 5 * time.Minute // back off retries after a failed fetch
)

// Directory caches the union of the two symbol files. Lookups are served
// from the cache; a fetch happens at most once per TTL window regardless of
// outcome, so a flapping upstream cannot cause a retry storm.
//
// Fail-open contract: when the ticker cannot be verified (no cache and the
// fetch fails) IsPublicEquity returns true. The hedge map is curated, so an
// unverifiable ticker is assumed valid rather than silently dropping a
// candidate.
type Directory struct {
	client    *http.Client
	nasdaqURL string
	otherURL  string
	log       zerolog.Logger

	mu          sync.Mutex
	symbols     map[string]bool
	lastFetched time.Time
}

// NewDirectory creates a directory backed by the given symbol file URLs.
func NewDirectory(nasdaqURL, otherURL string, log zerolog.Logger) *Directory {
	return &Directory{
		client:    &http.Client{Timeout: 10 * time.Second},
		nasdaqURL: nasdaqURL,
		otherURL:  otherURL,
		log:       log.With().Str("client", "nasdaq").Logger(),
	}
}

// IsPublicEquity reports whether ticker appears in the public directories,
// refreshing the cache when its TTL has lapsed.
func (d *Directory) IsPublicEquity(ctx context.Context, ticker string) bool {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	d.mu.Lock()
	if !d.lastFetched.IsZero() {
		ttl := failureTTL
		if len(d.symbols) > 0 {
			ttl = successTTL
		}
		if time.Since(d.lastFetched) <= ttl {
			if len(d.symbols) > 0 {
				known := d.symbols[ticker]
				d.mu.Unlock()
				return known
			}
			// Recent failure with no cache: fail open until the retry TTL lapses.
			d.mu.Unlock()
			return true
		}
	}
	d.mu.Unlock()

	d.Refresh(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.symbols) > 0 {
		return d.symbols[ticker]
	}
	return true
}

// Refresh downloads both symbol files and replaces the cache if anything was
// loaded. The fetch timestamp always advances, success or not.
func (d *Directory) Refresh(ctx context.Context) bool {
	combined := make(map[string]bool)
	for _, url := range []string{d.nasdaqURL, d.otherURL} {
		syms, err := d.fetchSymbolFile(ctx, url)
		if err != nil {
			d.log.Warn().Err(err).Str("url", url).Msg("symbol file fetch failed")
			continue
		}
		for s := range syms {
			combined[s] = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFetched = time.Now()
	if len(combined) == 0 {
		d.log.Warn().Msg("symbol refresh returned 0 symbols, keeping old cache")
		return false
	}
	d.symbols = combined
	d.log.Info().Int("symbols", len(combined)).Msg("loaded public symbol directories")
	return true
}

// fetchSymbolFile downloads one pipe-delimited directory file. The first
// line is a header; a trailing "File Creation Time" line ends the data.
func (d *Directory) fetchSymbolFile(ctx context.Context, url string) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	symbols := make(map[string]bool)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		if strings.HasPrefix(line, "File Creation Time") {
			break
		}
		sym, _, _ := strings.Cut(line, "|")
		sym = strings.TrimSpace(sym)
		if sym != "" && isAlpha(sym) {
			symbols[strings.ToUpper(sym)] = true
		}
	}
	return symbols, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
