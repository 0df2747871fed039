package nasdaq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

const nasdaqFile = `Symbol|Security Name|Market Category|Test Issue|Financial Status|Round Lot Size|ETF|NextShares
AAPL|Apple Inc. - Common Stock|Q|N|N|100|N|N
NVDA|NVIDIA Corporation - Common Stock|Q|N|N|100|N|N
ZVZZT|NASDAQ TEST STOCK|G|Y|N|100|N|N
File Creation Time: 0301202622:01|||||||
`

const otherFile = `ACT Symbol|Security Name|Exchange|CQS Symbol|ETF|Round Lot Size|Test Issue|NASDAQ Symbol
TSLA|Tesla Inc. Common Stock|N|TSLA|N|100|N|TSLA
BRK.A|Berkshire Hathaway|N|BRK.A|N|100|N|BRK.A
File Creation Time: 0301202622:01|||||||
`

func fileServer(t *testing.T, status int, body string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestIsPublicEquity(t *testing.T) {
	nas := fileServer(t, http.StatusOK, nasdaqFile, nil)
	defer nas.Close()
	other := fileServer(t, http.StatusOK, otherFile, nil)
	defer other.Close()

	d := NewDirectory(nas.URL, other.URL, zerolog.Nop())
	ctx := context.Background()

	assert.True(t, d.IsPublicEquity(ctx, "AAPL"))
	assert.True(t, d.IsPublicEquity(ctx, "TSLA"))
	assert.True(t, d.IsPublicEquity(ctx, "nvda")) // case-insensitive
	assert.False(t, d.IsPublicEquity(ctx, "NOSUCH"))
	// Dotted symbols are excluded by the alpha filter.
	assert.False(t, d.IsPublicEquity(ctx, "BRK.A"))
}

func TestIsPublicEquityCachesWithinTTL(t *testing.T) {
	var calls int
	nas := fileServer(t, http.StatusOK, nasdaqFile, &calls)
	defer nas.Close()
	other := fileServer(t, http.StatusOK, otherFile, nil)
	defer other.Close()

	d := NewDirectory(nas.URL, other.URL, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d.IsPublicEquity(ctx, "AAPL")
	}
	assert.Equal(t, 1, calls)
}

func TestIsPublicEquityFailOpen(t *testing.T) {
	var calls int
	nas := fileServer(t, http.StatusInternalServerError, "", &calls)
	defer nas.Close()
	other := fileServer(t, http.StatusInternalServerError, "", nil)
	defer other.Close()

	d := NewDirectory(nas.URL, other.URL, zerolog.Nop())
	ctx := context.Background()

	// Unverifiable with empty cache: everything passes.
	assert.True(t, d.IsPublicEquity(ctx, "AAPL"))
	assert.True(t, d.IsPublicEquity(ctx, "NOSUCH"))
	// The failure is cached; no hammering inside the retry window.
	assert.Equal(t, 1, calls)
}

func TestRefreshKeepsStaleCacheOnFailure(t *testing.T) {
	nas := fileServer(t, http.StatusOK, nasdaqFile, nil)
	other := fileServer(t, http.StatusOK, otherFile, nil)
	defer other.Close()

	d := NewDirectory(nas.URL, other.URL, zerolog.Nop())
	ctx := context.Background()
	assert.True(t, d.Refresh(ctx))

	nas.Close()
	other.Close()
	assert.False(t, d.Refresh(ctx))

	// Old symbols still answer lookups.
	assert.True(t, d.IsPublicEquity(ctx, "AAPL"))
	assert.False(t, d.IsPublicEquity(ctx, "NOSUCH"))
}
