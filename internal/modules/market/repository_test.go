package market

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkallos/arbiter/internal/database"
)

var testDBSeq int

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	testDBSeq++
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:market_test_%d?mode=memory&cache=shared", testDBSeq),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Conn())
}

func TestUpsertAndGet(t *testing.T) {
	repo := newTestRepo(t)

	snap, err := repo.Get("GOLD")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, repo.Upsert(Snapshot{
		Coin: "xyz:GOLD", Ticker: "GOLD",
		MarkPx: 2650, MidPx: 2650.5,
		FundingHourly: 0.0000342, FundingAPR: 0.2996,
		OIBase: 15000, OIUSD: 40_000_000, Volume24h: 9_000_000, MaxLeverage: 20,
	}))

	snap, err = repo.Get("GOLD")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "xyz:GOLD", snap.Coin)
	assert.Equal(t, 2650.5, snap.MidPx)
	assert.Equal(t, 20, snap.MaxLeverage)

	// Same ticker replaces in place.
	require.NoError(t, repo.Upsert(Snapshot{
		Coin: "xyz:GOLD", Ticker: "GOLD",
		MarkPx: 2700, FundingAPR: 0.31, MaxLeverage: 20,
	}))

	snap, err = repo.Get("GOLD")
	require.NoError(t, err)
	assert.Equal(t, 2700.0, snap.MarkPx)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetAllOrdersByFundingAPR(t *testing.T) {
	repo := newTestRepo(t)

	for _, s := range []Snapshot{
		{Ticker: "GOLD", Coin: "xyz:GOLD", FundingAPR: 0.12},
		{Ticker: "NVDA", Coin: "xyz:NVDA", FundingAPR: 0.45},
		{Ticker: "TSLA", Coin: "xyz:TSLA", FundingAPR: 0.30},
	} {
		require.NoError(t, repo.Upsert(s))
	}

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"NVDA", "TSLA", "GOLD"}, []string{all[0].Ticker, all[1].Ticker, all[2].Ticker})
}

func TestOrderBookBidDepth(t *testing.T) {
	book := OrderBook{
		Bids: []BookLevel{{Px: 100, Sz: 2}, {Px: 99.5, Sz: 4}},
		Asks: []BookLevel{{Px: 100.5, Sz: 1}},
	}
	assert.InDelta(t, 100*2+99.5*4, book.BidDepth(), 1e-9)
	assert.Zero(t, OrderBook{}.BidDepth())
}
