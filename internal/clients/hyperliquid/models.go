package hyperliquid

import (
	"strconv"
	"strings"

	"github.com/dkallos/arbiter/internal/modules/market"
)

// assetMeta is one universe entry from metaAndAssetCtxs.
type assetMeta struct {
	Name        string    `json:"name"` // venue coin id, e.g. "xyz:TSLA"
	MaxLeverage flexFloat `json:"maxLeverage"`
	Delisted    bool      `json:"isDelisted"`
}

// assetContext is the per-asset state zipped with the universe.
type assetContext struct {
	MarkPx       flexFloat `json:"markPx"`
	MidPx        flexFloat `json:"midPx"`
	Funding      flexFloat `json:"funding"` // hourly rate, decimal
	OpenInterest flexFloat `json:"openInterest"`
	DayNtlVlm    flexFloat `json:"dayNtlVlm"`
}

type bookLevel struct {
	Px flexFloat `json:"px"`
	Sz flexFloat `json:"sz"`
}

// flexFloat decodes venue numerics that arrive as JSON strings ("123.45"),
// bare numbers, or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// normalize combines one universe entry with its context into a snapshot.
// Nameless or delisted entries are dropped; a zero mark price is kept and
// filtered downstream when its caps come out zero.
func normalize(meta assetMeta, ctx assetContext) (market.Snapshot, bool) {
	if meta.Name == "" || meta.Delisted {
		return market.Snapshot{}, false
	}

	markPx := float64(ctx.MarkPx)
	fundingHourly := float64(ctx.Funding)
	oiBase := float64(ctx.OpenInterest)

	ticker := meta.Name
	if idx := strings.LastIndex(ticker, ":"); idx >= 0 {
		ticker = ticker[idx+1:]
	}

	maxLeverage := int(meta.MaxLeverage)
	if maxLeverage < 1 {
		maxLeverage = 1
	}

	return market.Snapshot{
		Coin:          meta.Name,
		Ticker:        ticker,
		MarkPx:        markPx,
		MidPx:         float64(ctx.MidPx),
		FundingHourly: fundingHourly,
		FundingAPR:    fundingHourly * 24 * 365, // decimal, 0.20 = 20%
		OIBase:        oiBase,
		OIUSD:         oiBase * markPx,
		Volume24h:     float64(ctx.DayNtlVlm),
		MaxLeverage:   maxLeverage,
	}, true
}

func toLevels(levels []bookLevel) []market.BookLevel {
	out := make([]market.BookLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, market.BookLevel{Px: float64(l.Px), Sz: float64(l.Sz)})
	}
	return out
}
