package scanner

// Candidate is a market that passed every hard gate, with computed caps and
// score. Values that land in the database are rounded at construction.
type Candidate struct {
	Coin            string  `json:"coin"`
	Ticker          string  `json:"ticker"`
	HedgeSymbol     string  `json:"hedge_symbol"`
	EMA3D           float64 `json:"ema_3d"`
	EMA7D           float64 `json:"ema_7d"`
	WeekendMult     float64 `json:"weekend_mult"`
	ForecastAPR     float64 `json:"forecast_apr"`
	Score           float64 `json:"score"`
	FeeDragAPR      float64 `json:"fee_drag_apr"`
	SlippageDragAPR float64 `json:"slippage_drag_apr"`
	CapOI           float64 `json:"cap_oi"`
	CapVol          float64 `json:"cap_vol"`
	CapImpact       float64 `json:"cap_impact"`
	OIUSD           float64 `json:"oi_usd"`
	Volume24h       float64 `json:"volume_24h"`
	MaxLeverage     int     `json:"max_leverage"`
	MarkPx          float64 `json:"mark_px"`
}

// Rejection records why a market fell out of the pipeline. Optional fields
// are nil when the stage that would fill them was never reached.
type Rejection struct {
	Coin        string   `json:"coin"`
	Ticker      string   `json:"ticker"`
	Reason      string   `json:"reason"`
	HedgeSymbol string   `json:"hedge_symbol,omitempty"`
	InstantAPR  *float64 `json:"instant_apr,omitempty"`
	ForecastAPR *float64 `json:"forecast_apr,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	CapFinal    *float64 `json:"cap_final,omitempty"`
	PreRank     *int     `json:"pre_rank,omitempty"`
}

// ScanResult is the full outcome of one scan cycle.
type ScanResult struct {
	Candidates       []Candidate `json:"candidates"`
	Rejected         []Rejection `json:"rejected"`
	IsTradingHours   bool        `json:"is_trading_hours"`
	DeepScanCohort   int         `json:"deep_scan_cohort"`
	PrefilteredCount int         `json:"prefiltered_count"`
}

func ptr[T any](v T) *T {
	return &v
}
