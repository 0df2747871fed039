package allocation

// Position is one row of the target portfolio. The hedge long and the perp
// short both carry AllocNotional.
type Position struct {
	Coin            string  `json:"coin"`
	Ticker          string  `json:"ticker"`
	HedgeSymbol     string  `json:"hedge_symbol"`
	Rank            int     `json:"rank"`
	AllocNotional   float64 `json:"alloc_notional"`
	AllocPct        float64 `json:"alloc_pct"` // % of total hedge notional
	CapOI           float64 `json:"cap_oi"`
	CapVol          float64 `json:"cap_vol"`
	CapImpact       float64 `json:"cap_impact"`
	CapConc         float64 `json:"cap_conc"`
	CapFinal        float64 `json:"cap_final"`
	BindingCap      string  `json:"binding_cap"`
	ForecastAPR     float64 `json:"forecast_apr"`
	NetAPR          float64 `json:"net_apr"`
	SlippageDragAPR float64 `json:"slippage_drag_apr"`
	FeeDragAPR      float64 `json:"fee_drag_apr"`
	Score           float64 `json:"score"`
	EMA3D           float64 `json:"ema_3d"`
	EMA7D           float64 `json:"ema_7d"`
	WeekendMult     float64 `json:"weekend_mult"`
}

// Portfolio is the complete allocation target for one cycle.
type Portfolio struct {
	Positions          []Position `json:"positions"`
	Budget             float64    `json:"budget"`
	Emergency          float64    `json:"emergency"`
	Deployable         float64    `json:"deployable"`
	HMax               float64    `json:"h_max"`
	TotalHedgeNotional float64    `json:"total_hedge_notional"` // H
	PerpCollateral     float64    `json:"perp_collateral"`      // 0.35 * H
	Treasury           float64    `json:"treasury"`             // deployable - H - collateral
	TreasuryTotal      float64    `json:"treasury_total"`       // emergency + ops + treasury
	PortfolioNetAPR    float64    `json:"portfolio_net_apr"`
	PortfolioUSDDay    float64    `json:"portfolio_usd_day"`
	NumPositions       int        `json:"num_positions"`
}
