package config

// HedgeMap maps a perp coin on the TradFi DEX to the equity/ETF hedge symbol
// used for delta-neutral pairing. Only coins with a mapping can receive
// allocation. The map is curated by hand.
var HedgeMap = map[string]string{
	// Direct equities
	"xyz:AAPL": "AAPL", "xyz:AMD": "AMD", "xyz:AMZN": "AMZN",
	"xyz:BABA": "BABA", "xyz:COIN": "COIN", "xyz:COST": "COST",
	"xyz:CRCL": "CRCL", "xyz:CRWV": "CRWV", "xyz:GME": "GME",
	"xyz:GOOGL": "GOOGL", "xyz:HOOD": "HOOD", "xyz:INTC": "INTC",
	"xyz:LLY": "LLY", "xyz:META": "META", "xyz:MSFT": "MSFT",
	"xyz:MSTR": "MSTR", "xyz:MU": "MU", "xyz:NFLX": "NFLX",
	"xyz:NVDA": "NVDA", "xyz:ORCL": "ORCL", "xyz:PLTR": "PLTR",
	"xyz:RIVN": "RIVN", "xyz:SNDK": "SNDK",
	"xyz:TSLA": "TSLA", "xyz:TSM": "TSM", "xyz:URNM": "URNM",
	// Commodity -> ETF proxies
	"xyz:GOLD": "GLD", "xyz:SILVER": "SLV", "xyz:COPPER": "CPER",
	"xyz:PLATINUM": "PPLT", "xyz:PALLADIUM": "PALL",
	"xyz:URANIUM": "URA", "xyz:NATGAS": "UNG", "xyz:CL": "USO",
	// Index -> ETF proxies
	"xyz:XYZ100": "SPY",
}

// NonStockCoins lists coins whose hedge is a commodity or index ETF rather
// than an individual equity. Excluded when StockOnlyMode is enabled.
var NonStockCoins = map[string]bool{
	"xyz:GOLD": true, "xyz:SILVER": true, "xyz:COPPER": true,
	"xyz:PLATINUM": true, "xyz:PALLADIUM": true,
	"xyz:URANIUM": true, "xyz:NATGAS": true, "xyz:CL": true,
	"xyz:XYZ100": true,
}
