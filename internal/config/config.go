// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Single user input.
const DefaultBudget = 640_000.0

// Risk parameters.
const (
	CollateralFraction = 0.35   // 15% adverse + 10% maint + 10% buffer
	EmergencyFloor     = 50_000 // minimum emergency reserve
	EmergencyPct       = 0.08   // EMERGENCY = max(FLOOR, 0.08*B), clamped to B
	OpsReserve         = 5_000  // kept inside the treasury bucket
)

// Multi-asset portfolio limits.
const (
	MaxNames          = 6
	MaxConcentration  = 0.50 // no single asset > 50% of H_max
	AllocationDustUSD = 100  // skip allocations below this (noise floor)
)

// Soft caps.
const (
	OICapFraction     = 0.05   // 5% of OI_USD
	VolumeCapFraction = 0.10   // 10% of 24h volume
	MaxImpactPct      = 0.0025 // 0.25% max slippage from L2 book walk
)

// Hard gate: market must support at least this leverage.
const MinMaxLeverage = 10

// Dual EMA over 8-hour epochs.
const (
	EMA3DEpochs               = 9  // 3 days x 3 eight-hour epochs
	EMA7DEpochs               = 21 // 7 days x 3 eight-hour epochs
	SeasonalityLookbackEpochs = 84 // 28 days x 3 epochs
	SeasonalityMinSamples     = 3  // per weekday/weekend side
)

// Forecast blend weights.
const (
	WeekdayW3D = 0.70
	WeekdayW7D = 0.30
	WeekendW3D = 0.45
	WeekendW7D = 0.55
)

// Fees and drag.
const (
	TakerFeePct       = 0.00045   // 4.5 bps, conservative tier-0
	RebalancesPerYear = 365.0 / 7 // one round trip per week
)

// Treasury yield and insurance defaults, both APR percentages.
const (
	DefaultTreasuryAPR        = 3.50
	DefaultInsuranceBudgetPct = 1.50
)

// Deep-scan cohort bounds.
const (
	MaxDeepScan     = 30
	MaxDeepScanHard = 50
)

// Rebalance decision.
const (
	RebalanceHorizonDays    = 7
	RebalanceCostMultiplier = 1.5
	RebalanceFrictionBps    = 5
	RebalanceMinGainUSD     = 1.0
	RebalanceNoiseFloorUSD  = 100 // per-coin deltas below this are ignored
)

// NYSE core session, Eastern Time.
const (
	NYSEOpenHour    = 9
	NYSEOpenMinute  = 30
	NYSECloseHour   = 16
	NYSECloseMinute = 0
)

// Alert policy.
const (
	OpportunityDedupHours    = 6
	CriticalResendMinutes    = 15
	FundingHurdleAPRPoints   = 20.0
	FundingApproachAPRPoints = 10.0
)

// Config holds application configuration
type Config struct {
	DataDir           string // base directory for the database (always absolute)
	Port              int
	LogLevel          string
	DevMode           bool
	InfoURL           string // Hyperliquid /info endpoint
	TradFiDex         string // DEX identifier for the TradFi perp universe
	NasdaqListedURL   string
	OtherListedURL    string
	PushoverAppToken  string
	PushoverUserKey   string
	DeepScanWorkers   int
	RefreshSchedule   string // cron spec for the market refresh job
	DeepScanSchedule  string // cron spec for the deep EMA refresh job
	StockOnlyMode     bool   // when true, only equity perps are eligible
	DisableScheduling bool   // serve the API without background jobs (tests, dry runs)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ARBITER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("ARBITER_PORT", 8090),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		InfoURL:           getEnv("HL_INFO_URL", "https://api.hyperliquid.xyz/info"),
		TradFiDex:         getEnv("HL_TRADFI_DEX", "xyz"),
		NasdaqListedURL:   getEnv("NASDAQ_LISTED_URL", "https://ftp.nasdaqtrader.com/dynamic/SymDir/nasdaqlisted.txt"),
		OtherListedURL:    getEnv("OTHER_LISTED_URL", "https://ftp.nasdaqtrader.com/dynamic/SymDir/otherlisted.txt"),
		PushoverAppToken:  getEnv("PUSHOVER_APP_TOKEN", ""),
		PushoverUserKey:   getEnv("PUSHOVER_USER_KEY", ""),
		DeepScanWorkers:   getEnvAsInt("DEEP_SCAN_WORKERS", 4),
		RefreshSchedule:   getEnv("REFRESH_SCHEDULE", "@every 60s"),
		DeepScanSchedule:  getEnv("DEEP_SCAN_SCHEDULE", "@every 10m"),
		StockOnlyMode:     getEnvAsBool("STOCK_ONLY_MODE", true),
		DisableScheduling: getEnvAsBool("DISABLE_SCHEDULING", false),
	}

	return cfg, nil
}

// DatabasePath returns the sqlite database file path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "arbiter.sqlite")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
