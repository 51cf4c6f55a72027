// Package common holds environment variable names and defaults shared across
// the trading core, kept out of internal/cfg so every package can reference
// a key name without importing the full configuration loader.
package common

// Default trading symbol, used when SYMBOLS is unset.
const (
	DefaultSymbol = "BTC/USDT:USDT"
)

// DefaultPerSymbolLeverage is the per-symbol leverage band applied when
// PER_SYMBOL_LEVERAGE is unset: BTC/ETH tolerate the highest leverage, the
// mid-cap pair SOL/BNB less, and the small-cap pair ADA/DOGE least.
var DefaultPerSymbolLeverage = map[string]int64{
	"BTC/USDT:USDT":  40,
	"ETH/USDT:USDT":  40,
	"SOL/USDT:USDT":  25,
	"BNB/USDT:USDT":  25,
	"ADA/USDT:USDT":  20,
	"DOGE/USDT:USDT": 20,
}

// Environment variable keys — exchange credentials and connectivity.
const (
	EnvBitunixAPIKey    = "BITUNIX_API_KEY"
	EnvBitunixSecretKey = "BITUNIX_SECRET_KEY"
	EnvForceLiveTrading = "FORCE_LIVE_TRADING"
	EnvSymbols          = "SYMBOLS"
	EnvBaseURL          = "BASE_URL"
	EnvDataPath         = "DATA_PATH"
	EnvDryRun           = "DRY_RUN"
	EnvMetricsPort      = "METRICS_PORT"
	EnvRESTTimeout      = "REST_TIMEOUT"
	EnvLeverage         = "LEVERAGE"
	EnvMarginMode       = "MARGIN_MODE"
	EnvMinLeverage      = "MIN_LEVERAGE"
	EnvPerSymbolLeverage = "PER_SYMBOL_LEVERAGE"
)

// Environment variable keys — position/risk limits.
const (
	EnvMaxPositionSize     = "MAX_POSITION_SIZE"
	EnvMaxPositionExposure = "MAX_POSITION_EXPOSURE"
	EnvMaxTotalExposure    = "MAX_TOTAL_EXPOSURE"
	EnvMaxPriceDistance    = "MAX_PRICE_DISTANCE"
	EnvMaxConsecLosses     = "MAX_CONSECUTIVE_LOSSES"
	EnvPositionCooldown    = "POSITION_COOLDOWN"
	EnvMaxDrawdownProtect  = "MAX_DRAWDOWN_PROTECTION"
)

// Environment variable keys — circuit breaker (daily-loss kill switch).
const (
	EnvStartingBalanceCHF = "STARTING_BALANCE_CHF"
	EnvMaxDailyLossCHF    = "MAX_DAILY_LOSS_CHF"
	EnvMaxDailyLossPct    = "MAX_DAILY_LOSS_PCT"
	EnvCircuitResetUTC    = "CIRCUIT_RESET_TIME_UTC"
	EnvFXRateUSDCHF       = "FX_RATE_USD_CHF"
)

// Environment variable keys — trading cycle and order execution.
const (
	EnvCycleIntervalSeconds  = "CYCLE_INTERVAL_SECONDS"
	EnvCycleAlignToInterval  = "CYCLE_ALIGN_TO_INTERVAL"
	EnvCycleMaxRetries       = "CYCLE_MAX_RETRIES"
	EnvCycleRetryDelay       = "CYCLE_RETRY_DELAY"
	EnvOrderExecutionTimeout = "ORDER_EXECUTION_TIMEOUT"
	EnvOrderStatusInterval   = "ORDER_STATUS_CHECK_INTERVAL"
	EnvMaxOrderRetries       = "MAX_ORDER_RETRIES"
)

// Environment variable keys — stop-loss supervisor layers.
const (
	EnvStopLossExchangePct    = "STOP_LOSS_EXCHANGE_PCT"
	EnvStopLossMonitorPct     = "STOP_LOSS_MONITOR_PCT"
	EnvStopLossMonitorPeriod  = "STOP_LOSS_MONITOR_PERIOD"
	EnvStopLossEmergencyPct   = "STOP_LOSS_EMERGENCY_PCT"
	EnvStopLossEmergencyCheck = "STOP_LOSS_EMERGENCY_CHECK_PERIOD"
)

// Environment variable keys — reconciliation.
const (
	EnvReconcileInterval  = "RECONCILE_INTERVAL"
	EnvReconcileThreshold = "RECONCILE_DISCREPANCY_THRESHOLD"
)

// Environment variable keys — paper trading simulator.
const (
	EnvPaperTrading      = "PAPER_TRADING"
	EnvPaperFeeRate      = "PAPER_FEE_RATE"
	EnvPaperSlippagePct  = "PAPER_SLIPPAGE_PCT"
	EnvPaperMinLatencyMS = "PAPER_MIN_LATENCY_MS"
	EnvPaperMaxLatencyMS = "PAPER_MAX_LATENCY_MS"
)

// Defaults.
const (
	DefaultBaseURL    = "https://api.bitunix.com"
	DefaultMetricsPort = 8080
	DefaultLeverage    = 20
	DefaultMarginMode  = "ISOLATION"
	DefaultMinLeverage = 5

	DefaultMaxPositionSize     = 0.20
	DefaultMaxPositionExposure = 0.1
	DefaultMaxTotalExposure    = 0.80
	DefaultMaxPriceDistance    = 3.0
	DefaultMaxConsecLosses     = 3
	DefaultPositionCooldownSec = 30
	DefaultMaxDrawdownProtect  = 0.1

	DefaultStartingBalanceCHF = 2626.96
	DefaultMaxDailyLossCHF    = -183.89
	DefaultMaxDailyLossPct    = -0.07
	DefaultCircuitResetUTC    = "00:00"
	DefaultFXRateUSDCHF       = 1.10

	DefaultCycleIntervalSeconds = 180
	DefaultCycleMaxRetries      = 3
	DefaultCycleRetryDelaySec   = 5

	DefaultOrderExecutionTimeout  = "30s"
	DefaultOrderStatusInterval    = "5s"
	DefaultMaxOrderRetries        = 3

	DefaultStopLossExchangePct    = 0.02
	DefaultStopLossMonitorPct     = 0.03
	DefaultStopLossMonitorPeriod  = "5s"
	DefaultStopLossEmergencyPct   = 0.08
	DefaultStopLossEmergencyCheck = "2s"

	DefaultReconcileIntervalSec   = 300
	DefaultReconcileThreshold     = 0.00001

	DefaultPaperFeeRate      = 0.0006
	DefaultPaperSlippagePct  = 0.0005
	DefaultPaperMinLatencyMS = 50
	DefaultPaperMaxLatencyMS = 400
)

// Common error messages.
const (
	ErrMsgAPIKeyRequired           = "API key and secret are required"
	ErrMsgBaseURLRequired          = "baseURL is required"
	ErrMsgSymbolRequired           = "at least one trading symbol is required"
	ErrMsgForceLiveTradingRequired = "live trading requires FORCE_LIVE_TRADING=true environment variable"
)

// Validation bounds.
const (
	MaxPositionSizeLimit = 1.0
	MaxDailyLossLimit    = 1.0
	MaxPositionSizeLive  = 0.1
	MaxDailyLossLive     = 0.05
	MinMetricsPort       = 1024
	MaxMetricsPort       = 65535
)
