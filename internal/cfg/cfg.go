// Package cfg provides configuration management for the trading core. It
// supports loading configuration from both YAML files and environment
// variables, with environment variables taking precedence over YAML
// settings. All configuration is validated at load time; invalid values
// abort startup rather than falling back to silently-unsafe defaults for
// anything that controls risk or live trading.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bitunix-bot/coretrader/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings contains all configuration parameters for the trading core.
type Settings struct {
	// Exchange credentials and connectivity.
	Key        string
	Secret     string
	BaseURL    string
	RESTTimeout time.Duration
	DataPath   string

	// Trading configuration.
	Symbols    []string
	DryRun     bool
	Leverage   int
	MarginMode string

	// Position/risk limits (RiskGate, §4.3).
	MaxPositionSize       float64
	MaxPositionExposure   float64
	MaxTotalExposure      float64
	MaxPriceDistance      float64
	MaxConsecutiveLosses  int
	PositionCooldown      time.Duration
	MaxDrawdownProtection float64
	SymbolConfigs         map[string]SymbolConfig
	MinLeverage           int64
	PerSymbolLeverage     map[string]int64

	// CircuitBreaker (daily-loss kill switch, §4.6).
	StartingBalanceCHF float64
	MaxDailyLossCHF    float64
	MaxDailyLossPct    float64
	CircuitResetUTC    string // "HH:MM"
	FXRateUSDCHF       float64

	// Trading cycle (ClockDriver/Scheduler, §4.1).
	CycleInterval      time.Duration
	CycleAlignInterval bool
	CycleMaxRetries    int
	CycleRetryDelay    time.Duration

	// Order execution (TradeExecutor, §4.4).
	OrderExecutionTimeout time.Duration
	OrderStatusInterval   time.Duration
	MaxOrderRetries       int

	// Stop-loss supervisor (§4.5).
	StopLossExchangePct    float64
	StopLossMonitorPct     float64
	StopLossMonitorPeriod  time.Duration
	StopLossEmergencyPct   float64
	StopLossEmergencyCheck time.Duration

	// Reconciliation (§4.7).
	ReconcileInterval  time.Duration
	ReconcileThreshold float64

	// Paper trading (§4.8).
	PaperTrading      bool
	PaperFeeRate      float64
	PaperSlippagePct  float64
	PaperMinLatencyMS int
	PaperMaxLatencyMS int

	// System.
	MetricsPort int
}

// SymbolConfig contains per-symbol configuration overrides.
type SymbolConfig struct {
	MaxPositionSize     float64 `yaml:"maxPositionSize"`
	MaxPositionExposure float64 `yaml:"maxPositionExposure"`
	MaxPriceDistance    float64 `yaml:"maxPriceDistance"`
}

// ConfigFile represents the structure of the YAML configuration file.
type ConfigFile struct {
	API struct {
		Key     string `yaml:"key"`
		Secret  string `yaml:"secret"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"api"`

	Trading struct {
		Symbols    []string `yaml:"symbols"`
		DryRun     bool     `yaml:"dryRun"`
		Leverage   int      `yaml:"leverage"`
		MarginMode string   `yaml:"marginMode"`
	} `yaml:"trading"`

	Risk struct {
		MaxPositionSize       float64 `yaml:"maxPositionSize"`
		MaxPositionExposure   float64 `yaml:"maxPositionExposure"`
		MaxTotalExposure      float64 `yaml:"maxTotalExposure"`
		MaxPriceDistance      float64 `yaml:"maxPriceDistance"`
		MaxConsecutiveLosses  int     `yaml:"maxConsecutiveLosses"`
		PositionCooldown      string  `yaml:"positionCooldown"`
		MaxDrawdownProtection float64 `yaml:"maxDrawdownProtection"`
	} `yaml:"risk"`

	SymbolConfig map[string]SymbolConfig `yaml:"symbolConfig"`

	PerSymbolLeverage map[string]int64 `yaml:"perSymbolLeverage"`

	CircuitBreaker struct {
		StartingBalanceCHF float64 `yaml:"startingBalanceChf"`
		MaxDailyLossCHF    float64 `yaml:"maxDailyLossChf"`
		MaxDailyLossPct    float64 `yaml:"maxDailyLossPct"`
		ResetTimeUTC       string  `yaml:"resetTimeUtc"`
		FXRateUSDCHF       float64 `yaml:"fxRateUsdChf"`
	} `yaml:"circuitBreaker"`

	Cycle struct {
		IntervalSeconds int    `yaml:"intervalSeconds"`
		AlignToInterval bool   `yaml:"alignToInterval"`
		MaxRetries      int    `yaml:"maxRetries"`
		RetryDelay      string `yaml:"retryDelay"`
	} `yaml:"cycle"`

	OrderExecution struct {
		Timeout             string `yaml:"timeout"`
		StatusCheckInterval string `yaml:"statusCheckInterval"`
		MaxRetries          int    `yaml:"maxRetries"`
	} `yaml:"orderExecution"`

	StopLoss struct {
		ExchangePct           float64 `yaml:"exchangePct"`
		MonitorPct            float64 `yaml:"monitorPct"`
		MonitorPeriod         string  `yaml:"monitorPeriod"`
		EmergencyPct          float64 `yaml:"emergencyPct"`
		EmergencyCheckPeriod  string  `yaml:"emergencyCheckPeriod"`
	} `yaml:"stopLoss"`

	Reconcile struct {
		Interval             string  `yaml:"interval"`
		DiscrepancyThreshold float64 `yaml:"discrepancyThreshold"`
	} `yaml:"reconcile"`

	Paper struct {
		Enabled      bool    `yaml:"enabled"`
		FeeRate      float64 `yaml:"feeRate"`
		SlippagePct  float64 `yaml:"slippagePct"`
		MinLatencyMS int     `yaml:"minLatencyMs"`
		MaxLatencyMS int     `yaml:"maxLatencyMs"`
	} `yaml:"paper"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"system"`
}

// Load loads configuration from either a YAML file or environment variables.
// It first checks for a CONFIG_FILE environment variable to load from YAML,
// otherwise falls back to loading from environment variables.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	key := getEnvOrDefault(common.EnvBitunixAPIKey, config.API.Key)
	secret := getEnvOrDefault(common.EnvBitunixSecretKey, config.API.Secret)
	if key == "" || secret == "" {
		return Settings{}, fmt.Errorf(common.ErrMsgAPIKeyRequired)
	}

	s := Settings{
		Key:         key,
		Secret:      secret,
		BaseURL:     getEnvOrDefault(common.EnvBaseURL, config.API.BaseURL),
		RESTTimeout: parseDurationOrDefault(config.System.RESTTimeout, 5*time.Second),
		DataPath:    getEnvOrDefault(common.EnvDataPath, config.System.DataPath),

		Symbols:    getSymbolsFromEnvOrConfig(config.Trading.Symbols),
		DryRun:     getBoolFromEnvOrConfig(common.EnvDryRun, config.Trading.DryRun),
		Leverage:   getIntFromEnvOrConfigWithDefault(common.EnvLeverage, config.Trading.Leverage, common.DefaultLeverage),
		MarginMode: getEnvOrDefault(common.EnvMarginMode, orDefault(config.Trading.MarginMode, common.DefaultMarginMode)),

		MaxPositionSize:       getFloatFromEnvOrConfigWithDefault(common.EnvMaxPositionSize, config.Risk.MaxPositionSize, common.DefaultMaxPositionSize),
		MaxPositionExposure:   getFloatFromEnvOrConfigWithDefault(common.EnvMaxPositionExposure, config.Risk.MaxPositionExposure, common.DefaultMaxPositionExposure),
		MaxTotalExposure:      getFloatFromEnvOrConfigWithDefault(common.EnvMaxTotalExposure, config.Risk.MaxTotalExposure, common.DefaultMaxTotalExposure),
		MaxPriceDistance:      getFloatFromEnvOrConfigWithDefault(common.EnvMaxPriceDistance, config.Risk.MaxPriceDistance, common.DefaultMaxPriceDistance),
		MaxConsecutiveLosses:  getIntFromEnvOrConfigWithDefault(common.EnvMaxConsecLosses, config.Risk.MaxConsecutiveLosses, common.DefaultMaxConsecLosses),
		PositionCooldown:      getDurationOrDefault(common.EnvPositionCooldown, parseDurationOrDefault(config.Risk.PositionCooldown, common.DefaultPositionCooldownSec*time.Second)),
		MaxDrawdownProtection: getFloatFromEnvOrConfigWithDefault(common.EnvMaxDrawdownProtect, config.Risk.MaxDrawdownProtection, common.DefaultMaxDrawdownProtect),
		SymbolConfigs:         config.SymbolConfig,
		MinLeverage:           int64(getIntFromEnvOrConfigWithDefault(common.EnvMinLeverage, 0, common.DefaultMinLeverage)),
		PerSymbolLeverage:     getPerSymbolLeverageFromEnvOrConfig(config.PerSymbolLeverage),

		StartingBalanceCHF: getFloatFromEnvOrConfigWithDefault(common.EnvStartingBalanceCHF, config.CircuitBreaker.StartingBalanceCHF, common.DefaultStartingBalanceCHF),
		MaxDailyLossCHF:    getFloatFromEnvOrConfigWithDefault(common.EnvMaxDailyLossCHF, config.CircuitBreaker.MaxDailyLossCHF, common.DefaultMaxDailyLossCHF),
		MaxDailyLossPct:    getFloatFromEnvOrConfigWithDefault(common.EnvMaxDailyLossPct, config.CircuitBreaker.MaxDailyLossPct, common.DefaultMaxDailyLossPct),
		CircuitResetUTC:    getEnvOrDefault(common.EnvCircuitResetUTC, orDefault(config.CircuitBreaker.ResetTimeUTC, common.DefaultCircuitResetUTC)),
		FXRateUSDCHF:       getFloatFromEnvOrConfigWithDefault(common.EnvFXRateUSDCHF, config.CircuitBreaker.FXRateUSDCHF, common.DefaultFXRateUSDCHF),

		CycleInterval:      time.Duration(getIntFromEnvOrConfigWithDefault(common.EnvCycleIntervalSeconds, config.Cycle.IntervalSeconds, common.DefaultCycleIntervalSeconds)) * time.Second,
		CycleAlignInterval: getBoolFromEnvOrConfig(common.EnvCycleAlignToInterval, config.Cycle.AlignToInterval),
		CycleMaxRetries:    getIntFromEnvOrConfigWithDefault(common.EnvCycleMaxRetries, config.Cycle.MaxRetries, common.DefaultCycleMaxRetries),
		CycleRetryDelay:    getDurationOrDefault(common.EnvCycleRetryDelay, parseDurationOrDefault(config.Cycle.RetryDelay, common.DefaultCycleRetryDelaySec*time.Second)),

		OrderExecutionTimeout: getDurationOrDefault(common.EnvOrderExecutionTimeout, parseDurationOrDefault(config.OrderExecution.Timeout, mustParseDuration(common.DefaultOrderExecutionTimeout))),
		OrderStatusInterval:   getDurationOrDefault(common.EnvOrderStatusInterval, parseDurationOrDefault(config.OrderExecution.StatusCheckInterval, mustParseDuration(common.DefaultOrderStatusInterval))),
		MaxOrderRetries:       getIntFromEnvOrConfigWithDefault(common.EnvMaxOrderRetries, config.OrderExecution.MaxRetries, common.DefaultMaxOrderRetries),

		StopLossExchangePct:    getFloatFromEnvOrConfigWithDefault(common.EnvStopLossExchangePct, config.StopLoss.ExchangePct, common.DefaultStopLossExchangePct),
		StopLossMonitorPct:     getFloatFromEnvOrConfigWithDefault(common.EnvStopLossMonitorPct, config.StopLoss.MonitorPct, common.DefaultStopLossMonitorPct),
		StopLossMonitorPeriod:  getDurationOrDefault(common.EnvStopLossMonitorPeriod, parseDurationOrDefault(config.StopLoss.MonitorPeriod, mustParseDuration(common.DefaultStopLossMonitorPeriod))),
		StopLossEmergencyPct:   getFloatFromEnvOrConfigWithDefault(common.EnvStopLossEmergencyPct, config.StopLoss.EmergencyPct, common.DefaultStopLossEmergencyPct),
		StopLossEmergencyCheck: getDurationOrDefault(common.EnvStopLossEmergencyCheck, parseDurationOrDefault(config.StopLoss.EmergencyCheckPeriod, mustParseDuration(common.DefaultStopLossEmergencyCheck))),

		ReconcileInterval:  getDurationOrDefault(common.EnvReconcileInterval, parseDurationOrDefault(config.Reconcile.Interval, common.DefaultReconcileIntervalSec*time.Second)),
		ReconcileThreshold: getFloatFromEnvOrConfigWithDefault(common.EnvReconcileThreshold, config.Reconcile.DiscrepancyThreshold, common.DefaultReconcileThreshold),

		PaperTrading:      getBoolFromEnvOrConfig(common.EnvPaperTrading, config.Paper.Enabled),
		PaperFeeRate:      getFloatFromEnvOrConfigWithDefault(common.EnvPaperFeeRate, config.Paper.FeeRate, common.DefaultPaperFeeRate),
		PaperSlippagePct:  getFloatFromEnvOrConfigWithDefault(common.EnvPaperSlippagePct, config.Paper.SlippagePct, common.DefaultPaperSlippagePct),
		PaperMinLatencyMS: getIntFromEnvOrConfigWithDefault(common.EnvPaperMinLatencyMS, config.Paper.MinLatencyMS, common.DefaultPaperMinLatencyMS),
		PaperMaxLatencyMS: getIntFromEnvOrConfigWithDefault(common.EnvPaperMaxLatencyMS, config.Paper.MaxLatencyMS, common.DefaultPaperMaxLatencyMS),

		MetricsPort: getIntFromEnvOrConfigWithDefault(common.EnvMetricsPort, config.System.MetricsPort, common.DefaultMetricsPort),
	}

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func loadFromEnv() (Settings, error) {
	key, err := getEnvRequired(common.EnvBitunixAPIKey)
	if err != nil {
		return Settings{}, err
	}
	secret, err := getEnvRequired(common.EnvBitunixSecretKey)
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Key:         key,
		Secret:      secret,
		BaseURL:     getEnvOrDefault(common.EnvBaseURL, common.DefaultBaseURL),
		RESTTimeout: getDurationOrDefault(common.EnvRESTTimeout, 5*time.Second),
		DataPath:    os.Getenv(common.EnvDataPath),

		Symbols:    splitOrDefault(os.Getenv(common.EnvSymbols), []string{common.DefaultSymbol}),
		DryRun:     getBoolOrDefault(common.EnvDryRun, false),
		Leverage:   getIntOrDefault(common.EnvLeverage, common.DefaultLeverage),
		MarginMode: getEnvOrDefault(common.EnvMarginMode, common.DefaultMarginMode),

		MaxPositionSize:       getFloatOrDefault(common.EnvMaxPositionSize, common.DefaultMaxPositionSize),
		MaxPositionExposure:   getFloatOrDefault(common.EnvMaxPositionExposure, common.DefaultMaxPositionExposure),
		MaxTotalExposure:      getFloatOrDefault(common.EnvMaxTotalExposure, common.DefaultMaxTotalExposure),
		MaxPriceDistance:      getFloatOrDefault(common.EnvMaxPriceDistance, common.DefaultMaxPriceDistance),
		MaxConsecutiveLosses:  getIntOrDefault(common.EnvMaxConsecLosses, common.DefaultMaxConsecLosses),
		PositionCooldown:      getDurationOrDefault(common.EnvPositionCooldown, common.DefaultPositionCooldownSec*time.Second),
		MaxDrawdownProtection: getFloatOrDefault(common.EnvMaxDrawdownProtect, common.DefaultMaxDrawdownProtect),
		SymbolConfigs:         make(map[string]SymbolConfig),
		MinLeverage:           int64(getIntOrDefault(common.EnvMinLeverage, common.DefaultMinLeverage)),
		PerSymbolLeverage:     getPerSymbolLeverageFromEnvOrConfig(nil),

		StartingBalanceCHF: getFloatOrDefault(common.EnvStartingBalanceCHF, common.DefaultStartingBalanceCHF),
		MaxDailyLossCHF:    getFloatOrDefault(common.EnvMaxDailyLossCHF, common.DefaultMaxDailyLossCHF),
		MaxDailyLossPct:    getFloatOrDefault(common.EnvMaxDailyLossPct, common.DefaultMaxDailyLossPct),
		CircuitResetUTC:    getEnvOrDefault(common.EnvCircuitResetUTC, common.DefaultCircuitResetUTC),
		FXRateUSDCHF:       getFloatOrDefault(common.EnvFXRateUSDCHF, common.DefaultFXRateUSDCHF),

		CycleInterval:      time.Duration(getIntOrDefault(common.EnvCycleIntervalSeconds, common.DefaultCycleIntervalSeconds)) * time.Second,
		CycleAlignInterval: getBoolOrDefault(common.EnvCycleAlignToInterval, true),
		CycleMaxRetries:    getIntOrDefault(common.EnvCycleMaxRetries, common.DefaultCycleMaxRetries),
		CycleRetryDelay:    getDurationOrDefault(common.EnvCycleRetryDelay, common.DefaultCycleRetryDelaySec*time.Second),

		OrderExecutionTimeout: getDurationOrDefault(common.EnvOrderExecutionTimeout, mustParseDuration(common.DefaultOrderExecutionTimeout)),
		OrderStatusInterval:   getDurationOrDefault(common.EnvOrderStatusInterval, mustParseDuration(common.DefaultOrderStatusInterval)),
		MaxOrderRetries:       getIntOrDefault(common.EnvMaxOrderRetries, common.DefaultMaxOrderRetries),

		StopLossExchangePct:    getFloatOrDefault(common.EnvStopLossExchangePct, common.DefaultStopLossExchangePct),
		StopLossMonitorPct:     getFloatOrDefault(common.EnvStopLossMonitorPct, common.DefaultStopLossMonitorPct),
		StopLossMonitorPeriod:  getDurationOrDefault(common.EnvStopLossMonitorPeriod, mustParseDuration(common.DefaultStopLossMonitorPeriod)),
		StopLossEmergencyPct:   getFloatOrDefault(common.EnvStopLossEmergencyPct, common.DefaultStopLossEmergencyPct),
		StopLossEmergencyCheck: getDurationOrDefault(common.EnvStopLossEmergencyCheck, mustParseDuration(common.DefaultStopLossEmergencyCheck)),

		ReconcileInterval:  getDurationOrDefault(common.EnvReconcileInterval, common.DefaultReconcileIntervalSec*time.Second),
		ReconcileThreshold: getFloatOrDefault(common.EnvReconcileThreshold, common.DefaultReconcileThreshold),

		PaperTrading:      getBoolOrDefault(common.EnvPaperTrading, true),
		PaperFeeRate:      getFloatOrDefault(common.EnvPaperFeeRate, common.DefaultPaperFeeRate),
		PaperSlippagePct:  getFloatOrDefault(common.EnvPaperSlippagePct, common.DefaultPaperSlippagePct),
		PaperMinLatencyMS: getIntOrDefault(common.EnvPaperMinLatencyMS, common.DefaultPaperMinLatencyMS),
		PaperMaxLatencyMS: getIntOrDefault(common.EnvPaperMaxLatencyMS, common.DefaultPaperMaxLatencyMS),

		MetricsPort: getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
	}

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

// GetSymbolConfig returns configuration for a specific symbol, with fallback
// to global configuration values.
func (s *Settings) GetSymbolConfig(symbol string) SymbolConfig {
	if config, exists := s.SymbolConfigs[symbol]; exists {
		return config
	}
	return SymbolConfig{
		MaxPositionSize:     s.MaxPositionSize,
		MaxPositionExposure: s.MaxPositionExposure,
		MaxPriceDistance:    s.MaxPriceDistance,
	}
}

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getSymbolsFromEnvOrConfig(configSymbols []string) []string {
	if env := os.Getenv(common.EnvSymbols); env != "" {
		return strings.Split(env, ",")
	}
	if len(configSymbols) > 0 {
		return configSymbols
	}
	return []string{common.DefaultSymbol}
}

// getPerSymbolLeverageFromEnvOrConfig parses PER_SYMBOL_LEVERAGE
// ("BTC/USDT:USDT=40,ETH/USDT:USDT=40,...") when set, otherwise falls back
// to the YAML-supplied map, otherwise to common.DefaultPerSymbolLeverage.
func getPerSymbolLeverageFromEnvOrConfig(configValue map[string]int64) map[string]int64 {
	if env := os.Getenv(common.EnvPerSymbolLeverage); env != "" {
		parsed := make(map[string]int64)
		for _, pair := range strings.Split(env, ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) != 2 {
				continue
			}
			lev, err := strconv.ParseInt(strings.TrimSpace(kv[1]), 10, 64)
			if err != nil {
				continue
			}
			parsed[strings.TrimSpace(kv[0])] = lev
		}
		if len(parsed) > 0 {
			return parsed
		}
	}
	if len(configValue) > 0 {
		return configValue
	}
	return common.DefaultPerSymbolLeverage
}

func getIntFromEnvOrConfigWithDefault(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfigWithDefault(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values.
func validateSettings(s *Settings) error {
	if err := validateCredentials(s); err != nil {
		return err
	}
	if err := validateURLs(s); err != nil {
		return err
	}
	if err := validateTradingParameters(s); err != nil {
		return err
	}
	if err := validateLiveTradingRestrictions(s); err != nil {
		return err
	}
	if err := validateSystemParameters(s); err != nil {
		return err
	}
	if err := validateSymbolConfigs(s); err != nil {
		return err
	}
	if err := validateCircuitBreakerSettings(s); err != nil {
		return err
	}
	if err := validateOrderExecutionSettings(s); err != nil {
		return err
	}
	if err := validateStopLossSettings(s); err != nil {
		return err
	}
	return nil
}

func validateCredentials(s *Settings) error {
	if s.Key == "" || s.Secret == "" {
		return fmt.Errorf(common.ErrMsgAPIKeyRequired)
	}
	return nil
}

func validateURLs(s *Settings) error {
	if s.BaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	return nil
}

func validateTradingParameters(s *Settings) error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf(common.ErrMsgSymbolRequired)
	}
	if s.MaxPositionSize <= 0 || s.MaxPositionSize > common.MaxPositionSizeLimit {
		return fmt.Errorf("maxPositionSize must be between 0 and %g", common.MaxPositionSizeLimit)
	}
	if s.MaxPositionExposure <= 0 || s.MaxPositionExposure > common.MaxPositionSizeLimit {
		return fmt.Errorf("maxPositionExposure must be between 0 and %g", common.MaxPositionSizeLimit)
	}
	if s.MaxTotalExposure <= 0 || s.MaxTotalExposure > common.MaxPositionSizeLimit {
		return fmt.Errorf("maxTotalExposure must be between 0 and %g", common.MaxPositionSizeLimit)
	}
	if s.MaxDrawdownProtection <= 0 || s.MaxDrawdownProtection > common.MaxDailyLossLimit {
		return fmt.Errorf("maxDrawdownProtection must be between 0 and %g", common.MaxDailyLossLimit)
	}
	if s.MaxPriceDistance <= 0 {
		return fmt.Errorf("maxPriceDistance must be positive")
	}
	if s.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("maxConsecutiveLosses must be positive")
	}
	if s.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive")
	}
	return nil
}

func validateLiveTradingRestrictions(s *Settings) error {
	if !s.DryRun && !s.PaperTrading {
		if os.Getenv(common.EnvForceLiveTrading) != "true" {
			return fmt.Errorf(common.ErrMsgForceLiveTradingRequired)
		}
		if s.MaxPositionSize > common.MaxPositionSizeLive {
			return fmt.Errorf("maxPositionSize too high for live trading (max %g%%)", common.MaxPositionSizeLive*100)
		}
	}
	return nil
}

func validateSystemParameters(s *Settings) error {
	if s.RESTTimeout < 1*time.Second || s.RESTTimeout > 1*time.Minute {
		return fmt.Errorf("restTimeout must be between 1s and 1m")
	}
	if s.MetricsPort < common.MinMetricsPort || s.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metricsPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if s.CycleInterval < 1*time.Second {
		return fmt.Errorf("cycleInterval must be at least 1s")
	}
	return nil
}

func validateSymbolConfigs(s *Settings) error {
	for symbol, sc := range s.SymbolConfigs {
		if sc.MaxPositionSize <= 0 || sc.MaxPositionSize > common.MaxPositionSizeLimit {
			return fmt.Errorf("symbol %s: maxPositionSize must be between 0 and %g", symbol, common.MaxPositionSizeLimit)
		}
		if sc.MaxPositionExposure <= 0 || sc.MaxPositionExposure > common.MaxPositionSizeLimit {
			return fmt.Errorf("symbol %s: maxPositionExposure must be between 0 and %g", symbol, common.MaxPositionSizeLimit)
		}
		if sc.MaxPriceDistance <= 0 {
			return fmt.Errorf("symbol %s: maxPriceDistance must be positive", symbol)
		}
	}
	return nil
}

func validateCircuitBreakerSettings(s *Settings) error {
	if s.StartingBalanceCHF <= 0 {
		return fmt.Errorf("startingBalanceChf must be positive")
	}
	if s.MaxDailyLossCHF >= 0 {
		return fmt.Errorf("maxDailyLossChf must be negative")
	}
	if s.MaxDailyLossPct >= 0 || s.MaxDailyLossPct < -1 {
		return fmt.Errorf("maxDailyLossPct must be between -1 and 0")
	}
	if _, err := time.Parse("15:04", s.CircuitResetUTC); err != nil {
		return fmt.Errorf("circuitResetTimeUtc must be HH:MM: %w", err)
	}
	if s.FXRateUSDCHF <= 0 {
		return fmt.Errorf("fxRateUsdChf must be positive")
	}
	return nil
}

func validateOrderExecutionSettings(s *Settings) error {
	if s.OrderExecutionTimeout < 10*time.Second || s.OrderExecutionTimeout > 5*time.Minute {
		return fmt.Errorf("orderExecutionTimeout must be between 10s and 5m")
	}
	if s.OrderStatusInterval < 1*time.Second || s.OrderStatusInterval > 30*time.Second {
		return fmt.Errorf("orderStatusCheckInterval must be between 1s and 30s")
	}
	if s.MaxOrderRetries < 1 || s.MaxOrderRetries > 10 {
		return fmt.Errorf("maxOrderRetries must be between 1 and 10")
	}
	return nil
}

func validateStopLossSettings(s *Settings) error {
	if s.StopLossExchangePct <= 0 {
		return fmt.Errorf("stopLossExchangePct must be positive")
	}
	if s.StopLossMonitorPct <= s.StopLossExchangePct {
		return fmt.Errorf("stopLossMonitorPct must exceed stopLossExchangePct")
	}
	if s.StopLossEmergencyPct <= s.StopLossMonitorPct {
		return fmt.Errorf("stopLossEmergencyPct must exceed stopLossMonitorPct")
	}
	return nil
}
