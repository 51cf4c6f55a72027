package cfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSettings() Settings {
	return Settings{
		Key: "k", Secret: "s", BaseURL: "https://api.bitunix.com",
		RESTTimeout: 5 * time.Second, Symbols: []string{"BTC/USDT:USDT"},
		DryRun: true, Leverage: 10, MarginMode: "ISOLATION",
		MaxPositionSize: 0.01, MaxPositionExposure: 0.1, MaxTotalExposure: 0.25,
		MaxPriceDistance: 3.0, MaxConsecutiveLosses: 3, MaxDrawdownProtection: 0.1,
		SymbolConfigs:      map[string]SymbolConfig{},
		StartingBalanceCHF: 2626.96, MaxDailyLossCHF: -183.89, MaxDailyLossPct: -0.07,
		CircuitResetUTC: "00:00", FXRateUSDCHF: 1.10,
		CycleInterval: 180 * time.Second, MetricsPort: 8080,
		OrderExecutionTimeout: 30 * time.Second, OrderStatusInterval: 5 * time.Second,
		MaxOrderRetries:      3,
		StopLossExchangePct:  0.02,
		StopLossMonitorPct:   0.03,
		StopLossEmergencyPct: 0.08,
	}
}

func TestValidateSettingsAccepsValidInput(t *testing.T) {
	s := validSettings()
	assert.NoError(t, validateSettings(&s))
}

func TestValidateCircuitBreakerRejectsPositiveLossLimit(t *testing.T) {
	s := validSettings()
	s.MaxDailyLossCHF = 100
	assert.Error(t, validateSettings(&s))
}

func TestValidateCircuitBreakerRejectsBadResetTime(t *testing.T) {
	s := validSettings()
	s.CircuitResetUTC = "midnight"
	assert.Error(t, validateSettings(&s))
}

func TestValidateStopLossRequiresIncreasingThresholds(t *testing.T) {
	s := validSettings()
	s.StopLossMonitorPct = 0.01 // must exceed ExchangePct
	assert.Error(t, validateSettings(&s))
}

func TestValidateOrderExecutionTimeoutBounds(t *testing.T) {
	s := validSettings()
	s.OrderExecutionTimeout = 1 * time.Second
	assert.Error(t, validateSettings(&s))
}

func TestValidateTradingParametersRequiresSymbols(t *testing.T) {
	s := validSettings()
	s.Symbols = nil
	assert.Error(t, validateSettings(&s))
}
