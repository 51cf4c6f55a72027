package exchange

import (
	"testing"

	"github.com/bitunix-bot/coretrader/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestValidateSymbolRejectsMissingSettleSuffix(t *testing.T) {
	err := ValidateSymbol("BTCUSDT")
	assert.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Contains(t, err.Error(), "INVALID_SYMBOL")
}

func TestValidateSymbolAcceptsPerpetualForm(t *testing.T) {
	assert.NoError(t, ValidateSymbol("BTC/USDT:USDT"))
}
