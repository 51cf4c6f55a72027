package bitunix

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Bitunix account endpoints return these codes for states that are already
// satisfied or that don't block trading; callers treat them as success.
const (
	codeAlreadySet   = 34002
	codeModeConflict = 10007
)

func (cl *Client) ChangeLeverage(symbol string, leverage int) error {
	payload := map[string]interface{}{
		"symbol":   symbol,
		"leverage": leverage,
	}
	resp, err := cl.doRequest("POST", "/api/v1/futures/account/change_leverage", payload)
	if err != nil {
		log.Warn().Err(err).Msg("failed to change leverage")
		return err
	}
	switch resp.Code {
	case 0:
		return nil
	case codeAlreadySet:
		log.Warn().Str("symbol", symbol).Msg("non-fatal error: leverage already set to requested value")
		return nil
	case codeModeConflict:
		log.Warn().Str("symbol", symbol).Msg("non-fatal error: margin mode conflict")
		return nil
	default:
		return fmt.Errorf("bitunix: %d %s", resp.Code, resp.Msg)
	}
}

func (cl *Client) ChangeMarginMode(sym, mode string) error {
	payload := map[string]string{
		"symbol":     sym,
		"marginMode": mode,
	}
	if mode == "ISOLATION" {
		payload["marginCoin"] = "USDT"
	}
	resp, err := cl.doRequest("POST", "/api/v1/futures/account/change_margin_mode", payload)
	if err != nil {
		log.Warn().Err(err).Msg("failed to change margin mode")
		return err
	}
	switch resp.Code {
	case 0:
		return nil
	case codeAlreadySet:
		log.Warn().Str("symbol", sym).Msg("non-fatal error: margin mode already set to requested value")
		return nil
	case codeModeConflict:
		log.Warn().Str("symbol", sym).Msg("non-fatal error: leverage/margin mode conflict")
		return nil
	default:
		return fmt.Errorf("bitunix: %d %s", resp.Code, resp.Msg)
	}
}

func respHasError(resp *Response) error {
	if resp.Code != 0 {
		return fmt.Errorf("bitunix: %d %s", resp.Code, resp.Msg)
	}
	return nil
}
