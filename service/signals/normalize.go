package signals

import (
	"errors"
	"strings"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
)

// TradingViewAlert is the inbound webhook body. TradingView fills the
// placeholders from the alert message template, so only signal, symbol
// and price are guaranteed.
type TradingViewAlert struct {
	Signal    string  `json:"signal"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	TP        float64 `json:"tp,omitempty"`
	SL        float64 `json:"sl,omitempty"`
	Timeframe string  `json:"timeframe,omitempty"`
	Strategy  string  `json:"strategy,omitempty"`
}

var errMissingFields = errors.New("signal, symbol and price are required")

// Validate checks the required alert fields.
func (a *TradingViewAlert) Validate() error {
	if a.Signal == "" || a.Symbol == "" || a.Price == 0 {
		return errMissingFields
	}
	return nil
}

// NormalizeSymbol strips broker prefixes (OANDA:EURUSD, FX:GBPJPY) and
// uppercases the pair so signals from different chart feeds collapse
// onto one name.
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.ToUpper(s)
}

// ParseAction maps the alert's signal field onto a stored action and
// whether it closes an open signal. CLOSE_BUY closes the latest active
// BUY, CLOSE_SELL the latest active SELL.
func ParseAction(signal string) (action string, isClose bool, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(signal)) {
	case models.SignalBuy:
		return models.SignalBuy, false, true
	case models.SignalSell:
		return models.SignalSell, false, true
	case "CLOSE_BUY":
		return models.SignalBuy, true, true
	case "CLOSE_SELL":
		return models.SignalSell, true, true
	default:
		return "", false, false
	}
}
