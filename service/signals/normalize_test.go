package signals

import (
	"testing"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"EURUSD", "EURUSD"},
		{"eurusd", "EURUSD"},
		{"OANDA:EURUSD", "EURUSD"},
		{"FX:gbpjpy", "GBPJPY"},
		{"  XAUUSD  ", "XAUUSD"},
		{"BINANCE:BTCUSDT", "BTCUSDT"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeSymbol(tt.input), "input %q", tt.input)
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		input   string
		action  string
		isClose bool
		ok      bool
	}{
		{"BUY", models.SignalBuy, false, true},
		{"buy", models.SignalBuy, false, true},
		{"SELL", models.SignalSell, false, true},
		{"CLOSE_BUY", models.SignalBuy, true, true},
		{"close_sell", models.SignalSell, true, true},
		{" BUY ", models.SignalBuy, false, true},
		{"HOLD", "", false, false},
		{"", "", false, false},
	}

	for _, tt := range tests {
		action, isClose, ok := ParseAction(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.action, action, "input %q", tt.input)
		assert.Equal(t, tt.isClose, isClose, "input %q", tt.input)
	}
}

func TestAlertValidate(t *testing.T) {
	valid := TradingViewAlert{Signal: "BUY", Symbol: "EURUSD", Price: 1.0842}
	assert.NoError(t, valid.Validate())

	missing := []TradingViewAlert{
		{Symbol: "EURUSD", Price: 1.0842},
		{Signal: "BUY", Price: 1.0842},
		{Signal: "BUY", Symbol: "EURUSD"},
	}
	for _, alert := range missing {
		assert.Error(t, alert.Validate())
	}
}
