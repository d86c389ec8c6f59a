package signals

import (
	"math/rand"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/lib/pq"
)

// Baseline prices for the synthetic generator. Entries are nudged a few
// pips off these so consecutive generated signals differ.
var syntheticPairs = []struct {
	pair  string
	price float64
	pip   float64
}{
	{"EURUSD", 1.0850, 0.0001},
	{"GBPUSD", 1.2650, 0.0001},
	{"USDJPY", 149.50, 0.01},
	{"XAUUSD", 2350.0, 0.1},
}

// generateSyntheticSignal inserts a placeholder signal when the feed is
// empty. It runs on-demand from a fetch, not on a timer.
func (h *SignalHandler) generateSyntheticSignal() (*models.Signal, error) {
	base := syntheticPairs[rand.Intn(len(syntheticPairs))]

	entry := base.price + float64(rand.Intn(41)-20)*base.pip
	action := models.SignalBuy
	tp := entry + 40*base.pip
	sl := entry - 20*base.pip
	if rand.Intn(2) == 1 {
		action = models.SignalSell
		tp = entry - 40*base.pip
		sl = entry + 20*base.pip
	}

	signal := models.Signal{
		Pair:        base.pair,
		Action:      action,
		Entry:       entry,
		StopLoss:    sl,
		TakeProfits: pq.Float64Array{tp},
		Timeframe:   "1h",
		Strategy:    "auto",
		Status:      models.SignalStatusActive,
		Source:      models.SignalSourceGenerated,
	}

	if err := h.db.Create(&signal).Error; err != nil {
		return nil, err
	}
	return &signal, nil
}
