package signals

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Signal{}))
	return db
}

func seedSignal(t *testing.T, db *gorm.DB, pair, action string, createdAt time.Time) models.Signal {
	t.Helper()
	signal := models.Signal{
		Pair:     pair,
		Action:   action,
		Entry:    1.0,
		StopLoss: 0.99,
		Status:   models.SignalStatusActive,
		Source:   models.SignalSourceWebhook,
	}
	signal.CreatedAt = createdAt
	require.NoError(t, db.Create(&signal).Error)
	return signal
}

func postAlert(t *testing.T, h *SignalHandler, alert TradingViewAlert) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(alert)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/signals/webhook/tradingview", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleTradingViewWebhook(rec, req)
	return rec
}

func TestCloseBuyClosesNewestMatchingOnly(t *testing.T) {
	db := setupTestDB(t)
	h := NewSignalHandler(db, nil, nil)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	olderBuy := seedSignal(t, db, "EURUSD", models.SignalBuy, base)
	newerBuy := seedSignal(t, db, "EURUSD", models.SignalBuy, base.Add(time.Hour))
	eurSell := seedSignal(t, db, "EURUSD", models.SignalSell, base.Add(2*time.Hour))
	gbpBuy := seedSignal(t, db, "GBPUSD", models.SignalBuy, base.Add(3*time.Hour))

	rec := postAlert(t, h, TradingViewAlert{Signal: "CLOSE_BUY", Symbol: "OANDA:EURUSD", Price: 1.0901})
	require.Equal(t, http.StatusOK, rec.Code)

	var closed models.Signal
	require.NoError(t, db.First(&closed, newerBuy.ID).Error)
	assert.Equal(t, models.SignalStatusClosed, closed.Status)
	assert.Equal(t, 1.0901, closed.ClosePrice)
	require.NotNil(t, closed.ClosedAt)

	// Only the newest matching BUY closes; the older BUY, the SELL and
	// the other pair stay active.
	for _, untouched := range []models.Signal{olderBuy, eurSell, gbpBuy} {
		var got models.Signal
		require.NoError(t, db.First(&got, untouched.ID).Error)
		assert.Equal(t, models.SignalStatusActive, got.Status, "signal %d", untouched.ID)
		assert.Nil(t, got.ClosedAt)
	}
}

func TestCloseWithoutMatchReturnsNotFound(t *testing.T) {
	db := setupTestDB(t)
	h := NewSignalHandler(db, nil, nil)

	seedSignal(t, db, "EURUSD", models.SignalSell, time.Now())

	rec := postAlert(t, h, TradingViewAlert{Signal: "CLOSE_BUY", Symbol: "EURUSD", Price: 1.0901})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookCreatesSignalAndAllowsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	h := NewSignalHandler(db, nil, nil)

	alert := TradingViewAlert{Signal: "BUY", Symbol: "FX:gbpusd", Price: 1.2651, SL: 1.2600, TP: 1.2750}

	rec := postAlert(t, h, alert)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Redelivered alerts insert a second row; an alert has no natural key.
	rec = postAlert(t, h, alert)
	require.Equal(t, http.StatusCreated, rec.Code)

	var signals []models.Signal
	require.NoError(t, db.Where("pair = ?", "GBPUSD").Find(&signals).Error)
	require.Len(t, signals, 2)
	assert.Equal(t, models.SignalBuy, signals[0].Action)
	assert.Equal(t, 1.2651, signals[0].Entry)
	assert.Equal(t, models.SignalSourceWebhook, signals[0].Source)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, defaultSignalLimit, parseLimit(""))
	assert.Equal(t, defaultSignalLimit, parseLimit("abc"))
	assert.Equal(t, defaultSignalLimit, parseLimit("0"))
	assert.Equal(t, defaultSignalLimit, parseLimit("-5"))
	assert.Equal(t, 25, parseLimit("25"))
	assert.Equal(t, maxSignalLimit, parseLimit("99999"))
}
