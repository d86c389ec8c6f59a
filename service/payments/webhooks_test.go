package payments

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
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Payment{}, &models.Subscription{}))
	return db
}

func seedPendingOrder(t *testing.T, db *gorm.DB, planID, reference, trackingID string) models.User {
	t.Helper()

	user := models.User{
		FullName:           "Test Trader",
		Email:              "trader@example.com",
		PasswordHash:       "irrelevant",
		SubscriptionStatus: models.SubscriptionInactive,
	}
	require.NoError(t, db.Create(&user).Error)

	payment := models.Payment{
		UserID:     user.ID,
		Provider:   models.ProviderPesapal,
		PlanID:     planID,
		Amount:     planPrices[planID],
		Currency:   "USD",
		Status:     models.PaymentPending,
		Reference:  reference,
		TrackingID: trackingID,
	}
	require.NoError(t, db.Create(&payment).Error)

	sub := models.Subscription{
		UserID:    user.ID,
		Plan:      planID,
		Price:     planPrices[planID],
		Status:    models.SubscriptionInactive,
		PaymentID: reference,
	}
	require.NoError(t, db.Create(&sub).Error)

	return user
}

func TestCompletePaymentActivatesWeeklyPlan(t *testing.T) {
	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	user := seedPendingOrder(t, db, models.PlanWeekly, "RPS-1-weekly", "track-1")

	before := time.Now()
	require.NoError(t, h.completePayment("RPS-1-weekly"))

	var payment models.Payment
	require.NoError(t, db.Where("reference = ?", "RPS-1-weekly").First(&payment).Error)
	assert.Equal(t, models.PaymentCompleted, payment.Status)

	var sub models.Subscription
	require.NoError(t, db.Where("payment_id = ?", "RPS-1-weekly").First(&sub).Error)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.WithinDuration(t, before.Add(7*24*time.Hour), sub.EndDate, 5*time.Second)

	var updated models.User
	require.NoError(t, db.First(&updated, user.ID).Error)
	assert.Equal(t, models.SubscriptionActive, updated.SubscriptionStatus)
	assert.Equal(t, models.PlanWeekly, updated.SubscriptionType)
	require.NotNil(t, updated.SubscriptionEndDate)
	assert.WithinDuration(t, before.Add(7*24*time.Hour), *updated.SubscriptionEndDate, 5*time.Second)
}

func TestCompletePaymentIdempotentOnRedelivery(t *testing.T) {
	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	seedPendingOrder(t, db, models.PlanMonthly, "RPS-2-monthly", "track-2")

	require.NoError(t, h.completePayment("RPS-2-monthly"))

	var first models.Subscription
	require.NoError(t, db.Where("payment_id = ?", "RPS-2-monthly").First(&first).Error)

	// Redelivered confirmation is a no-op once the payment is terminal.
	require.NoError(t, h.completePayment("RPS-2-monthly"))

	var second models.Subscription
	require.NoError(t, db.Where("payment_id = ?", "RPS-2-monthly").First(&second).Error)
	assert.True(t, first.EndDate.Equal(second.EndDate))

	var payment models.Payment
	require.NoError(t, db.Where("reference = ?", "RPS-2-monthly").First(&payment).Error)
	assert.Equal(t, models.PaymentCompleted, payment.Status)
}

func postIPN(t *testing.T, h *PaymentHandler, trackingID, reference string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(PesapalNotification{
		OrderTrackingID:   trackingID,
		NotificationType:  "IPNCHANGE",
		MerchantReference: reference,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/pesapal", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandlePesapalIPN(rec, req)
	return rec
}

// pesapalStub serves the auth endpoint plus a transaction status that the
// test mutates between calls.
func pesapalStub(t *testing.T, statusCode *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/Auth/RequestToken":
			json.NewEncoder(w).Encode(map[string]interface{}{"token": "test-token"})
		case "/api/Transactions/GetTransactionStatus":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status_code":        *statusCode,
				"merchant_reference": r.URL.Query().Get("orderTrackingId"),
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestPesapalIPNPendingThenCompleted(t *testing.T) {
	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	user := seedPendingOrder(t, db, models.PlanWeekly, "RPS-3-weekly", "track-3")

	statusCode := 0 // invalid/pending at the provider
	server := pesapalStub(t, &statusCode)
	defer server.Close()

	oldBase := pesapalBaseURL
	pesapalBaseURL = server.URL
	defer func() { pesapalBaseURL = oldBase }()
	t.Setenv("PESAPAL_CONSUMER_KEY", "k")
	t.Setenv("PESAPAL_CONSUMER_SECRET", "s")

	// An early IPN while the provider still reports pending must not
	// move the payment to a terminal state.
	rec := postIPN(t, h, "track-3", "RPS-3-weekly")
	assert.Equal(t, http.StatusOK, rec.Code)

	var payment models.Payment
	require.NoError(t, db.Where("reference = ?", "RPS-3-weekly").First(&payment).Error)
	assert.Equal(t, models.PaymentPending, payment.Status)

	// The real confirmation afterwards still activates everything.
	statusCode = pesapalStatusCompleted
	rec = postIPN(t, h, "track-3", "RPS-3-weekly")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, db.Where("reference = ?", "RPS-3-weekly").First(&payment).Error)
	assert.Equal(t, models.PaymentCompleted, payment.Status)

	var updated models.User
	require.NoError(t, db.First(&updated, user.ID).Error)
	assert.Equal(t, models.SubscriptionActive, updated.SubscriptionStatus)
}

func TestPesapalIPNFailedStatus(t *testing.T) {
	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	seedPendingOrder(t, db, models.PlanWeekly, "RPS-4-weekly", "track-4")

	statusCode := pesapalStatusFailed
	server := pesapalStub(t, &statusCode)
	defer server.Close()

	oldBase := pesapalBaseURL
	pesapalBaseURL = server.URL
	defer func() { pesapalBaseURL = oldBase }()
	t.Setenv("PESAPAL_CONSUMER_KEY", "k")
	t.Setenv("PESAPAL_CONSUMER_SECRET", "s")

	rec := postIPN(t, h, "track-4", "RPS-4-weekly")
	assert.Equal(t, http.StatusOK, rec.Code)

	var payment models.Payment
	require.NoError(t, db.Where("reference = ?", "RPS-4-weekly").First(&payment).Error)
	assert.Equal(t, models.PaymentFailed, payment.Status)
}

func TestPaystackWebhook(t *testing.T) {
	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	seedPendingOrder(t, db, models.PlanWeekly, "RPS-5-weekly", "")

	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_secret")
	body := []byte(`{"event":"charge.success","data":{"reference":"RPS-5-weekly","status":"success","amount":1500}}`)

	t.Run("bad signature rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paystack", bytes.NewReader(body))
		req.Header.Set("X-Paystack-Signature", "deadbeef")
		rec := httptest.NewRecorder()

		h.HandlePaystackWebhook(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var payment models.Payment
		require.NoError(t, db.Where("reference = ?", "RPS-5-weekly").First(&payment).Error)
		assert.Equal(t, models.PaymentPending, payment.Status)
	})

	t.Run("signed charge.success completes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paystack", bytes.NewReader(body))
		req.Header.Set("X-Paystack-Signature", signPaystack(body, "sk_test_secret"))
		rec := httptest.NewRecorder()

		h.HandlePaystackWebhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var payment models.Payment
		require.NoError(t, db.Where("reference = ?", "RPS-5-weekly").First(&payment).Error)
		assert.Equal(t, models.PaymentCompleted, payment.Status)
	})

	t.Run("other events ignored", func(t *testing.T) {
		other := []byte(`{"event":"charge.dispute.create","data":{"reference":"RPS-5-weekly"}}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paystack", bytes.NewReader(other))
		req.Header.Set("X-Paystack-Signature", signPaystack(other, "sk_test_secret"))
		rec := httptest.NewRecorder()

		h.HandlePaystackWebhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
