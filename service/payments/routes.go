package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/brianmaseno/readypips-sub001/cmd/utils"
	"github.com/brianmaseno/readypips-sub001/service/subscription"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// Plan prices in USD. Kept server-side so a client cannot name its own
// price at checkout.
var planPrices = map[string]float64{
	models.PlanWeekly:      15,
	models.PlanMonthly:     45,
	models.PlanThreeMonths: 110,
	models.PlanAnnual:      350,
}

type PaymentHandler struct {
	db *gorm.DB
}

func NewPaymentHandler(db *gorm.DB) *PaymentHandler {
	return &PaymentHandler{db: db}
}

func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	paymentRouter := router.PathPrefix("/payments").Subrouter()

	paymentRouter.HandleFunc("/initialize", utils.AuthMiddleware(h.InitializePayment)).Methods("POST")
	paymentRouter.HandleFunc("", utils.AuthMiddleware(h.GetUserPayments)).Methods("GET")
	paymentRouter.HandleFunc("/{id:[0-9]+}", utils.AuthMiddleware(h.GetPayment)).Methods("GET")

	// Provider callbacks are unauthenticated by nature; rate limited instead.
	paymentRouter.HandleFunc("/webhook/paystack", utils.RateLimitMiddleware(h.HandlePaystackWebhook)).Methods("POST")
	paymentRouter.HandleFunc("/webhook/pesapal", utils.RateLimitMiddleware(h.HandlePesapalIPN)).Methods("POST")
}

// InitializePayment creates a pending payment plus a pending
// subscription record and asks the chosen provider for a checkout URL.
func (h *PaymentHandler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var paymentRequest struct {
		PlanID   string `json:"plan_id"`
		Provider string `json:"provider"`
	}

	if err := json.NewDecoder(r.Body).Decode(&paymentRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, ok := planPrices[paymentRequest.PlanID]
	if !ok {
		http.Error(w, "Unknown plan", http.StatusBadRequest)
		return
	}

	if paymentRequest.Provider != models.ProviderPaystack && paymentRequest.Provider != models.ProviderPesapal {
		http.Error(w, "Unknown payment provider", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	reference := fmt.Sprintf("RPS-%d-%s", userID, uuid.NewString())

	payment := models.Payment{
		UserID:    userID,
		Provider:  paymentRequest.Provider,
		PlanID:    paymentRequest.PlanID,
		Amount:    amount,
		Currency:  "USD",
		Status:    models.PaymentPending,
		Reference: reference,
	}

	pendingSub := models.Subscription{
		UserID:    userID,
		Plan:      paymentRequest.PlanID,
		Price:     amount,
		Status:    models.SubscriptionInactive,
		PaymentID: reference,
	}

	tx := h.db.Begin()
	if err := tx.Create(&payment).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating payment", http.StatusInternalServerError)
		return
	}
	if err := tx.Create(&pendingSub).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating subscription", http.StatusInternalServerError)
		return
	}

	var redirectURL string
	switch paymentRequest.Provider {
	case models.ProviderPaystack:
		initResp, err := initializePaystack(user.Email, reference, paymentRequest.PlanID, amount, userID)
		if err != nil {
			tx.Rollback()
			log.Printf("Paystack initialization failed: %v", err)
			http.Error(w, "Error initializing payment", http.StatusInternalServerError)
			return
		}
		redirectURL = initResp.Data.AuthorizationURL

	case models.ProviderPesapal:
		description := "ReadyPips " + paymentRequest.PlanID + " signal plan"
		orderResp, err := submitPesapalOrder(user.Email, reference, amount, "USD", description)
		if err != nil {
			tx.Rollback()
			log.Printf("Pesapal order submission failed: %v", err)
			http.Error(w, "Error initializing payment", http.StatusInternalServerError)
			return
		}
		redirectURL = orderResp.RedirectURL
		payment.TrackingID = orderResp.OrderTrackingID
		if err := tx.Save(&payment).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error saving payment", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing initialization", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"authorization_url": redirectURL,
		"reference":         reference,
		"payment_id":        payment.ID,
	})
}

// HandlePaystackWebhook processes the payment webhook from Paystack.
// The signature is an HMAC-SHA512 of the raw body keyed by the secret key.
func (h *PaymentHandler) HandlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	paystackSignature := r.Header.Get("X-Paystack-Signature")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	if !VerifyPaystackSignature(body, paystackSignature, os.Getenv("PAYSTACK_SECRET_KEY")) {
		utils.CountWebhook("paystack", "bad_signature")
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	var webhookPayload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string  `json:"reference"`
			Status    string  `json:"status"`
			Amount    float64 `json:"amount"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &webhookPayload); err != nil {
		http.Error(w, "Error parsing webhook payload", http.StatusBadRequest)
		return
	}

	// Only successful charges transition anything.
	if webhookPayload.Event != "charge.success" {
		utils.CountWebhook("paystack", "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.completePayment(webhookPayload.Data.Reference); err != nil {
		utils.CountWebhook("paystack", "error")
		log.Printf("Paystack webhook processing failed for %s: %v", webhookPayload.Data.Reference, err)
		http.Error(w, "Error processing webhook", http.StatusInternalServerError)
		return
	}

	utils.CountWebhook("paystack", "completed")
	w.WriteHeader(http.StatusOK)
}

// VerifyPaystackSignature checks the X-Paystack-Signature header against
// the raw request body.
func VerifyPaystackSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// PesapalNotification is the IPN body Pesapal posts on order changes.
// Pesapal does not sign IPN calls, so the tracking id is re-verified
// against their transaction API instead.
type PesapalNotification struct {
	OrderTrackingID   string `json:"OrderTrackingId"`
	NotificationType  string `json:"OrderNotificationType"`
	MerchantReference string `json:"OrderMerchantReference"`
}

// HandlePesapalIPN processes a Pesapal order notification. When the
// verification call itself errors, the payment is still recorded from
// the raw notification; repeated webhook retries for a transient
// provider outage would otherwise wedge the order forever.
func (h *PaymentHandler) HandlePesapalIPN(w http.ResponseWriter, r *http.Request) {
	var notification PesapalNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		http.Error(w, "Error parsing notification", http.StatusBadRequest)
		return
	}

	if notification.OrderTrackingID == "" {
		http.Error(w, "Missing OrderTrackingId", http.StatusBadRequest)
		return
	}

	var payment models.Payment
	err := h.db.Where("tracking_id = ?", notification.OrderTrackingID).First(&payment).Error
	if err != nil && notification.MerchantReference != "" {
		err = h.db.Where("reference = ?", notification.MerchantReference).First(&payment).Error
	}
	if err != nil {
		utils.CountWebhook("pesapal", "unknown_order")
		http.Error(w, "Payment not found", http.StatusNotFound)
		return
	}

	// Only a definitive code moves the payment. A pending or invalid
	// status leaves it untouched so the eventual completion IPN still
	// finds it pending; flipping early would make completePayment's
	// terminal-state guard swallow the real confirmation.
	statusCode := pesapalStatusCompleted
	status, err := getPesapalTransactionStatus(notification.OrderTrackingID)
	if err != nil {
		log.Printf("Pesapal verification unavailable for %s, recording from notification: %v",
			notification.OrderTrackingID, err)
	} else {
		statusCode = status.StatusCode
	}

	var outcome string
	switch statusCode {
	case pesapalStatusCompleted:
		if err := h.completePayment(payment.Reference); err != nil {
			utils.CountWebhook("pesapal", "error")
			log.Printf("Pesapal IPN processing failed for %s: %v", payment.Reference, err)
			http.Error(w, "Error processing notification", http.StatusInternalServerError)
			return
		}
		outcome = "completed"
	case pesapalStatusFailed, pesapalStatusReversed:
		outcome = "failed"
		if payment.Status == models.PaymentPending {
			h.db.Model(&payment).Update("status", models.PaymentFailed)
		}
	default:
		outcome = "pending"
	}

	utils.CountWebhook("pesapal", outcome)

	// Pesapal expects this acknowledgement body back.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"orderNotificationType":  notification.NotificationType,
		"orderTrackingId":        notification.OrderTrackingID,
		"orderMerchantReference": notification.MerchantReference,
		"status":                 200,
	})
}

// completePayment marks the payment completed and activates the user's
// subscription, extending the end date by the plan duration. The user
// row, the subscription record and the payment all change in one
// transaction so the two status fields cannot drift apart. Redelivered
// webhooks are a no-op once the payment reached a terminal state.
func (h *PaymentHandler) completePayment(reference string) error {
	return h.db.Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := tx.Where("reference = ?", reference).First(&payment).Error; err != nil {
			return err
		}

		if payment.Status != models.PaymentPending {
			return nil
		}

		payment.Status = models.PaymentCompleted
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		now := time.Now()
		endDate := now.Add(subscription.PlanDuration(payment.PlanID))

		if err := tx.Model(&models.Subscription{}).
			Where("payment_id = ?", payment.Reference).
			Updates(map[string]interface{}{
				"status":     models.SubscriptionActive,
				"start_date": now,
				"end_date":   endDate,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).
			Where("id = ?", payment.UserID).
			Updates(map[string]interface{}{
				"subscription_type":     payment.PlanID,
				"subscription_status":   models.SubscriptionActive,
				"subscription_end_date": endDate,
			}).Error
	})
}

// GetUserPayments returns the calling user's payment history, newest first.
func (h *PaymentHandler) GetUserPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	page := 1
	if query.Get("page") != "" {
		parsedPage, err := strconv.Atoi(query.Get("page"))
		if err == nil && parsedPage > 0 {
			page = parsedPage
		}
	}
	perPage := 20

	var total int64
	h.db.Model(&models.Payment{}).Where("user_id = ?", userID).Count(&total)

	var userPayments []models.Payment
	if err := h.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&userPayments).Error; err != nil {
		http.Error(w, "Error retrieving payments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":        userPayments,
		"total":       total,
		"page":        page,
		"per_page":    perPage,
		"total_pages": int(math.Ceil(float64(total) / float64(perPage))),
	})
}

// GetPayment retrieves one payment; users can only read their own.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid payment ID", http.StatusBadRequest)
		return
	}

	var payment models.Payment
	if err := h.db.First(&payment, id).Error; err != nil {
		http.Error(w, "Payment not found", http.StatusNotFound)
		return
	}

	if payment.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payment)
}
