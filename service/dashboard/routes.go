package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/brianmaseno/readypips-sub001/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/dashboard/stats", utils.AdminAuthMiddleware(h.GetStats)).Methods("GET")
	router.HandleFunc("/dashboard/revenue", utils.AdminAuthMiddleware(h.GetRevenue)).Methods("GET")
	router.HandleFunc("/dashboard/recent", utils.AdminAuthMiddleware(h.GetRecentActivity)).Methods("GET")
}

type statsResponse struct {
	TotalUsers          int64   `json:"total_users"`
	VerifiedUsers       int64   `json:"verified_users"`
	ActiveSubscriptions int64   `json:"active_subscriptions"`
	TrialUsers          int64   `json:"trial_users"`
	ExpiredUsers        int64   `json:"expired_users"`
	TotalRevenue        float64 `json:"total_revenue"`
	PendingPayments     int64   `json:"pending_payments"`
	ActiveSignals       int64   `json:"active_signals"`
	TotalSignals        int64   `json:"total_signals"`
	NewUsersLast7Days   int64   `json:"new_users_last_7_days"`
}

// GetStats aggregates the headline numbers for the admin dashboard.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	var stats statsResponse

	if err := h.db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		http.Error(w, "Error retrieving stats", http.StatusInternalServerError)
		return
	}

	h.db.Model(&models.User{}).Where("email_verified = ?", true).Count(&stats.VerifiedUsers)
	h.db.Model(&models.User{}).Where("subscription_status = ?", models.SubscriptionActive).Count(&stats.ActiveSubscriptions)
	h.db.Model(&models.User{}).Where("subscription_status = ?", models.SubscriptionTrial).Count(&stats.TrialUsers)
	h.db.Model(&models.User{}).Where("subscription_status = ?", models.SubscriptionExpired).Count(&stats.ExpiredUsers)

	// COALESCE keeps the sum at zero when no payments exist yet.
	h.db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TotalRevenue)

	h.db.Model(&models.Payment{}).Where("status = ?", models.PaymentPending).Count(&stats.PendingPayments)

	h.db.Model(&models.Signal{}).Where("status = ?", models.SignalStatusActive).Count(&stats.ActiveSignals)
	h.db.Model(&models.Signal{}).Count(&stats.TotalSignals)

	weekAgo := time.Now().AddDate(0, 0, -7)
	h.db.Model(&models.User{}).Where("created_at >= ?", weekAgo).Count(&stats.NewUsersLast7Days)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

type revenuePoint struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
	Count   int64   `json:"count"`
}

// GetRevenue breaks completed payment revenue down by month, and by provider
// and plan for the requested window (default 6 months).
func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	months := 6
	if m, err := strconv.Atoi(r.URL.Query().Get("months")); err == nil && m > 0 && m <= 36 {
		months = m
	}
	since := time.Now().AddDate(0, -months, 0)

	var monthly []revenuePoint
	if err := h.db.Model(&models.Payment{}).
		Where("status = ? AND created_at >= ?", models.PaymentCompleted, since).
		Select("to_char(created_at, 'YYYY-MM') AS period, COALESCE(SUM(amount), 0) AS revenue, COUNT(*) AS count").
		Group("period").
		Order("period").
		Scan(&monthly).Error; err != nil {
		http.Error(w, "Error retrieving revenue", http.StatusInternalServerError)
		return
	}

	var byProvider []revenuePoint
	h.db.Model(&models.Payment{}).
		Where("status = ? AND created_at >= ?", models.PaymentCompleted, since).
		Select("provider AS period, COALESCE(SUM(amount), 0) AS revenue, COUNT(*) AS count").
		Group("provider").
		Scan(&byProvider)

	var byPlan []revenuePoint
	h.db.Model(&models.Payment{}).
		Where("status = ? AND created_at >= ?", models.PaymentCompleted, since).
		Select("plan_id AS period, COALESCE(SUM(amount), 0) AS revenue, COUNT(*) AS count").
		Group("plan_id").
		Scan(&byPlan)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"monthly":     monthly,
		"by_provider": byProvider,
		"by_plan":     byPlan,
	})
}

// GetRecentActivity returns the latest users, payments and signals so the
// dashboard landing page needs a single request.
func (h *Handler) GetRecentActivity(w http.ResponseWriter, r *http.Request) {
	var recentUsers []models.User
	if err := h.db.Order("created_at DESC").Limit(10).Find(&recentUsers).Error; err != nil {
		http.Error(w, "Error retrieving recent activity", http.StatusInternalServerError)
		return
	}

	var recentPayments []models.Payment
	h.db.Preload("User").Order("created_at DESC").Limit(10).Find(&recentPayments)

	var recentSubscriptions []models.Subscription
	h.db.Preload("User").Order("created_at DESC").Limit(10).Find(&recentSubscriptions)

	var recentSignals []models.Signal
	h.db.Order("created_at DESC").Limit(10).Find(&recentSignals)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"recent_users":         recentUsers,
		"recent_payments":      recentPayments,
		"recent_subscriptions": recentSubscriptions,
		"recent_signals":       recentSignals,
	})
}
