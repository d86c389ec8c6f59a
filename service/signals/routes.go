package signals

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/brianmaseno/readypips-sub001/cmd/utils"
	"github.com/brianmaseno/readypips-sub001/service/live"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Notifier pushes a new-signal alert to subscribed devices.
type Notifier interface {
	NotifySubscribers(signal *models.Signal)
}

type SignalHandler struct {
	db       *gorm.DB
	hub      *live.Hub
	notifier Notifier
}

func NewSignalHandler(db *gorm.DB, hub *live.Hub, notifier Notifier) *SignalHandler {
	return &SignalHandler{db: db, hub: hub, notifier: notifier}
}

func (h *SignalHandler) RegisterRoutes(router *mux.Router) {
	signalRouter := router.PathPrefix("/signals").Subrouter()

	// Inbound TradingView alerts
	signalRouter.HandleFunc("/webhook/tradingview", utils.RateLimitMiddleware(h.HandleTradingViewWebhook)).Methods("POST")

	// Base CRUD operations
	signalRouter.HandleFunc("", utils.AuthMiddleware(h.GetSignals)).Methods("GET")
	signalRouter.HandleFunc("/{id:[0-9]+}", utils.AuthMiddleware(h.GetSignalByID)).Methods("GET")
	signalRouter.HandleFunc("", utils.AdminAuthMiddleware(h.CreateSignal)).Methods("POST")
	signalRouter.HandleFunc("/{id:[0-9]+}", utils.AdminAuthMiddleware(h.UpdateSignal)).Methods("PUT")
	signalRouter.HandleFunc("/{id:[0-9]+}", utils.AdminAuthMiddleware(h.DeleteSignal)).Methods("DELETE")

	// Filtered signal routes
	signalRouter.HandleFunc("/pair/{pair}", utils.AuthMiddleware(h.GetSignalsByPair)).Methods("GET")
	signalRouter.HandleFunc("/action/{action}", utils.AuthMiddleware(h.GetSignalsByAction)).Methods("GET")

	// Analytics/Statistics
	signalRouter.HandleFunc("/stats", utils.AuthMiddleware(h.GetSignalStats)).Methods("GET")
}

// HandleTradingViewWebhook ingests an alert. CLOSE_* alerts close the
// most recent matching active signal of the same side; everything else
// inserts a new signal unconditionally. Redelivered alerts therefore
// create duplicate rows; there is deliberately no dedup here.
func (h *SignalHandler) HandleTradingViewWebhook(w http.ResponseWriter, r *http.Request) {
	// TradingView cannot sign requests; a shared secret in the query
	// string keeps casual callers out when one is configured.
	if secret := os.Getenv("TRADINGVIEW_WEBHOOK_SECRET"); secret != "" {
		if r.URL.Query().Get("secret") != secret {
			utils.CountWebhook("tradingview", "bad_secret")
			http.Error(w, "Invalid webhook secret", http.StatusUnauthorized)
			return
		}
	}

	var alert TradingViewAlert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := alert.Validate(); err != nil {
		utils.CountWebhook("tradingview", "invalid")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	action, isClose, ok := ParseAction(alert.Signal)
	if !ok {
		utils.CountWebhook("tradingview", "invalid")
		http.Error(w, "Unknown signal type", http.StatusBadRequest)
		return
	}

	pair := NormalizeSymbol(alert.Symbol)

	if isClose {
		h.closeSignal(w, pair, action, alert.Price)
		return
	}

	signal := models.Signal{
		Pair:      pair,
		Action:    action,
		Entry:     alert.Price,
		StopLoss:  alert.SL,
		Timeframe: alert.Timeframe,
		Strategy:  alert.Strategy,
		Status:    models.SignalStatusActive,
		Source:    models.SignalSourceWebhook,
	}
	if alert.TP != 0 {
		signal.TakeProfits = pq.Float64Array{alert.TP}
	}

	if err := h.db.Create(&signal).Error; err != nil {
		utils.CountWebhook("tradingview", "error")
		http.Error(w, "Error creating signal", http.StatusInternalServerError)
		return
	}

	utils.CountWebhook("tradingview", "created")
	h.publish(live.SignalEvent{Type: "signal_created", Signal: &signal})
	if h.notifier != nil {
		go h.notifier.NotifySubscribers(&signal)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(signal)
}

// closeSignal closes the most recently created active signal matching
// pair and side. Other pairs and the opposite side stay untouched.
func (h *SignalHandler) closeSignal(w http.ResponseWriter, pair, action string, closePrice float64) {
	var signal models.Signal
	err := h.db.Where("pair = ? AND action = ? AND status = ?", pair, action, models.SignalStatusActive).
		Order("created_at DESC").
		First(&signal).Error
	if err != nil {
		utils.CountWebhook("tradingview", "no_match")
		http.Error(w, "No matching active signal", http.StatusNotFound)
		return
	}

	now := time.Now()
	signal.Status = models.SignalStatusClosed
	signal.ClosePrice = closePrice
	signal.ClosedAt = &now

	if err := h.db.Save(&signal).Error; err != nil {
		utils.CountWebhook("tradingview", "error")
		http.Error(w, "Error closing signal", http.StatusInternalServerError)
		return
	}

	utils.CountWebhook("tradingview", "closed")
	h.publish(live.SignalEvent{Type: "signal_closed", Signal: &signal})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signal)
}

func (h *SignalHandler) publish(event live.SignalEvent) {
	if h.hub != nil {
		h.hub.Broadcast(event)
	}
}

// CreateSignal lets an admin post a manual signal
func (h *SignalHandler) CreateSignal(w http.ResponseWriter, r *http.Request) {
	adminID, err := utils.GetAdminIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.adminCan(adminID, "manage_signals", w) {
		return
	}

	var signal models.Signal
	if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	signal.Pair = NormalizeSymbol(signal.Pair)
	if signal.Status == "" {
		signal.Status = models.SignalStatusActive
	}

	if err := h.db.Create(&signal).Error; err != nil {
		http.Error(w, "Error creating signal", http.StatusInternalServerError)
		return
	}

	h.publish(live.SignalEvent{Type: "signal_created", Signal: &signal})
	if h.notifier != nil {
		go h.notifier.NotifySubscribers(&signal)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(signal)
}

// GetSignals retrieves signals, newest first. When no active signal
// exists the synthetic generator seeds one so the feed is never empty.
func (h *SignalHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseLimit(query.Get("limit"))

	offset := 0
	if query.Get("offset") != "" {
		parsedOffset, err := strconv.Atoi(query.Get("offset"))
		if err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	dbQuery := h.db.Order("created_at DESC")
	if status := query.Get("status"); status != "" {
		dbQuery = dbQuery.Where("status = ?", status)
	}

	var signals []models.Signal
	if err := dbQuery.Limit(limit).Offset(offset).Find(&signals).Error; err != nil {
		http.Error(w, "Error retrieving signals", http.StatusInternalServerError)
		return
	}

	if len(signals) == 0 && query.Get("status") == "" {
		if generated, err := h.generateSyntheticSignal(); err == nil {
			signals = append(signals, *generated)
		} else {
			log.Printf("Synthetic signal generation failed: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signals)
}

// GetSignalByID retrieves a specific signal by ID
func (h *SignalHandler) GetSignalByID(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid signal ID", http.StatusBadRequest)
		return
	}

	var signal models.Signal
	if err := h.db.First(&signal, id).Error; err != nil {
		http.Error(w, "Signal not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signal)
}

// UpdateSignal updates an existing signal
func (h *SignalHandler) UpdateSignal(w http.ResponseWriter, r *http.Request) {
	adminID, err := utils.GetAdminIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.adminCan(adminID, "manage_signals", w) {
		return
	}

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid signal ID", http.StatusBadRequest)
		return
	}

	var updatedSignal models.Signal
	if err := json.NewDecoder(r.Body).Decode(&updatedSignal); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var signal models.Signal
	if err := h.db.First(&signal, id).Error; err != nil {
		http.Error(w, "Signal not found", http.StatusNotFound)
		return
	}

	signal.Pair = NormalizeSymbol(updatedSignal.Pair)
	signal.Action = updatedSignal.Action
	signal.Entry = updatedSignal.Entry
	signal.StopLoss = updatedSignal.StopLoss
	signal.TakeProfits = updatedSignal.TakeProfits
	signal.Timeframe = updatedSignal.Timeframe
	signal.Strategy = updatedSignal.Strategy
	signal.Commentary = updatedSignal.Commentary

	if err := h.db.Save(&signal).Error; err != nil {
		http.Error(w, "Error updating signal", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signal)
}

// DeleteSignal deletes a signal
func (h *SignalHandler) DeleteSignal(w http.ResponseWriter, r *http.Request) {
	adminID, err := utils.GetAdminIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.adminCan(adminID, "manage_signals", w) {
		return
	}

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid signal ID", http.StatusBadRequest)
		return
	}

	result := h.db.Delete(&models.Signal{}, id)
	if result.Error != nil {
		http.Error(w, "Error deleting signal", http.StatusInternalServerError)
		return
	}

	if result.RowsAffected == 0 {
		http.Error(w, "Signal not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Signal deleted successfully",
	})
}

// GetSignalsByPair retrieves all signals for a specific pair
func (h *SignalHandler) GetSignalsByPair(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pair := NormalizeSymbol(vars["pair"])

	var signals []models.Signal
	if err := h.db.Where("pair = ?", pair).Order("created_at DESC").Find(&signals).Error; err != nil {
		http.Error(w, "Error retrieving signals", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signals)
}

// GetSignalsByAction retrieves all signals for a specific action (BUY/SELL)
func (h *SignalHandler) GetSignalsByAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := vars["action"]

	var signals []models.Signal
	if err := h.db.Where("action = ?", action).Order("created_at DESC").Find(&signals).Error; err != nil {
		http.Error(w, "Error retrieving signals", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signals)
}

// GetSignalStats retrieves statistics about signals
func (h *SignalHandler) GetSignalStats(w http.ResponseWriter, r *http.Request) {
	var stats struct {
		TotalCount   int64          `json:"total_count"`
		ActiveCount  int64          `json:"active_count"`
		PairCounts   map[string]int `json:"pair_counts"`
		ActionCounts map[string]int `json:"action_counts"`
	}

	stats.PairCounts = make(map[string]int)
	stats.ActionCounts = make(map[string]int)

	h.db.Model(&models.Signal{}).Count(&stats.TotalCount)
	h.db.Model(&models.Signal{}).Where("status = ?", models.SignalStatusActive).Count(&stats.ActiveCount)

	var pairResults []struct {
		Pair  string
		Count int
	}
	h.db.Model(&models.Signal{}).Select("pair, count(*) as count").Group("pair").Find(&pairResults)
	for _, result := range pairResults {
		stats.PairCounts[result.Pair] = result.Count
	}

	var actionResults []struct {
		Action string
		Count  int
	}
	h.db.Model(&models.Signal{}).Select("action, count(*) as count").Group("action").Find(&actionResults)
	for _, result := range actionResults {
		stats.ActionCounts[result.Action] = result.Count
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

const (
	defaultSignalLimit = 100
	maxSignalLimit     = 500
)

// parseLimit bounds the page size so one request cannot dump the table.
func parseLimit(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return defaultSignalLimit
	}
	if parsed > maxSignalLimit {
		return maxSignalLimit
	}
	return parsed
}

// adminCan loads the admin and enforces one permission, writing the
// error response itself when the check fails.
func (h *SignalHandler) adminCan(adminID uint, permission string, w http.ResponseWriter) bool {
	var admin models.Admin
	if err := h.db.First(&admin, adminID).Error; err != nil {
		http.Error(w, "Admin not found", http.StatusUnauthorized)
		return false
	}
	if !admin.IsActive {
		http.Error(w, "Admin account disabled", http.StatusForbidden)
		return false
	}
	if !admin.HasPermission(permission) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return false
	}
	return true
}
