package subscription

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

// Response is a standardized API response structure
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Meta  interface{} `json:"meta,omitempty"`
	Error string      `json:"error,omitempty"`
}

// SubscriptionFilter represents all possible filters for subscriptions
type SubscriptionFilter struct {
	UserID    uint
	Plan      string
	Status    string
	MinPrice  float64
	MaxPrice  float64
	StartDate time.Time
	EndDate   time.Time
	IsExpired *bool // nil (not filtered), true, false
}

// SubscriptionResponse extends the subscription model with calculated fields
type SubscriptionResponse struct {
	models.Subscription
	IsExpired bool `json:"is_expired"`
}

type SubscriptionHandler struct {
	db *gorm.DB
}

func NewSubscriptionHandler(db *gorm.DB) *SubscriptionHandler {
	return &SubscriptionHandler{db: db}
}

// RegisterRoutes registers all subscription routes
func (h *SubscriptionHandler) RegisterRoutes(router *mux.Router) {
	subscriptionRouter := router.PathPrefix("/subscriptions").Subrouter()

	// The read-triggered status check for the calling user
	subscriptionRouter.HandleFunc("/status", utils.AuthMiddleware(h.GetSubscriptionStatus)).Methods("GET")

	subscriptionRouter.HandleFunc("", utils.AdminAuthMiddleware(h.GetSubscriptions)).Methods("GET")
	subscriptionRouter.HandleFunc("/{id:[0-9]+}", utils.AuthMiddleware(h.GetSubscription)).Methods("GET")

	subscriptionRouter.HandleFunc("/user/{userID:[0-9]+}", utils.AuthMiddleware(h.GetUserSubscriptions)).Methods("GET")
	subscriptionRouter.HandleFunc("/user/{userID:[0-9]+}/active", utils.AuthMiddleware(h.GetActiveSubscription)).Methods("GET")
}

// GetSubscriptionStatus computes the subscription countdown for the
// authenticated user and lazily persists any transition it produced:
// trial defaulting for first-time users, or active flipping to expired
// once the end date passed. The write is a deterministic function of
// wall-clock time, so a concurrent duplicate write is harmless.
func (h *SubscriptionHandler) GetSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		h.respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		h.respondWithError(w, http.StatusNotFound, "User not found")
		return
	}

	report, changed := ComputeStatus(&user, time.Now())
	if changed {
		err := h.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(&user).Error; err != nil {
				return err
			}
			// Keep the denormalized subscription record in step with the
			// user row so the two never disagree.
			if user.SubscriptionStatus == models.SubscriptionExpired {
				if err := tx.Model(&models.Subscription{}).
					Where("user_id = ? AND status = ?", user.ID, models.SubscriptionActive).
					Update("status", models.SubscriptionExpired).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to update subscription status")
			return
		}
	}

	h.respondWithJSON(w, http.StatusOK, Response{Data: report})
}

// GetSubscriptions handles retrieving subscriptions with various filters
func (h *SubscriptionHandler) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	var filter SubscriptionFilter
	var err error

	queryParams := r.URL.Query()

	if userIDStr := queryParams.Get("user_id"); userIDStr != "" {
		userID, err := strconv.ParseUint(userIDStr, 10, 32)
		if err == nil {
			filter.UserID = uint(userID)
		}
	}

	filter.Plan = queryParams.Get("plan")
	filter.Status = queryParams.Get("status")

	if minPriceStr := queryParams.Get("min_price"); minPriceStr != "" {
		filter.MinPrice, err = strconv.ParseFloat(minPriceStr, 64)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid min_price parameter")
			return
		}
	}

	if maxPriceStr := queryParams.Get("max_price"); maxPriceStr != "" {
		filter.MaxPrice, err = strconv.ParseFloat(maxPriceStr, 64)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid max_price parameter")
			return
		}
	}

	layout := "2006-01-02"

	if startDateStr := queryParams.Get("start_date"); startDateStr != "" {
		filter.StartDate, err = time.Parse(layout, startDateStr)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid start_date format. Use YYYY-MM-DD")
			return
		}
	}

	if endDateStr := queryParams.Get("end_date"); endDateStr != "" {
		filter.EndDate, err = time.Parse(layout, endDateStr)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid end_date format. Use YYYY-MM-DD")
			return
		}
	}

	if expiredStr := queryParams.Get("expired"); expiredStr != "" {
		isExpired, err := strconv.ParseBool(expiredStr)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid expired parameter. Use 'true' or 'false'")
			return
		}
		filter.IsExpired = &isExpired
	}

	query := h.db.Model(&models.Subscription{}).Preload("User")
	query = h.applySubscriptionFilters(query, filter)

	pageStr := queryParams.Get("page")
	pageSizeStr := queryParams.Get("page_size")

	page := 1
	if pageStr != "" {
		pageVal, err := strconv.Atoi(pageStr)
		if err == nil && pageVal > 0 {
			page = pageVal
		}
	}

	pageSize := 10
	if pageSizeStr != "" {
		pageSizeVal, err := strconv.Atoi(pageSizeStr)
		if err == nil && pageSizeVal > 0 && pageSizeVal <= 100 {
			pageSize = pageSizeVal
		}
	}

	offset := (page - 1) * pageSize

	var total int64
	query.Count(&total)

	var subscriptions []models.Subscription
	result := query.Limit(pageSize).Offset(offset).Find(&subscriptions)
	if result.Error != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve subscriptions")
		return
	}

	var responseSubscriptions []SubscriptionResponse
	now := time.Now()
	for _, sub := range subscriptions {
		responseSubscriptions = append(responseSubscriptions, SubscriptionResponse{
			Subscription: sub,
			IsExpired:    sub.EndDate.Before(now),
		})
	}

	meta := map[string]interface{}{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"pages":     (total + int64(pageSize) - 1) / int64(pageSize),
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Data: responseSubscriptions,
		Meta: meta,
	})
}

// GetSubscription retrieves a single subscription by ID
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid subscription ID")
		return
	}

	var subscription models.Subscription
	if err := h.db.Preload("User").First(&subscription, id).Error; err != nil {
		h.respondWithError(w, http.StatusNotFound, "Subscription not found")
		return
	}

	response := SubscriptionResponse{
		Subscription: subscription,
		IsExpired:    subscription.EndDate.Before(time.Now()),
	}

	h.respondWithJSON(w, http.StatusOK, Response{Data: response})
}

// GetUserSubscriptions gets all subscriptions for a specific user
func (h *SubscriptionHandler) GetUserSubscriptions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userID"], 10, 32)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		h.respondWithError(w, http.StatusNotFound, "User not found")
		return
	}

	queryParams := r.URL.Query()
	var isExpiredPtr *bool
	if expiredStr := queryParams.Get("expired"); expiredStr != "" {
		isExpired, err := strconv.ParseBool(expiredStr)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid expired parameter. Use 'true' or 'false'")
			return
		}
		isExpiredPtr = &isExpired
	}

	query := h.db.Model(&models.Subscription{}).Where("user_id = ?", userID)

	now := time.Now()
	if isExpiredPtr != nil {
		if *isExpiredPtr {
			query = query.Where("end_date < ?", now)
		} else {
			query = query.Where("end_date >= ?", now)
		}
	}

	var subscriptions []models.Subscription
	if err := query.Find(&subscriptions).Error; err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve subscriptions")
		return
	}

	var responseSubscriptions []SubscriptionResponse
	for _, sub := range subscriptions {
		responseSubscriptions = append(responseSubscriptions, SubscriptionResponse{
			Subscription: sub,
			IsExpired:    sub.EndDate.Before(now),
		})
	}

	h.respondWithJSON(w, http.StatusOK, Response{Data: responseSubscriptions})
}

// GetActiveSubscription gets the current active subscription for a user
func (h *SubscriptionHandler) GetActiveSubscription(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userID"], 10, 32)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	now := time.Now()
	var subscription models.Subscription

	err = h.db.Where("user_id = ? AND end_date >= ? AND status = ?", userID, now, models.SubscriptionActive).
		Order("end_date DESC"). // the subscription that expires the latest
		Preload("User").
		First(&subscription).Error

	if err != nil {
		h.respondWithError(w, http.StatusNotFound, "No active subscription found for this user")
		return
	}

	response := SubscriptionResponse{
		Subscription: subscription,
		IsExpired:    false,
	}

	h.respondWithJSON(w, http.StatusOK, Response{Data: response})
}

// applySubscriptionFilters applies filters to a subscription query
func (h *SubscriptionHandler) applySubscriptionFilters(query *gorm.DB, filter SubscriptionFilter) *gorm.DB {
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	if filter.Plan != "" {
		query = query.Where("plan = ?", filter.Plan)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if filter.MinPrice != 0 {
		query = query.Where("price >= ?", filter.MinPrice)
	}

	if filter.MaxPrice != 0 {
		query = query.Where("price <= ?", filter.MaxPrice)
	}

	if !filter.StartDate.IsZero() {
		query = query.Where("start_date >= ?", filter.StartDate)
	}

	if !filter.EndDate.IsZero() {
		query = query.Where("end_date <= ?", filter.EndDate)
	}

	now := time.Now()
	if filter.IsExpired != nil {
		if *filter.IsExpired {
			query = query.Where("end_date < ?", now)
		} else {
			query = query.Where("end_date >= ?", now)
		}
	}

	return query
}

// Helper function to respond with an error
func (h *SubscriptionHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, Response{Error: message})
}

// Helper function to respond with JSON
func (h *SubscriptionHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
