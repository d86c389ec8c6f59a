package market

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/brianmaseno/readypips-sub001/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

const (
	overviewCacheKey = "market_overview"
	newsCacheKey     = "market_news"
)

type Handler struct {
	db     *gorm.DB
	cache  *cache.Cache
	client *http.Client
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{
		db: db,
		// Quotes move constantly but the feed tolerates a minute of
		// staleness; news tolerates much more.
		cache:  cache.New(1*time.Minute, 5*time.Minute),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/market/overview", utils.AuthMiddleware(h.GetOverview)).Methods("GET")
	router.HandleFunc("/market/news", utils.AuthMiddleware(h.GetNews)).Methods("GET")
}

type pairOverview struct {
	Pair          string     `json:"pair"`
	LastAction    string     `json:"last_action,omitempty"`
	LastEntry     float64    `json:"last_entry,omitempty"`
	ActiveSignals int64      `json:"active_signals"`
	TotalSignals  int64      `json:"total_signals"`
	LastSignalAt  *time.Time `json:"last_signal_at,omitempty"`
}

// GetOverview summarises signal activity per pair. The result is cached so
// dashboard polling does not hammer the database.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	if cached, found := h.cache.Get(overviewCacheKey); found {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		json.NewEncoder(w).Encode(cached)
		return
	}

	var pairs []string
	if err := h.db.Model(&models.Signal{}).Distinct("pair").Order("pair").Pluck("pair", &pairs).Error; err != nil {
		http.Error(w, "Error retrieving market overview", http.StatusInternalServerError)
		return
	}

	overview := make([]pairOverview, 0, len(pairs))
	for _, pair := range pairs {
		entry := pairOverview{Pair: pair}

		h.db.Model(&models.Signal{}).Where("pair = ?", pair).Count(&entry.TotalSignals)
		h.db.Model(&models.Signal{}).Where("pair = ? AND status = ?", pair, models.SignalStatusActive).Count(&entry.ActiveSignals)

		var last models.Signal
		if err := h.db.Where("pair = ?", pair).Order("created_at DESC").First(&last).Error; err == nil {
			entry.LastAction = last.Action
			entry.LastEntry = last.Entry
			createdAt := last.CreatedAt
			entry.LastSignalAt = &createdAt
		}

		overview = append(overview, entry)
	}

	result := map[string]interface{}{
		"pairs":        overview,
		"generated_at": time.Now(),
	}
	h.cache.Set(overviewCacheKey, result, cache.DefaultExpiration)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	json.NewEncoder(w).Encode(result)
}

// GetNews proxies the configured forex news feed with a long cache window.
func (h *Handler) GetNews(w http.ResponseWriter, r *http.Request) {
	if cached, found := h.cache.Get(newsCacheKey); found {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.Write(cached.([]byte))
		return
	}

	newsURL := os.Getenv("NEWS_API_URL")
	if newsURL == "" {
		http.Error(w, "News feed not configured", http.StatusServiceUnavailable)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, newsURL, nil)
	if err != nil {
		http.Error(w, "Error building news request", http.StatusInternalServerError)
		return
	}
	if apiKey := os.Getenv("NEWS_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		http.Error(w, "Error fetching news", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		http.Error(w, "News feed unavailable", http.StatusBadGateway)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "Error reading news response", http.StatusBadGateway)
		return
	}

	// News moves slower than quotes; hold it for 15 minutes.
	h.cache.Set(newsCacheKey, body, 15*time.Minute)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(body)
}
