package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/brianmaseno/readypips-sub001/cmd/utils"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/login", utils.RateLimitMiddleware(h.handleLogin)).Methods("POST")
	router.HandleFunc("/admin/me", utils.AdminAuthMiddleware(h.GetCurrentAdmin)).Methods("GET")

	router.HandleFunc("/admins", utils.AdminAuthMiddleware(h.CreateAdmin)).Methods("POST")
	router.HandleFunc("/admins", utils.AdminAuthMiddleware(h.GetAdmins)).Methods("GET")
	router.HandleFunc("/admins/{id}", utils.AdminAuthMiddleware(h.GetAdmin)).Methods("GET")
	router.HandleFunc("/admins/{id}", utils.AdminAuthMiddleware(h.UpdateAdmin)).Methods("PUT")
	router.HandleFunc("/admins/{id}", utils.AdminAuthMiddleware(h.DeleteAdmin)).Methods("DELETE")
}

// requireSuperadmin loads the calling admin and checks it can manage other
// admin accounts. Writes the error response itself when the check fails.
func (h *Handler) requireSuperadmin(w http.ResponseWriter, r *http.Request) (*models.Admin, bool) {
	adminID, err := utils.GetAdminIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	var admin models.Admin
	if err := h.db.First(&admin, adminID).Error; err != nil {
		http.Error(w, "Admin not found", http.StatusUnauthorized)
		return nil, false
	}

	if !admin.IsActive {
		http.Error(w, "Admin account is deactivated", http.StatusForbidden)
		return nil, false
	}

	if !admin.HasPermission("manage_admins") {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return nil, false
	}

	return &admin, true
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var admin models.Admin
	if err := h.db.Where("email = ?", loginRequest.Email).First(&admin).Error; err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if !admin.IsActive {
		http.Error(w, "Admin account is deactivated", http.StatusForbidden)
		return
	}

	token, err := GenerateAdminJWT(admin.ID, 12*time.Hour)
	if err != nil {
		http.Error(w, "Error generating token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "Login successful",
		"access_token": token,
		"admin": map[string]interface{}{
			"id":        admin.ID,
			"full_name": admin.FullName,
			"email":     admin.Email,
			"role":      admin.Role,
		},
	})
}

// GenerateAdminJWT issues an admin token signed with ADMIN_SECRET_KEY so a
// user token can never pass the admin middleware.
func GenerateAdminJWT(adminID uint, ttl time.Duration) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(adminID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("ADMIN_SECRET_KEY")))
}

func (h *Handler) GetCurrentAdmin(w http.ResponseWriter, r *http.Request) {
	adminID, err := utils.GetAdminIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var admin models.Admin
	if err := h.db.First(&admin, adminID).Error; err != nil {
		http.Error(w, "Admin not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(admin)
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireSuperadmin(w, r); !ok {
		return
	}

	var req struct {
		FullName    string `json:"full_name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		Role        string `json:"role"`
		Permissions string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.FullName == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	var existing models.Admin
	if result := h.db.Where("email = ?", req.Email).First(&existing); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		http.Error(w, "Email is already in use", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	role := req.Role
	if role == "" {
		role = "admin"
	}

	admin := models.Admin{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Role:         role,
		IsActive:     true,
		Permissions:  req.Permissions,
	}

	if err := h.db.Create(&admin).Error; err != nil {
		http.Error(w, "Error creating admin", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(admin)
}

func (h *Handler) GetAdmins(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireSuperadmin(w, r); !ok {
		return
	}

	var admins []models.Admin
	if err := h.db.Order("created_at DESC").Find(&admins).Error; err != nil {
		http.Error(w, "Error retrieving admins", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"admins": admins,
		"total":  len(admins),
	})
}

func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireSuperadmin(w, r); !ok {
		return
	}

	vars := mux.Vars(r)
	adminID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid admin ID", http.StatusBadRequest)
		return
	}

	var admin models.Admin
	if err := h.db.First(&admin, adminID).Error; err != nil {
		http.Error(w, "Admin not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(admin)
}

func (h *Handler) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireSuperadmin(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	adminID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid admin ID", http.StatusBadRequest)
		return
	}

	var req struct {
		FullName    *string `json:"full_name"`
		Role        *string `json:"role"`
		IsActive    *bool   `json:"is_active"`
		Permissions *string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// An admin cannot deactivate its own account.
	if req.IsActive != nil && !*req.IsActive && uint(adminID) == caller.ID {
		http.Error(w, "Cannot deactivate your own account", http.StatusBadRequest)
		return
	}

	var admin models.Admin
	if err := h.db.First(&admin, adminID).Error; err != nil {
		http.Error(w, "Admin not found", http.StatusNotFound)
		return
	}

	if req.FullName != nil {
		admin.FullName = *req.FullName
	}
	if req.Role != nil {
		admin.Role = *req.Role
	}
	if req.IsActive != nil {
		admin.IsActive = *req.IsActive
	}
	if req.Permissions != nil {
		admin.Permissions = *req.Permissions
	}

	if err := h.db.Save(&admin).Error; err != nil {
		http.Error(w, "Error updating admin", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(admin)
}

func (h *Handler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireSuperadmin(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	adminID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid admin ID", http.StatusBadRequest)
		return
	}

	if uint(adminID) == caller.ID {
		http.Error(w, "Cannot delete your own account", http.StatusBadRequest)
		return
	}

	if err := h.db.Delete(&models.Admin{}, adminID).Error; err != nil {
		http.Error(w, "Error deleting admin", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Admin deleted successfully",
	})
}
