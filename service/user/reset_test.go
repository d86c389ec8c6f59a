package user

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.PasswordResetToken{}))
	return db
}

func seedUserWithResetToken(t *testing.T, db *gorm.DB, token string, expiresAt time.Time) models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("original-password"), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := models.User{
		FullName:     "Reset Target",
		Email:        "reset@example.com",
		PasswordHash: string(hash),
	}
	require.NoError(t, db.Create(&user).Error)

	require.NoError(t, db.Create(&models.PasswordResetToken{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	}).Error)

	return user
}

func postResetConfirm(t *testing.T, db *gorm.DB, userID uint, payload map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	router := mux.NewRouter()
	NewHandler(db).RegisterRoutes(router)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/reset-password/%d/confirm", userID), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPasswordResetConfirmRequiresToken(t *testing.T) {
	db := setupTestDB(t)
	user := seedUserWithResetToken(t, db, "123456", time.Now().Add(5*time.Minute))

	t.Run("missing token rejected", func(t *testing.T) {
		rec := postResetConfirm(t, db, user.ID, map[string]string{"password": "hijacked-password"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		rec := postResetConfirm(t, db, user.ID, map[string]string{
			"token":    "654321",
			"password": "hijacked-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var unchanged models.User
		require.NoError(t, db.First(&unchanged, user.ID).Error)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(unchanged.PasswordHash), []byte("original-password")))
	})

	t.Run("valid token resets password", func(t *testing.T) {
		rec := postResetConfirm(t, db, user.ID, map[string]string{
			"token":    "123456",
			"password": "brand-new-password",
		})
		assert.Equal(t, http.StatusOK, rec.Code)

		var updated models.User
		require.NoError(t, db.First(&updated, user.ID).Error)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("brand-new-password")))

		// Token is single-use.
		var count int64
		db.Model(&models.PasswordResetToken{}).Where("user_id = ?", user.ID).Count(&count)
		assert.Zero(t, count)
	})
}

func TestPasswordResetConfirmExpiredToken(t *testing.T) {
	db := setupTestDB(t)
	user := seedUserWithResetToken(t, db, "123456", time.Now().Add(-1*time.Minute))

	rec := postResetConfirm(t, db, user.ID, map[string]string{
		"token":    "123456",
		"password": "brand-new-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var unchanged models.User
	require.NoError(t, db.First(&unchanged, user.ID).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(unchanged.PasswordHash), []byte("original-password")))
}
