package utils

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const UserIDKey contextKey = "userID"
const AdminIDKey contextKey = "adminID"

func GetUserIDFromContext(ctx context.Context) (uint, error) {
	userID, ok := ctx.Value(UserIDKey).(uint)
	if !ok {
		return 0, errors.New("user ID not found in context")
	}
	return userID, nil
}

func GetAdminIDFromContext(ctx context.Context) (uint, error) {
	adminID, ok := ctx.Value(AdminIDKey).(uint)
	if !ok {
		return 0, errors.New("admin ID not found in context")
	}
	return adminID, nil
}

// AuthMiddleware authenticates application users via bearer tokens
// signed with SECRET_KEY.
func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, ok := verifyBearer(w, r, os.Getenv("SECRET_KEY"))
		if !ok {
			return
		}

		userID, err := strconv.ParseUint(subject, 10, 64)
		if err != nil {
			http.Error(w, "Invalid user ID in token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, uint(userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// AdminAuthMiddleware authenticates admins. Admin tokens are a parallel
// scheme signed with ADMIN_SECRET_KEY; a user token never passes here.
func AdminAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, ok := verifyBearer(w, r, os.Getenv("ADMIN_SECRET_KEY"))
		if !ok {
			return
		}

		adminID, err := strconv.ParseUint(subject, 10, 64)
		if err != nil {
			http.Error(w, "Invalid admin ID in token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AdminIDKey, uint(adminID))
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func verifyBearer(w http.ResponseWriter, r *http.Request, secret string) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		http.Error(w, "Authorization header required", http.StatusUnauthorized)
		return "", false
	}

	tokenString := strings.Replace(authHeader, "Bearer ", "", 1)

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})

	if err != nil || !token.Valid {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return "", false
	}

	return claims.Subject, true
}
