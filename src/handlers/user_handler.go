package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/username/fundfolio/backend/src/config"
	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/model"
	"github.com/username/fundfolio/backend/src/security"
	"github.com/username/fundfolio/backend/src/utils"
)

// contextKey is unexported so the userID key cannot collide with keys from
// other packages.
type contextKey string

const userIDContextKey contextKey = "userID"

type UserHandler struct {
	authService *security.AuthService
}

func NewUserHandler(authService *security.AuthService) *UserHandler {
	return &UserHandler{
		authService: authService,
	}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if credentials.Username == "" || credentials.Password == "" {
		utils.SendJSONError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		utils.SendJSONError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username: credentials.Username,
		Password: hashedPassword,
	}

	if err := user.CreateUser(database.DB); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			utils.SendJSONError(w, "Username already exists", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create user", "username", credentials.Username, "error", err)
		utils.SendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User registered successfully",
	})
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByUsername(database.DB, credentials.Username)
	if err != nil {
		logger.L.Warn("User lookup failed during login", "username", credentials.Username, "error", err)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if err := user.CheckPassword(credentials.Password); err != nil {
		logger.L.Warn("Password check failed", "username", credentials.Username)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	userIDStr := fmt.Sprintf("%d", user.ID)
	accessToken, err := h.authService.GenerateToken(userIDStr)
	if err != nil {
		utils.SendJSONError(w, "Failed to generate access token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		utils.SendJSONError(w, "Failed to generate refresh token", http.StatusInternalServerError)
		return
	}

	session := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		IsBlocked:    false,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		utils.SendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
		},
	})
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if requestBody.RefreshToken == "" {
		utils.SendJSONError(w, "Refresh token is required", http.StatusBadRequest)
		return
	}

	session, err := model.GetSessionByRefreshToken(database.DB, requestBody.RefreshToken)
	if err != nil {
		logger.L.Warn("Refresh token lookup failed", "error", err)
		utils.SendJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	newAccessToken, err := h.authService.GenerateToken(strconv.Itoa(session.UserID))
	if err != nil {
		utils.SendJSONError(w, "Failed to generate new access token", http.StatusInternalServerError)
		return
	}

	if err := model.UpdateSessionAccessToken(database.DB, session.ID, newAccessToken); err != nil {
		utils.SendJSONError(w, "Failed to update session on refresh", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  newAccessToken,
		"refresh_token": session.RefreshToken,
	})
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
		return
	}

	if err := model.DeleteSessionByToken(database.DB, tokenString); err != nil {
		logger.L.Warn("Logout: failed to delete session", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetUserIDFromContext retrieves the userID stored by AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}
