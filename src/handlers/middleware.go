package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/model"
	"github.com/username/fundfolio/backend/src/utils"
)

// AuthMiddleware validates the bearer token and the backing session, then
// stores the authenticated userID in the request context.
func (h *UserHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			logger.L.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		userIDStr, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			logger.L.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		if _, err := model.GetSessionByToken(database.DB, tokenString); err != nil {
			logger.L.Warn("AuthMiddleware: Session validation failed", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "Invalid or expired session", http.StatusUnauthorized)
			return
		}

		userIDInt, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			logger.L.Error("AuthMiddleware: Invalid user ID format in token", "userIDStr", userIDStr, "error", err)
			utils.SendJSONError(w, "Invalid user ID in token", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userIDInt)
		next(w, r.WithContext(ctx))
	}
}
