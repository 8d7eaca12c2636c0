package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/username/fundfolio/backend/src/logger"
)

const csrfCookieName = "_csrf_token"

// GetCSRFToken issues a fresh CSRF token as both a cookie and a response
// header, for the double-submit check in CSRFMiddleware.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := generateRandomToken()
	if err != nil {
		logger.L.Error("Failed to generate CSRF token", "error", err)
		http.Error(w, "Failed to generate CSRF token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   false, // behind TLS termination in production
		MaxAge:   3600,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-CSRF-Token", token)
	json.NewEncoder(w).Encode(map[string]string{
		"csrfToken": token,
	})
}

func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// CSRFMiddleware compares the X-CSRF-Token header against the CSRF cookie for
// every state-changing request. OPTIONS preflights pass through.
func CSRFMiddleware(authKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, err := r.Cookie(csrfCookieName)

			if headerToken != "" && err == nil && headerToken == cookie.Value {
				next.ServeHTTP(w, r)
				return
			}

			logger.L.Warn("CSRF validation failed",
				"method", r.Method,
				"path", r.URL.Path,
				"hasHeaderToken", headerToken != "",
				"hasCookie", err == nil)
			http.Error(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}
