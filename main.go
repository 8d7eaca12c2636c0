package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fundfolio/backend/src/config"
	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/handlers"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/parsers"
	"github.com/username/fundfolio/backend/src/processors"
	"github.com/username/fundfolio/backend/src/security"
	"github.com/username/fundfolio/backend/src/services"
	"golang.org/x/time/rate"
)

func rateLimitMiddleware(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Every(config.Cfg.RateLimitEvery), config.Cfg.RateLimitBurst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loadMarketDataFile seeds the adjustment series from the configured
// end-of-day CSV. A missing file is not fatal; factors can still be loaded
// through the market data upload endpoint.
func loadMarketDataFile(adjustments *processors.AdjustmentProcessor, path string) {
	file, err := os.Open(path)
	if err != nil {
		logger.L.Warn("Market data file not loaded at startup", "path", path, "error", err)
		return
	}
	defer file.Close()

	records, err := parsers.NewMarketDataParser().Parse(file)
	if err != nil {
		logger.L.Error("Failed to parse market data file", "path", path, "error", err)
		return
	}
	if _, err := adjustments.Load(records); err != nil {
		logger.L.Error("Failed to build adjustment series", "path", path, "error", err)
	}
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Fundfolio backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing adjustment series...")
	adjustments := processors.NewAdjustmentProcessor()
	loadMarketDataFile(adjustments, config.Cfg.MarketDataPath)

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	userHandler := handlers.NewUserHandler(authService)

	streamBuilder := parsers.NewStreamBuilder(adjustments, config.Cfg.AdjustPriceBefore1999, config.Cfg.RedenominationDivisor)
	batchProcessor := processors.NewBatchProcessor(
		processors.NewFIFOProcessor(),
		processors.NewExpansionProcessor(),
		config.Cfg.WorkerCount,
	)

	ledgerService := services.NewLedgerService(
		parsers.NewTransactionParser(),
		parsers.NewMarketDataParser(),
		adjustments,
		streamBuilder,
		batchProcessor,
		emailService,
		reportCache,
	)

	uploadHandler := handlers.NewUploadHandler(ledgerService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	holdingsHandler := handlers.NewHoldingsHandler(ledgerService)
	txHandler := handlers.NewTransactionHandler(ledgerService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)

	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.HandleFunc("POST /logout", userHandler.AuthMiddleware(userHandler.LogoutUserHandler))

	apiRouter.Handle("/api/auth/", http.StripPrefix("/api/auth", handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey)(authActionRouter)))

	csrfProtection := handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey)
	applyCsrfAndAuth := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(http.HandlerFunc(userHandler.AuthMiddleware(handler)))
	}

	apiRouter.Handle("POST /api/upload", applyCsrfAndAuth(uploadHandler.HandleUpload))
	apiRouter.Handle("POST /api/marketdata", applyCsrfAndAuth(uploadHandler.HandleMarketDataUpload))
	apiRouter.Handle("GET /api/transactions", applyCsrfAndAuth(txHandler.HandleGetTransactions))
	apiRouter.Handle("GET /api/transactions/annotated", applyCsrfAndAuth(ledgerHandler.HandleGetAnnotatedTransactions))
	apiRouter.Handle("GET /api/profits", applyCsrfAndAuth(ledgerHandler.HandleGetRealizedProfits))
	apiRouter.Handle("GET /api/profits/summary", applyCsrfAndAuth(ledgerHandler.HandleGetProfitSummary))
	apiRouter.Handle("GET /api/holdings/daily", applyCsrfAndAuth(holdingsHandler.HandleGetDailyHoldings))
	apiRouter.Handle("GET /api/holdings/current", applyCsrfAndAuth(holdingsHandler.HandleGetCurrentHoldings))
	apiRouter.Handle("GET /api/faults", applyCsrfAndAuth(ledgerHandler.HandleGetFaults))
	apiRouter.Handle("DELETE /api/transactions/all", applyCsrfAndAuth(txHandler.HandleDeleteAllTransactions))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "FUNDFOLIO Backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
