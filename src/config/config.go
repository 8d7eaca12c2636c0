package config

import (
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	JWTSecret          string
	Port               string
	DatabasePath       string
	LogLevel           string
	CSRFAuthKey        []byte
	MarketDataPath     string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	MaxUploadSizeBytes int64
	RateLimitEvery     time.Duration
	RateLimitBurst     int

	// Batch processing
	WorkerCount int // worker pool size for independent (fund, security) groups

	// Pre-euro redenomination of transaction prices (FIM -> EUR).
	AdjustPriceBefore1999 bool
	RedenominationDivisor float64

	EmailServiceProvider string

	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	MailgunDomain        string
	MailgunPrivateAPIKey string

	SenderEmail   string
	SenderName    string
	OperatorEmail string // receives fault notifications for processed batches
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found. Relying on OS environment variables and defaults. Error (if any):", err)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "insecure-development-jwt-secret-key-minimum-32-bytes")
	if jwtSecret == "insecure-development-jwt-secret-key-minimum-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	csrfAuthKeyStr := getEnv("CSRF_AUTH_KEY", "insecure-development-csrf-key-min-32-bytes!!")
	if len(csrfAuthKeyStr) < 32 {
		log.Fatalf("FATAL: CSRF_AUTH_KEY must be at least 32 bytes long. Current length: %d", len(csrfAuthKeyStr))
	}

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	workerCount := getEnvAsInt("WORKER_COUNT", runtime.NumCPU())
	if workerCount < 1 {
		log.Printf("WARNING: WORKER_COUNT must be positive, got %d. Using 1.", workerCount)
		workerCount = 1
	}

	redenominationDivisorStr := getEnv("REDENOMINATION_DIVISOR", "5.94573")
	redenominationDivisor, err := strconv.ParseFloat(redenominationDivisorStr, 64)
	if err != nil || redenominationDivisor <= 0 {
		log.Printf("WARNING: Invalid REDENOMINATION_DIVISOR '%s'. Using default 5.94573.", redenominationDivisorStr)
		redenominationDivisor = 5.94573
	}

	Cfg = &AppConfig{
		JWTSecret:          jwtSecret,
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./fundfolio.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CSRFAuthKey:        []byte(csrfAuthKeyStr),
		MarketDataPath:     getEnv("MARKET_DATA_PATH", "data/eod_stocks.csv"),
		AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute),
		RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		MaxUploadSizeBytes: maxUploadSizeBytes,
		RateLimitEvery:     getEnvAsDuration("RATE_LIMIT_EVERY", 100*time.Millisecond),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 30),

		WorkerCount: workerCount,

		AdjustPriceBefore1999: getEnv("ADJUST_PRICE_BEFORE_1999", "true") == "true",
		RedenominationDivisor: redenominationDivisor,

		EmailServiceProvider: getEnv("EMAIL_SERVICE_PROVIDER", "mock"),

		SMTPServer:   getEnv("SMTP_SERVER", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),

		SenderEmail:   getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:    getEnv("SENDER_NAME", "Fundfolio"),
		OperatorEmail: getEnv("OPERATOR_EMAIL", ""),
	}

	if Cfg.EmailServiceProvider == "mailgun" {
		if Cfg.MailgunDomain == "" {
			log.Fatalf("FATAL: MAILGUN_DOMAIN is required when EMAIL_SERVICE_PROVIDER is 'mailgun'.")
		}
		if Cfg.MailgunPrivateAPIKey == "" {
			log.Fatalf("FATAL: MAILGUN_PRIVATE_API_KEY is required when EMAIL_SERVICE_PROVIDER is 'mailgun'.")
		}
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Workers=%d, EmailProvider=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.WorkerCount, Cfg.EmailServiceProvider)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
