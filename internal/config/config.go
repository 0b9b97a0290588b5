package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For durations

	"github.com/joho/godotenv" // For loading .env files
)

// Presence backends
const (
	PresenceNATS   = "nats"   // JetStream KV bucket
	PresenceMemory = "memory" // In-process, for local development
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	IsProd     bool   // Is production environment

	SessionTTL   time.Duration // Token and session storage lifetime
	SessionSweep time.Duration // How often expired sessions are evicted from memory

	PresenceBackend string // "nats" or "memory"
	NATSURL         string // NATS server url
	PresenceBucket  string // JetStream KV bucket holding presence records

	PaymentAPIURL  string        // Base url of the payment API, defaults to this server
	PaymentTimeout time.Duration // Per-call gateway timeout

	KakaoAdminKey string // KakaoPay admin key; the proxy is mounted only when set
	KakaoCID      string // KakaoPay merchant id
	KakaoBaseURL  string // KakaoPay API host
	PublicURL     string // Where browsers reach this server, used for gateway return urls
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	port := getEnv("APP_PORT", "8080")
	return &Config{
		AppPort:    port,                           // Application port
		DBUser:     os.Getenv("DB_USER"),           // Database user
		DBPassword: os.Getenv("DB_PASSWORD"),       // Database password
		DBHost:     os.Getenv("DB_HOST"),           // Database host
		DBPort:     os.Getenv("DB_PORT"),           // Database port
		DBName:     os.Getenv("DB_NAME"),           // Database name
		JWTSecret:  os.Getenv("JWT_SECRET"),        // JWT secret key
		RedisAddr:  os.Getenv("REDIS_ADDR"),        // Redis server address
		RedisPass:  os.Getenv("REDIS_PASS"),        // Redis password
		RedisDB:    redisDB,                        // Redis database number
		IsProd:     os.Getenv("IS_PROD") == "true", // Is production environment

		SessionTTL:   getDuration("SESSION_TTL", 12*time.Hour),
		SessionSweep: getDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		PresenceBackend: getEnv("PRESENCE_BACKEND", PresenceNATS),
		NATSURL:         getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		PresenceBucket:  getEnv("PRESENCE_BUCKET", "KIOSK_PRESENCE"),

		PaymentAPIURL:  getEnv("PAYMENT_API_URL", "http://127.0.0.1:"+port),
		PaymentTimeout: getDuration("PAYMENT_TIMEOUT", 30*time.Second),

		KakaoAdminKey: os.Getenv("KAKAO_ADMIN_KEY"),
		KakaoCID:      getEnv("KAKAO_CID", "TC0ONETIME"),
		KakaoBaseURL:  getEnv("KAKAO_BASE_URL", "https://kapi.kakao.com"),
		PublicURL:     getEnv("PUBLIC_URL", "http://localhost:"+port),
	}
}

// getEnv returns the variable or fallback when unset
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getDuration parses values like "30s"; bad values fall back
func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
