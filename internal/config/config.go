package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	MinIO    MinIOConfig
	CORS     CORSConfig
	Firebase FirebaseConfig
	Store    StoreConfig
	Dedup    DedupConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	PublicURL string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type CORSConfig struct {
	Origins []string
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// Store drivers
const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// StoreConfig selects where conversations, messages and live shares live
type StoreConfig struct {
	Driver string
}

// Dedup drivers
const (
	DedupRedis  = "redis"
	DedupMemory = "memory"
)

// DedupConfig configures the duplicate-send registry
type DedupConfig struct {
	Driver string
	Window time.Duration
}

// ChatConfig holds the chat timings and limits
type ChatConfig struct {
	PageSize         int
	SendLockRelease  time.Duration
	TypingClear      time.Duration
	TypingStale      time.Duration
	DeleteWindow     time.Duration
	LocationInterval time.Duration
	LocationDistance float64
	ProfileTimeout   time.Duration
	RateLimit        float64 // requests per second per user
	RateBurst        int
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Info("⚠️  No .env file found, reading from environment variables")
	}

	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "tripzi"),
			Password: getEnv("DB_PASSWORD", "tripzi"),
			Name:     getEnv("DB_NAME", "tripzi"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			Expiry: getDuration("JWT_EXPIRY", 24*time.Hour),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicURL: getEnv("MINIO_PUBLIC_URL", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "tripzi-media"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		CORS: CORSConfig{
			Origins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", StoreFirestore),
		},
		Dedup: DedupConfig{
			Driver: getEnv("DEDUP_DRIVER", DedupRedis),
			Window: getDuration("DEDUP_WINDOW", 2*time.Second),
		},
		Chat: ChatConfig{
			PageSize:         getInt("CHAT_PAGE_SIZE", 50),
			SendLockRelease:  getDuration("CHAT_SEND_LOCK_RELEASE", 500*time.Millisecond),
			TypingClear:      getDuration("CHAT_TYPING_CLEAR", 3*time.Second),
			TypingStale:      getDuration("CHAT_TYPING_STALE", 5*time.Second),
			DeleteWindow:     getDuration("CHAT_DELETE_WINDOW", 60*time.Minute),
			LocationInterval: getDuration("LIVE_LOCATION_INTERVAL", 10*time.Second),
			LocationDistance: getFloat("LIVE_LOCATION_DISTANCE", 20),
			ProfileTimeout:   getDuration("PROFILE_WRITE_TIMEOUT", 5*time.Second),
			RateLimit:        getFloat("RATE_LIMIT_RPS", 10),
			RateBurst:        getInt("RATE_LIMIT_BURST", 20),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}
