package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr       string
	StorageBackend   string
	DBPath           string
	StorageLocalPath string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	FavoritesKey     string
	SessionSecret    string
	SessionTTL       time.Duration
	ClientIdleTTL    time.Duration
	MaxClients       int
	LoginDelay       time.Duration
	ReserveDelay     time.Duration
	RabbitMQURL      string
	LogLevel         string
	LogFile          string
	LogFormat        string
}

// Load reads configuration from the environment. Values in envFiles that
// exist are loaded first without overriding variables already set.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := getEnvDuration("SESSION_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	clientIdleTTL, err := getEnvDuration("CLIENT_IDLE_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	maxClients, err := getEnvInt("MAX_CLIENTS", 10000)
	if err != nil {
		return nil, err
	}
	loginDelay, err := getEnvDuration("LOGIN_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	reserveDelay, err := getEnvDuration("RESERVE_DELAY", 1500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		StorageBackend:   getEnv("STORAGE_BACKEND", "sqlite"),
		DBPath:           getEnv("DB_PATH", "/data/sparx.db"),
		StorageLocalPath: getEnv("STORAGE_LOCAL_PATH", "/data/kv"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          redisDB,
		FavoritesKey:     getEnv("FAVORITES_KEY", "sparx_favs_v2"),
		SessionSecret:    getEnv("SESSION_SECRET", ""),
		SessionTTL:       sessionTTL,
		ClientIdleTTL:    clientIdleTTL,
		MaxClients:       maxClients,
		LoginDelay:       loginDelay,
		ReserveDelay:     reserveDelay,
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}

	switch cfg.StorageBackend {
	case "sqlite", "local", "redis":
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
