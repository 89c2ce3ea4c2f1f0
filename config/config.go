package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все настройки приложения
type Config struct {
	Port string
	DSN  string

	// Время жизни токенов по типу ("access", "refresh")
	TokenTypeTTL map[string]time.Duration

	RedisAddr     string
	RedisPassword string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	TronNodeURL string
	EVMRPCURL   string

	// Интервал опроса сетей наблюдателем эскроу
	WatcherInterval time.Duration
}

// Load читает .env (если есть) и возвращает заполненный Config
func Load() (*Config, error) {
	// Попробуем загрузить файл .env — если его нет, просто пропускаем
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN must be set")
	}

	accessTTL, err := durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := durationEnv("REFRESH_TOKEN_TTL", 720*time.Hour)
	if err != nil {
		return nil, err
	}
	watcherInterval, err := durationEnv("WATCHER_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	useSSL, err := boolEnv("MINIO_USE_SSL", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port: port,
		DSN:  dsn,
		TokenTypeTTL: map[string]time.Duration{
			"access":  accessTTL,
			"refresh": refreshTTL,
		},
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     os.Getenv("MINIO_BUCKET"),
		MinioUseSSL:     useSSL,
		TronNodeURL:     os.Getenv("TRON_NODE_URL"),
		EVMRPCURL:       os.Getenv("EVM_RPC_URL"),
		WatcherInterval: watcherInterval,
	}, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func boolEnv(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}
