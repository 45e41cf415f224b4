package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port                   string
	DBURL                  string
	JWTSecret              string
	JWTTTLMinutes          int
	ReadTimeoutSecs        int
	WriteTimeoutSecs       int
	IdleTimeoutSecs        int
	DBMaxConns             int
	DBMinConns             int
	DBMaxIdleSecs          int
	DBMaxLifeSecs          int
	DBConnTimeoutSecs      int
	DBStatementCache       int
	ReviewMaxRetries       int
	ReviewLockTimeoutMS    int
	ReviewCreateRatePerMin int
	APIRatePerMin          int
	CORSAllowedOrigins     []string
	LogLevel               string
	LogFormat              string
}

// Load reads configuration from environment variables, applying defaults and
// validation. Values from the given dotenv files (".env" when none are given)
// fill in variables that are not already set; missing files are ignored.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		DBURL:                  os.Getenv("DB_URL"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		JWTTTLMinutes:          getEnvInt("JWT_TTL_MINUTES", 60),
		ReadTimeoutSecs:        getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:       getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:        getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:             getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:             getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:          getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:          getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs:      getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:       getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		ReviewMaxRetries:       getEnvInt("REVIEW_MAX_RETRIES", 3),
		ReviewLockTimeoutMS:    getEnvInt("REVIEW_LOCK_TIMEOUT_MS", 2000),
		ReviewCreateRatePerMin: getEnvInt("REVIEW_CREATE_RATE_PER_MIN", 10),
		APIRatePerMin:          getEnvInt("API_RATE_PER_MIN", 600),
		CORSAllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.JWTTTLMinutes <= 0 {
		return Config{}, fmt.Errorf("JWT_TTL_MINUTES must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.ReviewMaxRetries < 0 {
		return Config{}, fmt.Errorf("REVIEW_MAX_RETRIES must be non-negative")
	}
	if cfg.ReviewLockTimeoutMS < 0 {
		return Config{}, fmt.Errorf("REVIEW_LOCK_TIMEOUT_MS must be non-negative")
	}
	if cfg.ReviewCreateRatePerMin <= 0 {
		return Config{}, fmt.Errorf("REVIEW_CREATE_RATE_PER_MIN must be positive")
	}
	if cfg.APIRatePerMin <= 0 {
		return Config{}, fmt.Errorf("API_RATE_PER_MIN must be positive")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be json or console")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
