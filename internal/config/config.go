package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ReportTimezone        string
	// MonthlyIncludesDailyExpenses counts daily expense rows in monthly totals.
	MonthlyIncludesDailyExpenses bool
	StorageURL                   string
	StorageKey                   string
	StorageBucket                string
}

// LoadEnvFile seeds the process environment from a dotenv file. Variables
// that are already set win, and a missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "60"))
	if err != nil || ttl < 1 {
		ttl = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                         getEnv("PORT", "8080"),
		AllowedOrigin:                getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:                  os.Getenv("DATABASE_URL"),
		AutoMigrate:                  getBool("AUTO_MIGRATE", false),
		RedisAddr:                    os.Getenv("REDIS_ADDR"),
		RedisPassword:                os.Getenv("REDIS_PASSWORD"),
		RedisDB:                      redisDB,
		ReportCacheTTLSeconds:        ttl,
		AuthSecret:                   strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:        tokenTTL,
		ReportTimezone:               getEnv("REPORT_TIMEZONE", "UTC"),
		MonthlyIncludesDailyExpenses: getBool("MONTHLY_REPORT_INCLUDES_DAILY_EXPENSES", false),
		StorageURL:                   strings.TrimRight(os.Getenv("STORAGE_URL"), "/"),
		StorageKey:                   strings.TrimSpace(os.Getenv("STORAGE_KEY")),
		StorageBucket:                getEnv("STORAGE_BUCKET", "menu-images"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Location resolves the reporting timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.ReportTimezone)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}
