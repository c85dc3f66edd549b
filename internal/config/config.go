package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	ShopID                  string
	NodeID                  string
	Timezone                string
	AuthSecret              string
	AccessTokenTTLMinutes   int
	OpenAIAPIKey            string
	OpenAIModel             string
	IntentCacheTTLSeconds   int
	VoiceRateLimitPerMinute int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		ShopID:                  getEnv("SHOP_ID", "warung-utama"),
		NodeID:                  strings.TrimSpace(os.Getenv("NODE_ID")),
		Timezone:                getEnv("SHOP_TIMEZONE", "Asia/Jakarta"),
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   positiveInt("ACCESS_TOKEN_TTL_MINUTES", 30*24*60),
		OpenAIAPIKey:            strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:             strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
		IntentCacheTTLSeconds:   positiveInt("INTENT_CACHE_TTL_SECONDS", 600),
		VoiceRateLimitPerMinute: positiveInt("VOICE_RATE_LIMIT_PER_MINUTE", 30),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the shop's timezone. Daily summaries and date filters
// use it to find calendar-day boundaries.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("SHOP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) IntentCacheTTL() time.Duration {
	return time.Duration(c.IntentCacheTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
