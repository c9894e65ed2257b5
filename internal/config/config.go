package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBName     string
	DBHost     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	BotToken string

	MerchantID      string
	MerchantKey     string
	CheckoutBaseURL string
	GatewayAddr     string
	GatewayPath     string
	// GatewayAllowedIPs restricts the callback endpoint; empty means no
	// IP filtering (Basic auth still applies).
	GatewayAllowedIPs []string

	FreePlanName string
	CycleDays    int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "transkript_bot"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		MerchantID:        getEnv("PAYME_MERCHANT_ID", ""),
		MerchantKey:       getEnv("PAYME_MERCHANT_KEY", ""),
		CheckoutBaseURL:   getEnv("PAYME_CHECKOUT_URL", "https://checkout.paycom.uz/"),
		GatewayAddr:       getEnv("GATEWAY_LISTEN_ADDR", ":8080"),
		GatewayPath:       getEnv("GATEWAY_PATH", "/payme"),
		GatewayAllowedIPs: splitCSV(getEnv("PAYME_ALLOWED_IPS", "")),

		FreePlanName: getEnv("FREE_PLAN_NAME", "free"),
		CycleDays:    getEnvInt("BILLING_CYCLE_DAYS", 30),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using %d", key, fallback)
	}
	return fallback
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
