// Package config reads the process configuration from the environment (optionally seeded
// from a .env file) and the world definition from a viper-readable file.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	LogLevel           string
	ServerRunAddress   string
	DatabaseURI        string
	RabbitMQURL        string
	EventsExchange     string
	JWTSecret          string
	QueryTimeout       time.Duration
	QueueCapacity      int
	StockPruneSchedule string
	WorldConfig        string
	SeedFile           string
	GMUsers            []string
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default values")
	}
	Load()
}

// Load reads the environment into the package variables.
func Load() {
	LogLevel = getEnv("LOG_LEVEL", "info")
	ServerRunAddress = getEnv("SERVER_RUN_ADDRESS", "0.0.0.0:8080")

	// Empty selects the in-memory store.
	DatabaseURI = os.Getenv("DATABASE_URI")
	// Empty logs events instead of publishing them.
	RabbitMQURL = os.Getenv("RABBITMQ_URL")

	EventsExchange = getEnv("EVENTS_EXCHANGE", "questboard.events")
	JWTSecret = getEnv("JWT_SECRET", "supersecretkey")
	StockPruneSchedule = getEnv("STOCK_PRUNE_SCHEDULE", "@every 10m")
	WorldConfig = os.Getenv("WORLD_CONFIG")
	SeedFile = os.Getenv("SEED_FILE")

	QueryTimeout = 5 * time.Second
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("Invalid QUERY_TIMEOUT %q, using %s", v, QueryTimeout)
		} else {
			QueryTimeout = d
		}
	}

	QueueCapacity = 64
	if v := os.Getenv("QUEUE_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("Invalid QUEUE_CAPACITY %q, using %d", v, QueueCapacity)
		} else {
			QueueCapacity = n
		}
	}

	GMUsers = nil
	for _, name := range strings.Split(os.Getenv("GM_USERS"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			GMUsers = append(GMUsers, name)
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
