package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and passed down by value reference.
// Nothing mutates it afterwards; the Midtrans credentials in particular
// are injected into the gateway client instead of living in a global.
type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	AppPort string
	AppEnv  string

	MidtransServerKey  string
	MidtransProduction bool

	AMQPURL   string
	AMQPQueue string

	JWTSecret string

	ExpirySweepInterval time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),

		AppPort: os.Getenv("APP_PORT"),
		AppEnv:  os.Getenv("APP_ENV"),

		MidtransServerKey:  os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransProduction: os.Getenv("MIDTRANS_IS_PRODUCTION") == "true",

		AMQPURL:   os.Getenv("AMQP_URL"),
		AMQPQueue: getEnvDefault("AMQP_QUEUE", "payment-notifications"),

		JWTSecret: os.Getenv("SECRET_KEY"),

		ExpirySweepInterval: parseDurationDefault(os.Getenv("EXPIRY_SWEEP_INTERVAL"), time.Minute),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
