package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	JWT     JWTConfig
	Log     LogConfig
	Storage StorageConfig
	Events  EventsConfig
	CORS    CORSConfig
	// Requests per minute allowed on /auth per client IP.
	AuthRatePerMinute  int
	PollInterval       time.Duration
	SeedSampleDentists bool
	BcryptCost         int
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Address() string {
	return ":" + s.Port
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type LogConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	// "mongo" or "memory"
	Backend string
	// "gridfs", "s3" or "memory"
	BlobBackend string
	S3Bucket    string
	S3Prefix    string
}

type EventsConfig struct {
	KafkaBrokers   []string
	KafkaTopic     string
	TextbeltAPIKey string
	TextbeltURL    string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("API_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGO_DATABASE", "onlyfix"),
			ConnectTimeout: getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getEnvDuration("JWT_TTL", 24*time.Hour),
			Issuer: getEnv("JWT_ISSUER", "onlyfix-api"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Storage: StorageConfig{
			Backend:     getEnv("STORE_BACKEND", "mongo"),
			BlobBackend: getEnv("BLOB_BACKEND", "gridfs"),
			S3Bucket:    getEnv("S3_BUCKET", ""),
			S3Prefix:    getEnv("S3_PREFIX", "checkups"),
		},
		Events: EventsConfig{
			KafkaBrokers:   getEnvSlice("KAFKA_BROKERS", nil),
			KafkaTopic:     getEnv("KAFKA_TOPIC", "checkup-events"),
			TextbeltAPIKey: getEnv("TEXTBELT_API_KEY", ""),
			TextbeltURL:    getEnv("TEXTBELT_URL", "https://textbelt.com/text"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}),
		},
		AuthRatePerMinute:  getEnvInt("AUTH_RATE_PER_MINUTE", 20),
		PollInterval:       getEnvDuration("POLL_INTERVAL", 30*time.Second),
		SeedSampleDentists: getEnvBool("SEED_SAMPLE_DENTISTS", false),
		BcryptCost:         getEnvInt("BCRYPT_COST", 12),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	switch cfg.Storage.Backend {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND %q is not one of mongo, memory", cfg.Storage.Backend))
	}

	switch cfg.Storage.BlobBackend {
	case "gridfs", "memory":
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			errs = append(errs, "S3_BUCKET is required when BLOB_BACKEND=s3")
		}
	default:
		errs = append(errs, fmt.Sprintf("BLOB_BACKEND %q is not one of gridfs, s3, memory", cfg.Storage.BlobBackend))
	}

	if cfg.Storage.BlobBackend == "gridfs" && cfg.Storage.Backend != "mongo" {
		errs = append(errs, "BLOB_BACKEND=gridfs requires STORE_BACKEND=mongo")
	}

	if cfg.PollInterval < time.Second {
		errs = append(errs, "POLL_INTERVAL must be at least 1s")
	}

	if cfg.AuthRatePerMinute <= 0 {
		errs = append(errs, "AUTH_RATE_PER_MINUTE must be positive")
	}

	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		errs = append(errs, "BCRYPT_COST must be between 4 and 31")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
