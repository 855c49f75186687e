package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lpernett/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Perceptus-Labs/voicenav-go-sdk/commands"
	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the voice server
type Config struct {
	// Server
	Port     string
	LogLevel string
	Locale   string

	// Voice room
	RoomURL       string
	RoomAPIKey    string
	RoomAPISecret string

	// Token endpoint
	AuthJWTSecret      string
	TokenTTL           time.Duration
	TokenRatePerMinute int

	// Transcript storage
	TranscriptBackend     string
	RedisHost             string
	RedisPassword         string
	RedisDB               int
	TranscriptArchivePath string

	// Speech to text
	DeepgramAPIKey string
	STTLanguage    string

	// Timing
	ClickDelay      time.Duration
	ScanSettleDelay time.Duration
	FlushDelay      time.Duration

	RoutesFile string
	Routes     []models.Route
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Locale:   getEnv("LOCALE", "en"),

		RoomURL:       getEnv("ROOM_URL", "ws://localhost:7880"),
		RoomAPIKey:    getEnv("ROOM_API_KEY", "devkey"),
		RoomAPISecret: getEnv("ROOM_API_SECRET", ""),

		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		TokenTTL:           getEnvDuration("TOKEN_TTL", time.Hour),
		TokenRatePerMinute: getEnvInt("TOKEN_RATE_PER_MINUTE", 10),

		TranscriptBackend:     strings.ToLower(getEnv("TRANSCRIPT_BACKEND", BackendMemory)),
		RedisHost:             getEnv("REDIS_HOST", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		TranscriptArchivePath: getEnv("TRANSCRIPT_ARCHIVE_PATH", "./data/transcripts.db"),

		DeepgramAPIKey: getEnv("DEEPGRAM_API_KEY", ""),
		STTLanguage:    getEnv("STT_LANGUAGE", "en"),

		ClickDelay:      getEnvDuration("CLICK_DELAY", 1150*time.Millisecond),
		ScanSettleDelay: getEnvDuration("SCAN_SETTLE_DELAY", 400*time.Millisecond),
		FlushDelay:      getEnvDuration("FLUSH_DELAY", 5*time.Millisecond),

		RoutesFile: getEnv("ROUTES_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	routes, err := LoadRoutes(cfg.RoutesFile)
	if err != nil {
		return nil, err
	}
	cfg.Routes = routes

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RoomAPISecret == "" {
		return fmt.Errorf("ROOM_API_SECRET is required")
	}
	if c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	switch c.TranscriptBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("TRANSCRIPT_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.TranscriptBackend)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.TokenRatePerMinute <= 0 {
		return fmt.Errorf("TOKEN_RATE_PER_MINUTE must be positive")
	}
	return nil
}

type routesFile struct {
	Routes []models.Route `yaml:"routes"`
}

// LoadRoutes reads the route table from a YAML file. An empty path yields
// the built-in dashboard routes.
func LoadRoutes(path string) ([]models.Route, error) {
	if path == "" {
		return append([]models.Route(nil), commands.DefaultRoutes...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	return ParseRoutes(data)
}

func ParseRoutes(data []byte) ([]models.Route, error) {
	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}
	if len(file.Routes) == 0 {
		return nil, errors.New("routes file defines no routes")
	}

	seen := make(map[string]bool, len(file.Routes))
	for i := range file.Routes {
		r := &file.Routes[i]
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return nil, fmt.Errorf("route %d: name is required", i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("route %q defined twice", r.Name)
		}
		seen[r.Name] = true
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("route %q: path must start with /", r.Name)
		}
		if r.LabelEN == "" {
			r.LabelEN = r.Name
		}
	}
	return file.Routes, nil
}

// Helper functions for getting environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
