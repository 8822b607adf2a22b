// Package config loads service configuration from the environment. A local
// .env file is honored when present so development setups need no exported
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/example/id-verify/internal/mrz"
	"github.com/example/id-verify/internal/scanner"
)

// Config holds the service configuration.
type Config struct {
	HTTPAddr    string
	DatabaseDSN string
	RedisAddr   string

	JWTSecret   string
	JWTAudience string

	// OCR collaborator settings.
	OCRLanguage string

	// Engine knobs.
	LayoutName        string
	WindowSize        int
	StabilityFrames   int
	MinChecksumPasses int
	SideFrameBudget   int
	MinQuality        float64
}

// Load reads configuration from the environment, after loading a .env file
// if one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=idverify port=5432 sslmode=disable"),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:       os.Getenv("JWT_AUDIENCE"),
		OCRLanguage:       getEnv("OCR_LANGUAGE", "eng"),
		LayoutName:        getEnv("MRZ_LAYOUT", "TD1"),
		WindowSize:        getEnvInt("CONSENSUS_WINDOW_SIZE", 5),
		StabilityFrames:   getEnvInt("CONSENSUS_STABILITY_FRAMES", 3),
		MinChecksumPasses: getEnvInt("MIN_CHECKSUM_PASSES", 1),
		SideFrameBudget:   getEnvInt("SIDE_FRAME_BUDGET", 120),
		MinQuality:        getEnvFloat("MIN_QUALITY", 0.5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.WindowSize < 1 || c.WindowSize > 60 {
		return fmt.Errorf("CONSENSUS_WINDOW_SIZE must be between 1 and 60, got %d", c.WindowSize)
	}
	if c.StabilityFrames < 1 || c.StabilityFrames > c.WindowSize {
		return fmt.Errorf("CONSENSUS_STABILITY_FRAMES must be between 1 and the window size, got %d", c.StabilityFrames)
	}
	if c.MinChecksumPasses < 1 || c.MinChecksumPasses > 4 {
		return fmt.Errorf("MIN_CHECKSUM_PASSES must be between 1 and 4, got %d", c.MinChecksumPasses)
	}
	if c.MinQuality <= 0 || c.MinQuality >= 1 {
		return fmt.Errorf("MIN_QUALITY must be inside (0, 1), got %v", c.MinQuality)
	}
	return nil
}

// EngineConfig translates the service configuration into scanner settings.
func (c *Config) EngineConfig() scanner.Config {
	engine := scanner.DefaultConfig()
	engine.Layout = mrz.LayoutByName(c.LayoutName)
	engine.WindowSize = c.WindowSize
	engine.StabilityFrames = c.StabilityFrames
	engine.MinChecksumPasses = c.MinChecksumPasses
	engine.SideFrameBudget = c.SideFrameBudget
	engine.Quality.MinAcceptable = c.MinQuality
	return engine
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
