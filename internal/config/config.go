package config

import (
	"fmt"
	"os"
)

// Config holds all runtime configuration, sourced from environment variables.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	// ServerPort is the TCP port the banking protocol listens on.
	// "0" asks the OS for a free port, which the tests rely on.
	ServerPort string
	// HealthPort is the HTTP port for the /health endpoint. Empty disables it.
	HealthPort string
}

// Load reads configuration from the environment, falling back to defaults
// suitable for local development.
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "securebank"),
		ServerPort: getEnv("SERVER_PORT", "4000"),
		HealthPort: getEnv("HEALTH_PORT", "8080"),
	}
}

// GetDBConnectionString builds the PostgreSQL connection string.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
