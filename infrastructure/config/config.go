package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration, loaded once from the
// environment at startup. Runtime-tunable settings live in the dynamic
// config file instead (see watcher.go).
type Config struct {
	// Server configuration
	ServerAddress string `validate:"required"`
	Environment   string `validate:"oneof=development staging production"`

	// AWS configuration
	AWSRegion     string `validate:"required"`
	DynamoDBTable string `validate:"required"`
	RefIndexName  string `validate:"required"`
	NodeIndexName string `validate:"required"`
	EventBusName  string `validate:"required"`

	// Lambda configuration
	IsLambda bool

	// WebSocket notification configuration
	WebSocketEndpoint string
	ConnectionsTable  string

	// Dynamic configuration file; empty disables hot reload
	DynamicConfigPath string

	// Logging
	LogLevel string `validate:"oneof=debug info warn error"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", "rulechain"),
		RefIndexName:  getEnv("REF_INDEX_NAME", "RefIndex"),
		NodeIndexName: getEnv("NODE_INDEX_NAME", "NodeIndex"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "rulechain-events"),

		IsLambda: getEnvBool("IS_LAMBDA", false),

		WebSocketEndpoint: getEnv("WEBSOCKET_ENDPOINT", ""),
		ConnectionsTable:  getEnv("CONNECTIONS_TABLE", "rulechain-connections"),

		DynamicConfigPath: getEnv("DYNAMIC_CONFIG_PATH", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsProduction() && c.WebSocketEndpoint == "" {
		return fmt.Errorf("WEBSOCKET_ENDPOINT is required in production")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
