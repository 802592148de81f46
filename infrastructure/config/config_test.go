package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "rulechain", cfg.DynamoDBTable)
	assert.Equal(t, "RefIndex", cfg.RefIndexName)
	assert.Equal(t, "NodeIndex", cfg.NodeIndexName)
	assert.Equal(t, "rulechain-events", cfg.EventBusName)
	assert.Equal(t, "rulechain-connections", cfg.ConnectionsTable)
	assert.False(t, cfg.IsLambda)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("TABLE_NAME", "chains-test")
	t.Setenv("IS_LAMBDA", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.Equal(t, "chains-test", cfg.DynamoDBTable)
	assert.True(t, cfg.IsLambda)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_RejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "sandbox")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate_ProductionRequiresWebSocketEndpoint(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBSOCKET_ENDPOINT")

	t.Setenv("WEBSOCKET_ENDPOINT", "https://ws.example.com/prod")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
