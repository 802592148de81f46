package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dynamic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewWatcher_LoadsInitialConfig(t *testing.T) {
	path := writeConfigFile(t, `
limits:
  maxNodesPerChain: 128
features:
  enableEdgeSync: true
metadata:
  version: v3
`)

	watcher, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer watcher.watcher.Close()

	current := watcher.Current()
	assert.Equal(t, 128, current.Limits.MaxNodesPerChain)
	// Unset fields keep their defaults
	assert.Equal(t, 64, current.Limits.MaxRelationsPerNode)
	assert.Equal(t, "v3", current.Metadata.Version)
}

func TestNewWatcher_MissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func TestReload_AppliesNewValues(t *testing.T) {
	path := writeConfigFile(t, "limits:\n  maxNodesPerChain: 100\n")

	watcher, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer watcher.watcher.Close()

	changed := make(chan *DynamicConfig, 1)
	watcher.OnChange(func(cfg *DynamicConfig) { changed <- cfg })

	require.NoError(t, os.WriteFile(path, []byte("limits:\n  maxNodesPerChain: 200\n"), 0o644))
	watcher.reload()

	assert.Equal(t, 200, watcher.Current().Limits.MaxNodesPerChain)
	assert.Equal(t, 200, (<-changed).Limits.MaxNodesPerChain)
}

func TestReload_KeepsCurrentOnInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, "limits:\n  maxNodesPerChain: 100\n")

	watcher, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer watcher.watcher.Close()

	require.NoError(t, os.WriteFile(path, []byte("limits:\n  maxNodesPerChain: -5\n"), 0o644))
	watcher.reload()

	assert.Equal(t, 100, watcher.Current().Limits.MaxNodesPerChain)
}

func TestValidateDynamicConfig(t *testing.T) {
	valid := DefaultDynamicConfig()
	assert.NoError(t, validateDynamicConfig(valid))

	invalid := DefaultDynamicConfig()
	invalid.Limits.MaxChainsPerTenant = 0
	assert.Error(t, validateDynamicConfig(invalid))
}
