package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DynamicConfig is the runtime-changeable part of the configuration,
// reloaded from a YAML file without a restart.
type DynamicConfig struct {
	Limits   Limits         `yaml:"limits"`
	Features Features       `yaml:"features"`
	Metadata ConfigMetadata `yaml:"metadata"`
}

// Limits holds application limits
type Limits struct {
	MaxNodesPerChain    int `yaml:"maxNodesPerChain"`
	MaxRelationsPerNode int `yaml:"maxRelationsPerNode"`
	MaxChainsPerTenant  int `yaml:"maxChainsPerTenant"`
}

// Features holds runtime feature toggles
type Features struct {
	EnableNotifications bool `yaml:"enableNotifications"`
	EnableEdgeSync      bool `yaml:"enableEdgeSync"`
}

// ConfigMetadata holds metadata about the configuration
type ConfigMetadata struct {
	Version   string    `yaml:"version"`
	UpdatedAt time.Time `yaml:"updatedAt"`
}

// DefaultDynamicConfig returns the configuration used when no dynamic
// config file is provided
func DefaultDynamicConfig() *DynamicConfig {
	return &DynamicConfig{
		Limits: Limits{
			MaxNodesPerChain:    512,
			MaxRelationsPerNode: 64,
			MaxChainsPerTenant:  1000,
		},
		Features: Features{
			EnableNotifications: true,
			EnableEdgeSync:      true,
		},
		Metadata: ConfigMetadata{Version: "default"},
	}
}

// Watcher watches the dynamic configuration file for changes
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *DynamicConfig
	mu       sync.RWMutex
	onChange []func(*DynamicConfig)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewWatcher creates a watcher over the given YAML file
func NewWatcher(configPath string, logger *zap.Logger) (*Watcher, error) {
	current, err := loadConfigFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}
	// Watch the directory too; editors and deploy tooling replace the
	// file with a rename.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		logger.Warn("Failed to watch config directory", zap.Error(err))
	}

	return &Watcher{
		path:    configPath,
		watcher: watcher,
		current: current,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for configuration changes
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop stops watching for configuration changes
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.logger.Info("Configuration watcher stopped")
}

// Current returns the current dynamic configuration
func (w *Watcher) Current() *DynamicConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after each successful reload
func (w *Watcher) OnChange(handler func(*DynamicConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

func (w *Watcher) watchLoop() {
	// Debounce, editors fire several events per save
	var debounceTimer *time.Timer
	const debounceDuration = 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	w.logger.Info("Configuration file changed, reloading", zap.String("path", w.path))

	newConfig, err := loadConfigFromFile(w.path)
	if err != nil {
		w.logger.Error("Failed to reload configuration", zap.Error(err))
		return
	}
	if err := validateDynamicConfig(newConfig); err != nil {
		w.logger.Error("Invalid configuration, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = newConfig
	handlers := make([]func(*DynamicConfig), len(w.onChange))
	copy(handlers, w.onChange)
	w.mu.Unlock()

	for _, handler := range handlers {
		go handler(newConfig)
	}

	w.logger.Info("Configuration reloaded",
		zap.String("version", newConfig.Metadata.Version),
	)
}

func validateDynamicConfig(config *DynamicConfig) error {
	if config.Limits.MaxNodesPerChain <= 0 {
		return fmt.Errorf("maxNodesPerChain must be positive")
	}
	if config.Limits.MaxRelationsPerNode <= 0 {
		return fmt.Errorf("maxRelationsPerNode must be positive")
	}
	if config.Limits.MaxChainsPerTenant <= 0 {
		return fmt.Errorf("maxChainsPerTenant must be positive")
	}
	return nil
}

func loadConfigFromFile(path string) (*DynamicConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultDynamicConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	config.Metadata.UpdatedAt = time.Now()
	return config, nil
}
