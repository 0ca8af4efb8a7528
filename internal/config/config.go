// Package config handles loading, creation and validation of the
// daemon's yaml configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danielabrozzoni/cosignerd/internal/keys"
	"github.com/danielabrozzoni/cosignerd/internal/types"
)

// Manager handles configuration loading, validation, and management
type Manager struct {
	keyManager *keys.KeyManager
}

// NewManager creates a new configuration manager with dependencies
func NewManager(keyManager *keys.KeyManager) *Manager {
	return &Manager{
		keyManager: keyManager,
	}
}

// LoadConfig loads configuration from the specified file path. A
// missing file is created with defaults; a missing signing key is
// generated and persisted back to the file.
func (m *Manager) LoadConfig(filePath string) (*types.Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		cfg := types.DefaultConfig()
		if err := m.CreateConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if cfg.Node.SigningKey == "" {
		signingKey, err := m.keyManager.GenerateSigningKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		cfg.Node.SigningKey = signingKey

		if err := m.SaveConfig(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to save config with generated signing key: %w", err)
		}
	}

	if err := m.ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// CreateConfigFile creates a new configuration file with the given config.
// The file holds a hot signing key, so it is readable by the owner only.
func (m *Manager) CreateConfigFile(filePath string, cfg *types.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig saves the configuration to the specified file
func (m *Manager) SaveConfig(filePath string, cfg *types.Config) error {
	return m.CreateConfigFile(filePath, cfg)
}

// ValidateConfig validates the configuration structure and values
func (m *Manager) ValidateConfig(cfg *types.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := m.validateNodeConfig(&cfg.Node); err != nil {
		return fmt.Errorf("node config validation failed: %w", err)
	}

	if err := validateNetworkConfig(&cfg.Network); err != nil {
		return fmt.Errorf("network config validation failed: %w", err)
	}

	if err := validateManagersConfig(cfg.Managers); err != nil {
		return fmt.Errorf("managers config validation failed: %w", err)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	return nil
}

func (m *Manager) validateNodeConfig(cfg *types.NodeConfig) error {
	return m.keyManager.ValidateSigningKey(cfg.SigningKey)
}

func validateNetworkConfig(cfg *types.NetworkConfig) error {
	if len(cfg.Addresses) == 0 {
		return fmt.Errorf("network.addresses cannot be empty")
	}

	for i, addr := range cfg.Addresses {
		if err := types.ValidateAddress(addr); err != nil {
			return fmt.Errorf("invalid address at index %d: %w", i, err)
		}
	}

	return nil
}

// validateManagersConfig checks the allow-list. A cosigner with no
// managers would refuse every stream, which is never intended.
func validateManagersConfig(managers []types.ManagerConfig) error {
	if len(managers) == 0 {
		return fmt.Errorf("at least one manager is required")
	}

	seen := make(map[string]int, len(managers))
	for i, mgr := range managers {
		if err := mgr.Validate(); err != nil {
			return fmt.Errorf("invalid manager at index %d: %w", i, err)
		}
		if prev, dup := seen[mgr.PublicKey]; dup {
			return fmt.Errorf("manager at index %d duplicates manager at index %d", i, prev)
		}
		seen[mgr.PublicKey] = i
	}

	return nil
}

func validateLoggingConfig(cfg *types.LoggingConfig) error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[cfg.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// LoadConfig is a convenience function that creates a manager and loads config
func LoadConfig(filePath string) (*types.Config, error) {
	keyManager := keys.NewKeyManager()
	configManager := NewManager(keyManager)
	return configManager.LoadConfig(filePath)
}
