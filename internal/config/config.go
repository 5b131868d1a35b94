package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration
type Config struct {
	Account    AccountConfig    `toml:"account"`
	Messages   MessagesConfig   `toml:"messages"`
	Encryption EncryptionConfig `toml:"encryption"`
	Logging    LoggingConfig    `toml:"logging"`
	Storage    StorageConfig    `toml:"storage"`
}

// AccountConfig identifies the local account
type AccountConfig struct {
	JID      string `toml:"jid"`
	Server   string `toml:"server"`
	Port     int    `toml:"port"`
	Resource string `toml:"resource"`
}

// MessagesConfig contains messaging preferences
type MessagesConfig struct {
	// SendReceipts enables replying to delivery receipt requests
	SendReceipts bool `toml:"send_receipts"`

	// RequestReceipts attaches receipt requests to outgoing messages
	RequestReceipts bool `toml:"request_receipts"`

	// SendStates enables sending typing notifications
	SendStates bool `toml:"send_states"`
}

// EncryptionConfig contains encryption settings
type EncryptionConfig struct {
	Enabled bool   `toml:"enabled"`
	Keyring string `toml:"keyring"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// DataDir overrides the XDG data directory
	DataDir string `toml:"data_dir"`

	// CacheCapabilities persists peer capability records across sessions
	CacheCapabilities bool `toml:"cache_capabilities"`
}

// Paths holds the XDG-compliant paths for the application
type Paths struct {
	ConfigDir string
	DataDir   string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			Port:     5222,
			Resource: "parley",
		},
		Messages: MessagesConfig{
			SendReceipts:    true,
			RequestReceipts: true,
			SendStates:      true,
		},
		Encryption: EncryptionConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: false,
		},
		Storage: StorageConfig{
			CacheCapabilities: true,
		},
	}
}

// GetPaths returns XDG-compliant paths for the application
func GetPaths() (*Paths, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	configDir = filepath.Join(configDir, "parley")

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	dataDir = filepath.Join(dataDir, "parley")

	return &Paths{ConfigDir: configDir, DataDir: dataDir}, nil
}

// EnsureDirectories creates the necessary directories
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.DataDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load loads the configuration from the config file
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}

	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	configPath := filepath.Join(paths.ConfigDir, "config.toml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.Storage.DataDir = paths.DataDir
		cfg.Logging.File = filepath.Join(paths.DataDir, "parley.log")
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = paths.DataDir
	} else {
		cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.Storage.DataDir, "parley.log")
	} else {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}

	if cfg.Encryption.Keyring != "" {
		cfg.Encryption.Keyring = expandPath(cfg.Encryption.Keyring)
	}

	return cfg, nil
}

// Save saves the configuration to the config file
func Save(cfg *Config) error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}

	configPath := filepath.Join(paths.ConfigDir, "config.toml")
	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
