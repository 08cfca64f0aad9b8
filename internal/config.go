package internal

import (
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Transports.
const (
	TransportJSONRPC = "jsonrpc"
	TransportMCP     = "mcp"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Vault VaultConfig       `yaml:"vault"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	return c.Vault.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// Transport selects the stdio protocol: "jsonrpc" (default) or "mcp".
	Transport string `yaml:"transport"`
	// NotifyChanges emits core.note_changed notifications for watcher updates.
	NotifyChanges bool `yaml:"notify_changes"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Transport == "" {
		c.Transport = TransportJSONRPC
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Transport, validation.Required, validation.In(TransportJSONRPC, TransportMCP)),
	)
}

// VaultConfig holds the vault directory and how it is tracked.
type VaultConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
	Lock  bool   `yaml:"lock"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			Transport: TransportJSONRPC,
		},
		Vault: VaultConfig{
			Path:  "./vault",
			Watch: true,
			Lock:  true,
		},
	}
}
