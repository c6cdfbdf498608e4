// Package config loads the persisted remote-database configuration and
// binds the environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/mcpterm/mcpterm/internal/types"
)

// ConfigFileName is the persisted remote config under the app dir.
const ConfigFileName = "turso-config.json"

// DefaultSyncInterval is the sync-engine cadence when unconfigured.
const DefaultSyncInterval = 30 * time.Second

// Config is the contents of ~/.mcp-terminal/turso-config.json plus the
// environment overrides. Environment always wins over the file.
type Config struct {
	URL           string `json:"url"`
	Token         string `json:"token"`
	SyncURL       string `json:"sync_url,omitempty"`
	SyncInterval  int    `json:"sync_interval,omitempty"` // seconds
	HistoryMode   string `json:"history_mode,omitempty"`  // global|user|machine|hybrid
	MachineID     string `json:"machine_id,omitempty"`
	IsAdminConfig bool   `json:"is_admin_config,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// AppDir returns ~/.mcp-terminal, creating it owner-only if needed.
func AppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home dir: %w", err)
	}
	dir := filepath.Join(home, ".mcp-terminal")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: create app dir: %w", err)
	}
	return dir, nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}

func init() {
	viper.SetDefault("sync_interval", int(DefaultSyncInterval.Seconds()))
	viper.SetDefault("history_mode", string(types.ScopeHybrid))

	// Environment overrides; these win over the persisted file.
	_ = viper.BindEnv("url", "REMOTE_DB_URL")
	_ = viper.BindEnv("token", "REMOTE_DB_TOKEN")
	_ = viper.BindEnv("sync_url", "REMOTE_DB_SYNC_URL")
	_ = viper.BindEnv("user_override", "USER_OVERRIDE")
}

// Load reads the config file from dir and applies environment overrides.
// A missing file is not an error: env-only configurations are valid.
func Load(dir string) (*Config, error) {
	cfg := &Config{
		SyncInterval: viper.GetInt("sync_interval"),
		HistoryMode:  viper.GetString("history_mode"),
	}

	data, err := os.ReadFile(Path(dir))
	switch {
	case os.IsNotExist(err):
		// fall through to env
	case err != nil:
		return nil, fmt.Errorf("config: read: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", ConfigFileName, err)
		}
	}

	if v := viper.GetString("url"); v != "" {
		cfg.URL = v
	}
	if v := viper.GetString("token"); v != "" {
		cfg.Token = v
	}
	if v := viper.GetString("sync_url"); v != "" {
		cfg.SyncURL = v
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = int(DefaultSyncInterval.Seconds())
	}
	if _, ok := types.ParseScope(cfg.HistoryMode); !ok {
		cfg.HistoryMode = string(types.ScopeHybrid)
	}
	return cfg, nil
}

// Save writes the config file owner-only.
func (c *Config) Save(dir string) error {
	if c.CreatedAt == "" {
		c.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(Path(dir), data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// Interval returns the sync cadence as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

// Mode returns the validated history scope.
func (c *Config) Mode() types.Scope {
	s, _ := types.ParseScope(c.HistoryMode)
	return s
}

// UserOverride returns the USER_OVERRIDE env value, if set.
func UserOverride() string {
	return viper.GetString("user_override")
}
