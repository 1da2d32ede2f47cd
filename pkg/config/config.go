// Package config loads runtime configuration, environment-first with an
// optional config file underneath. Unattended deployments configure
// everything through the environment; the file exists for values that are
// awkward there.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/cookkie03/davsync/pkg/model"
)

const xdgAppName = "davsync"

// Config is everything a sync run needs.
type Config struct {
	// CalDAV / CardDAV endpoint (side A).
	CalDAVURL      string `mapstructure:"caldav_url"`
	CardDAVURL     string `mapstructure:"carddav_url"`
	CalDAVUsername string `mapstructure:"caldav_username"`
	CalDAVPassword string `mapstructure:"caldav_password"`

	// Notion (side B of the task domain).
	NotionToken      string `mapstructure:"notion_token"`
	NotionDatabaseID string `mapstructure:"notion_database_id"`

	// Telegram alerting; both empty disables it.
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`

	// StateFile is the sqlite link database.
	StateFile string `mapstructure:"state_file"`
	// BackupDir receives timestamped export directories.
	BackupDir string `mapstructure:"backup_dir"`
	// BackupRetentionDays bounds how long exports are kept.
	BackupRetentionDays int `mapstructure:"backup_retention_days"`

	// Authority names the side that wins two-sided conflicts: "a" (the
	// DAV side) or "b" (the hosted side).
	Authority string `mapstructure:"authority"`
	DryRun    bool   `mapstructure:"dry_run"`
}

// AuthoritySide resolves the configured authority to a model side.
func (c *Config) AuthoritySide() (model.Side, error) {
	switch strings.ToLower(c.Authority) {
	case "", "a":
		return model.SideA, nil
	case "b":
		return model.SideB, nil
	default:
		return model.SideA, fmt.Errorf("invalid authority %q: want \"a\" or \"b\"", c.Authority)
	}
}

// Dir returns the application's XDG config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

// Load reads configuration from the environment and, when present, from
// config.yaml in the XDG config directory. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	for _, key := range []string{
		"caldav_url", "carddav_url", "caldav_username", "caldav_password",
		"notion_token", "notion_database_id",
		"telegram_bot_token", "telegram_chat_id",
		"state_file", "backup_dir", "backup_retention_days",
		"authority", "dry_run",
	} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetDefault("state_file", filepath.Join(dir, "links.db"))
	v.SetDefault("backup_dir", filepath.Join(dir, "backups"))
	v.SetDefault("backup_retention_days", 30)
	v.SetDefault("authority", "a")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := cfg.AuthoritySide(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireTasks validates the settings the task sync needs.
func (c *Config) RequireTasks() error {
	return require(map[string]string{
		"CALDAV_URL":         c.CalDAVURL,
		"CALDAV_USERNAME":    c.CalDAVUsername,
		"CALDAV_PASSWORD":    c.CalDAVPassword,
		"NOTION_TOKEN":       c.NotionToken,
		"NOTION_DATABASE_ID": c.NotionDatabaseID,
	})
}

// RequireContacts validates the settings the contact sync needs. Google
// credentials are checked later by the auth package, which owns them.
func (c *Config) RequireContacts() error {
	return require(map[string]string{
		"CARDDAV_URL":     c.CardDAVURL,
		"CALDAV_USERNAME": c.CalDAVUsername,
		"CALDAV_PASSWORD": c.CalDAVPassword,
	})
}

func require(vars map[string]string) error {
	var missing []string
	for name, val := range vars {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
