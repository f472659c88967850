// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Guilds     GuildsConfig     `mapstructure:"guilds"`
	Reputation ReputationConfig `mapstructure:"reputation"`
}

// BotConfig holds Discord bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []string `mapstructure:"ids"`
}

// GuildsConfig holds the guild allow-list. An empty list allows all guilds.
type GuildsConfig struct {
	Allowed []string `mapstructure:"allowed"`
}

// ReputationConfig holds the rule constants for the reputation engine.
type ReputationConfig struct {
	MinAccountAgeDays    int `mapstructure:"min_account_age_days"`
	MinMembershipDays    int `mapstructure:"min_membership_days"`
	DailyLimit           int `mapstructure:"daily_limit"`
	CooldownDays         int `mapstructure:"cooldown_days"`
	ReasonMinLength      int `mapstructure:"reason_min_length"`
	ReasonMaxLength      int `mapstructure:"reason_max_length"`
	LogRetention         int `mapstructure:"log_retention"`
	SuspiciousRetention  int `mapstructure:"suspicious_retention"`
	AnomalyWindowDays    int `mapstructure:"anomaly_window_days"`
	AnomalyThreshold     int `mapstructure:"anomaly_threshold"`
	SuspiciousDedupDays  int `mapstructure:"suspicious_dedup_days"`
	LeaderboardLimit     int `mapstructure:"leaderboard_limit"`
	HistoryLimit         int `mapstructure:"history_limit"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, REPUTATION_DAILY_LIMIT.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "repbot")
	v.SetDefault("database.name", "repbot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("reputation.min_account_age_days", 7)
	v.SetDefault("reputation.min_membership_days", 3)
	v.SetDefault("reputation.daily_limit", 1)
	v.SetDefault("reputation.cooldown_days", 7)
	v.SetDefault("reputation.reason_min_length", 5)
	v.SetDefault("reputation.reason_max_length", 200)
	v.SetDefault("reputation.log_retention", 1000)
	v.SetDefault("reputation.suspicious_retention", 100)
	v.SetDefault("reputation.anomaly_window_days", 30)
	v.SetDefault("reputation.anomaly_threshold", 3)
	v.SetDefault("reputation.suspicious_dedup_days", 7)
	v.SetDefault("reputation.leaderboard_limit", 10)
	v.SetDefault("reputation.history_limit", 10)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsGuildAllowed checks if a guild ID is in the allow-list.
func (c *Config) IsGuildAllowed(guildID string) bool {
	// Empty allow-list means all guilds are allowed
	if len(c.Guilds.Allowed) == 0 {
		return true
	}
	for _, id := range c.Guilds.Allowed {
		if id == guildID {
			return true
		}
	}
	return false
}
