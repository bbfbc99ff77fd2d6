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
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Anomaly    AnomalyConfig    `mapstructure:"anomaly"`
	Goal       GoalConfig       `mapstructure:"goal"`
	Badges     BadgesConfig     `mapstructure:"badges"`
	Bonus      BonusConfig      `mapstructure:"bonus"`
	Protection ProtectionConfig `mapstructure:"protection"`
	Users      UsersConfig      `mapstructure:"users"`
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

// RedisConfig holds the optional Redis cache configuration.
// An empty Addr disables the level display cache entirely.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// TelegramConfig holds the optional Telegram notification configuration.
// An empty token selects the noop dispatcher.
type TelegramConfig struct {
	Token string           `mapstructure:"token"`
	Chats map[string]int64 `mapstructure:"chats"` // user ID -> chat ID
}

// AuthConfig holds authentication provider configuration.
// When JWTSecret is set the JWT provider is used; otherwise the static
// provider with ServiceUser as the acting identity.
type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	ServiceUser string `mapstructure:"service_user"`
}

// SyncConfig holds step sync window and pacing configuration.
type SyncConfig struct {
	WindowDays     int           `mapstructure:"window_days"`
	QueryInterval  time.Duration `mapstructure:"query_interval"`
	RepairCooldown time.Duration `mapstructure:"repair_cooldown"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
}

// AnomalyConfig holds the anomaly-detection policy knobs.
// The sentinel list and duplicate-day threshold are empirical workarounds
// for a misbehaving step source; both can be tuned or disabled per
// deployment.
type AnomalyConfig struct {
	Enabled            bool  `mapstructure:"enabled"`
	TolerancePct       int   `mapstructure:"tolerance_pct"`
	Sentinels          []int `mapstructure:"sentinels"`
	DuplicateThreshold int   `mapstructure:"duplicate_threshold"`
}

// GoalConfig holds the daily step goal used for streak computation.
type GoalConfig struct {
	DailySteps int `mapstructure:"daily_steps"`
}

// BadgesConfig holds badge rule thresholds.
type BadgesConfig struct {
	StepThreshold    int `mapstructure:"step_threshold"`
	BigStepThreshold int `mapstructure:"big_step_threshold"`
	StreakDays       int `mapstructure:"streak_days"`
	StreakDayMinimum int `mapstructure:"streak_day_minimum"`
}

// BonusConfig holds daily bonus configuration.
type BonusConfig struct {
	MonthlyAllotment int `mapstructure:"monthly_allotment"`
}

// ProtectionConfig holds streak protection configuration.
type ProtectionConfig struct {
	MaxActive    int `mapstructure:"max_active"`
	CooldownDays int `mapstructure:"cooldown_days"`
	RefillDays   int `mapstructure:"refill_days"`
}

// UsersConfig lists the user IDs the daemon syncs on each tick.
type UsersConfig struct {
	IDs []string `mapstructure:"ids"`
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

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., DATABASE_HOST, SYNC_WINDOW_DAYS, GOAL_DAILY_STEPS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "stridesync")
	v.SetDefault("database.name", "stridesync")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Redis defaults (addr empty = cache disabled)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	// Sync defaults
	v.SetDefault("sync.window_days", 7)
	v.SetDefault("sync.query_interval", "200ms")
	v.SetDefault("sync.repair_cooldown", "5m")
	v.SetDefault("sync.tick_interval", "30m")

	// Anomaly policy defaults. The tolerance is a percentage of the larger
	// of the two query results; it and the identical-days threshold are
	// empirically tuned against a known source bug, not derived values.
	v.SetDefault("anomaly.enabled", true)
	v.SetDefault("anomaly.tolerance_pct", 10)
	v.SetDefault("anomaly.sentinels", []int{210})
	v.SetDefault("anomaly.duplicate_threshold", 4)

	// Goal defaults
	v.SetDefault("goal.daily_steps", 7500)

	// Badge defaults
	v.SetDefault("badges.step_threshold", 7500)
	v.SetDefault("badges.big_step_threshold", 10000)
	v.SetDefault("badges.streak_days", 3)
	v.SetDefault("badges.streak_day_minimum", 7500)

	// Daily bonus defaults
	v.SetDefault("bonus.monthly_allotment", 30)

	// Streak protection defaults
	v.SetDefault("protection.max_active", 3)
	v.SetDefault("protection.cooldown_days", 5)
	v.SetDefault("protection.refill_days", 14)
}
