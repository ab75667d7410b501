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
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Session  SessionConfig  `mapstructure:"session"`
	Points   PointsConfig   `mapstructure:"points"`
	Pet      PetConfig      `mapstructure:"pet"`
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

// SyncConfig holds synchronization coordinator configuration.
type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	ForceAttempts int           `mapstructure:"force_attempts"`
	ForceDelay    time.Duration `mapstructure:"force_delay"`
	QueueSize     int           `mapstructure:"queue_size"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBase     time.Duration `mapstructure:"retry_base"`
}

// SessionConfig holds session sync manager configuration.
type SessionConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	MaxQueueSize   int           `mapstructure:"max_queue_size"`
	FlushThreshold int           `mapstructure:"flush_threshold"`
	ConflictPolicy string        `mapstructure:"conflict_policy"`
}

// PointsConfig holds points economy configuration.
type PointsConfig struct {
	DailyBase           int64         `mapstructure:"daily_base"`
	StreakBonus         int64         `mapstructure:"streak_bonus"`
	DailyCapBase        int64         `mapstructure:"daily_cap_base"`
	DailyCapPerDay      int64         `mapstructure:"daily_cap_per_day"`
	DailyCapMax         int64         `mapstructure:"daily_cap_max"`
	InteractionCooldown time.Duration `mapstructure:"interaction_cooldown"`
	GameplayCooldown    time.Duration `mapstructure:"gameplay_cooldown"`
	StreakMinDays       int           `mapstructure:"streak_min_days"`
	StreakPerDayRate    float64       `mapstructure:"streak_per_day_rate"`
	StreakMaxBonus      float64       `mapstructure:"streak_max_bonus"`
	ReferralRate        float64       `mapstructure:"referral_rate"`
	ReferralMaxBonus    float64       `mapstructure:"referral_max_bonus"`
	InteractionBase     int64         `mapstructure:"interaction_base"`
	InteractionLifetime int64         `mapstructure:"interaction_lifetime"`
	GameplayBase        int64         `mapstructure:"gameplay_base"`
	GameplayPerBlock    int64         `mapstructure:"gameplay_per_block"`
	ReferralReward      int64         `mapstructure:"referral_reward"`
	AchievementPoints   int64         `mapstructure:"achievement_points"`
}

// PetConfig holds pet vitality configuration.
type PetConfig struct {
	BaselineStat    float64       `mapstructure:"baseline_stat"`
	DecayTick       time.Duration `mapstructure:"decay_tick"`
	DecayPerHour    float64       `mapstructure:"decay_per_hour"`
	PassiveBase     int64         `mapstructure:"passive_base"`
	ReviveCostShare float64       `mapstructure:"revive_cost_share"`
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
	// e.g., DATABASE_HOST, SYNC_INTERVAL, POINTS_DAILY_BASE
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
	v.SetDefault("database.user", "petgame")
	v.SetDefault("database.name", "petgame")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Sync coordinator defaults
	v.SetDefault("sync.interval", "5s")
	v.SetDefault("sync.force_attempts", 10)
	v.SetDefault("sync.force_delay", "100ms")
	v.SetDefault("sync.queue_size", 128)
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.retry_base", "100ms")

	// Session sync defaults
	v.SetDefault("session.interval", "5s")
	v.SetDefault("session.max_queue_size", 50)
	v.SetDefault("session.flush_threshold", 10)
	v.SetDefault("session.conflict_policy", "client-wins")

	// Points economy defaults
	v.SetDefault("points.daily_base", 50)
	v.SetDefault("points.streak_bonus", 25)
	v.SetDefault("points.daily_cap_base", 200)
	v.SetDefault("points.daily_cap_per_day", 10)
	v.SetDefault("points.daily_cap_max", 500)
	v.SetDefault("points.interaction_cooldown", "30s")
	v.SetDefault("points.gameplay_cooldown", "60s")
	v.SetDefault("points.streak_min_days", 3)
	v.SetDefault("points.streak_per_day_rate", 0.1)
	v.SetDefault("points.streak_max_bonus", 1.0)
	v.SetDefault("points.referral_rate", 0.05)
	v.SetDefault("points.referral_max_bonus", 0.5)
	v.SetDefault("points.interaction_base", 5)
	v.SetDefault("points.interaction_lifetime", 10000)
	v.SetDefault("points.gameplay_base", 10)
	v.SetDefault("points.gameplay_per_block", 5)
	v.SetDefault("points.referral_reward", 100)
	v.SetDefault("points.achievement_points", 50)

	// Pet vitality defaults
	v.SetDefault("pet.baseline_stat", 80)
	v.SetDefault("pet.decay_tick", "1m")
	v.SetDefault("pet.decay_per_hour", 4)
	v.SetDefault("pet.passive_base", 2)
	v.SetDefault("pet.revive_cost_share", 0.5)
}
