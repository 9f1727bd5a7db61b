package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/flagkeeper/retention-api/internal/model"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Retention RetentionConfig `mapstructure:"retention"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// RetentionConfig holds the global retention defaults. Values are read
// once per operation as an immutable snapshot via Config.Snapshot().
type RetentionConfig struct {
	DefaultRetentionDays int      `mapstructure:"default_retention_days" validate:"min=0"`
	CronBatchSize        int      `mapstructure:"cron_batch_size" validate:"min=1"`
	EnableUserClearing   bool     `mapstructure:"enable_user_clearing"`
	LogClearingActivity  bool     `mapstructure:"log_clearing_activity"`
	FlagAccessMode       string   `mapstructure:"flag_access_mode" validate:"oneof=allow_all allow_selected"`
	EnabledFlags         []string `mapstructure:"enabled_flags"`
}

type WorkerConfig struct {
	Schedule string        `mapstructure:"schedule"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// envOverrides are secrets that may be supplied through the
// environment instead of the config file.
type envOverrides struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("retention", &env); err != nil {
		return nil, fmt.Errorf("failed to process environment overrides: %w", err)
	}
	if env.DatabasePassword != "" {
		config.Database.Password = env.DatabasePassword
	}
	if env.RedisURL != "" {
		config.Redis.URL = env.RedisURL
	}
	if env.JWTSecret != "" {
		config.JWT.Secret = env.JWTSecret
	}
	if env.SMTPPassword != "" {
		config.SMTP.Password = env.SMTPPassword
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Retention.CronBatchSize == 0 {
		c.Retention.CronBatchSize = 100
	}
	if c.Retention.FlagAccessMode == "" {
		c.Retention.FlagAccessMode = model.FlagAccessAllowAll
	}
	if c.Worker.Schedule == "" {
		c.Worker.Schedule = "@every 10m"
	}
	if c.Worker.LockTTL == 0 {
		c.Worker.LockTTL = 15 * time.Minute
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Snapshot returns an immutable snapshot of the global retention
// defaults for use by a single operation or cleanup tick.
func (c *Config) Snapshot() model.RetentionConfig {
	enabled := make([]string, len(c.Retention.EnabledFlags))
	copy(enabled, c.Retention.EnabledFlags)

	return model.RetentionConfig{
		DefaultRetentionDays: c.Retention.DefaultRetentionDays,
		CronBatchSize:        c.Retention.CronBatchSize,
		UserClearingEnabled:  c.Retention.EnableUserClearing,
		LogClearingActivity:  c.Retention.LogClearingActivity,
		FlagAccessMode:       c.Retention.FlagAccessMode,
		EnabledFlags:         enabled,
	}
}
