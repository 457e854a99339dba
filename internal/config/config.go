package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Report    ReportConfig    `mapstructure:"report"`
	Log       LogConfig       `mapstructure:"log"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type SchedulerConfig struct {
	Cron        string        `mapstructure:"cron"`
	Timezone    string        `mapstructure:"timezone"`
	Concurrency int           `mapstructure:"concurrency"`
	Overlap     string        `mapstructure:"overlap"`
	Claim       bool          `mapstructure:"claim"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// Location resolves the configured timezone. LoadConfig has already validated it.
func (s SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ReportConfig struct {
	DateLayout     string `mapstructure:"date_layout"`
	ClosingMessage string `mapstructure:"closing_message"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type NotifyConfig struct {
	OnSuccess bool        `mapstructure:"on_success"`
	Slack     SlackConfig `mapstructure:"slack"`
	Email     EmailConfig `mapstructure:"email"`
}

type SlackConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
}

type EmailConfig struct {
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	From     string   `mapstructure:"from"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	To       []string `mapstructure:"to"`
}

const (
	OverlapAllow = "allow"
	OverlapSkip  = "skip"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/reportengine.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("scheduler.cron", "@hourly")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.concurrency", 10)
	v.SetDefault("scheduler.overlap", OverlapAllow)
	v.SetDefault("scheduler.claim", false)
	v.SetDefault("scheduler.task_timeout", time.Duration(0))

	v.SetDefault("report.date_layout", "January 2, 2006")
	v.SetDefault("report.closing_message", "Thank you! Reach out with any questions about this report.")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/reportengine.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("notify.on_success", false)
	v.SetDefault("notify.email.smtp_port", 587)
}

// LoadConfig reads configuration from path, or from config.yaml in the working
// directory when path is empty. A missing file leaves the defaults in place;
// REPORTENGINE_* environment variables override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REPORTENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	switch c.Scheduler.Overlap {
	case OverlapAllow, OverlapSkip:
	default:
		return fmt.Errorf("invalid scheduler overlap policy: %q", c.Scheduler.Overlap)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}

	if c.Scheduler.Concurrency < 0 {
		return fmt.Errorf("scheduler concurrency must not be negative")
	}

	return nil
}
