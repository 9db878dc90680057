package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName       string `mapstructure:"app_name"`
	Env           string `mapstructure:"app_env"`
	Version       string `mapstructure:"app_version"`
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`

	HTTPAddr string `mapstructure:"http_addr"`
	APIKey   string `mapstructure:"api_key"`

	ProvidersFile  string `mapstructure:"providers_file"`
	PublishersFile string `mapstructure:"publishers_file"`
	SourcesFile    string `mapstructure:"sources_file"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`

	SeenStore             string        `mapstructure:"seen_store"`
	RedisAddr             string        `mapstructure:"redis_addr"`
	RedisPassword         string        `mapstructure:"redis_password"`
	RedisDB               int           `mapstructure:"redis_db"`
	MessageSeenTTLSeconds int64         `mapstructure:"message_seen_ttl_seconds"`
	MessageSeenTTL        time.Duration `mapstructure:"-"`
	WatchedChannelsRaw    string        `mapstructure:"watched_channels"`
	WatchedChannels       []string      `mapstructure:"-"`
	IntakeQueueSize       int           `mapstructure:"intake_queue_size"`

	FetchTimeoutSeconds int64         `mapstructure:"fetch_timeout_seconds"`
	FetchTimeout        time.Duration `mapstructure:"-"`
	FetchMaxAttempts    int           `mapstructure:"fetch_max_attempts"`
	FetchBackoffMs      int64         `mapstructure:"fetch_backoff_ms"`
	FetchBackoff        time.Duration `mapstructure:"-"`
	FetchMaxBodyBytes   int           `mapstructure:"fetch_max_body_bytes"`

	LinkDelayMs       int64          `mapstructure:"link_delay_ms"`
	LinkDelay         time.Duration  `mapstructure:"-"`
	BatchDefaultLimit int            `mapstructure:"batch_default_limit"`
	BatchSchedule     string         `mapstructure:"batch_schedule"`
	SweepSchedule     string         `mapstructure:"sweep_schedule"`
	SweepOnStart      bool           `mapstructure:"sweep_on_start"`
	Timezone          string         `mapstructure:"timezone"`
	Location          *time.Location `mapstructure:"-"`
	DiscoveryEnabled  bool           `mapstructure:"discovery_enabled"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "scholarship-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("app_version", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 30)
	v.SetDefault("http_addr", ":3000")
	v.SetDefault("api_key", "")
	v.SetDefault("providers_file", "./configs/providers.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/scholarships.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("seen_store", "bbolt")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("message_seen_ttl_seconds", 300)
	v.SetDefault("watched_channels", "")
	v.SetDefault("intake_queue_size", 64)
	v.SetDefault("fetch_timeout_seconds", 15)
	v.SetDefault("fetch_max_attempts", 3)
	v.SetDefault("fetch_backoff_ms", 500)
	v.SetDefault("fetch_max_body_bytes", 2<<20)
	v.SetDefault("link_delay_ms", 1500)
	v.SetDefault("batch_default_limit", 10)
	v.SetDefault("batch_schedule", "")
	v.SetDefault("sweep_schedule", "0 2 * * *")
	v.SetDefault("sweep_on_start", true)
	v.SetDefault("timezone", "Local")
	v.SetDefault("discovery_enabled", false)
}

func (cfg *Config) finalize() error {
	cfg.StorageType = strings.ToLower(strings.TrimSpace(cfg.StorageType))
	cfg.SeenStore = strings.ToLower(strings.TrimSpace(cfg.SeenStore))

	if cfg.StorageType == "postgres" && strings.TrimSpace(cfg.PostgresDSN) == "" {
		return fmt.Errorf("postgres_dsn is required when storage_type is postgres")
	}

	if cfg.MessageSeenTTLSeconds <= 0 {
		return fmt.Errorf("invalid message_seen_ttl_seconds (must be positive seconds)")
	}
	cfg.MessageSeenTTL = time.Duration(cfg.MessageSeenTTLSeconds) * time.Second

	if cfg.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid fetch_timeout_seconds (must be positive seconds)")
	}
	cfg.FetchTimeout = time.Duration(cfg.FetchTimeoutSeconds) * time.Second

	if cfg.FetchMaxAttempts <= 0 {
		return fmt.Errorf("invalid fetch_max_attempts (must be at least 1)")
	}
	if cfg.FetchBackoffMs < 0 {
		return fmt.Errorf("invalid fetch_backoff_ms (must not be negative)")
	}
	cfg.FetchBackoff = time.Duration(cfg.FetchBackoffMs) * time.Millisecond

	if cfg.LinkDelayMs < 0 {
		return fmt.Errorf("invalid link_delay_ms (must not be negative)")
	}
	cfg.LinkDelay = time.Duration(cfg.LinkDelayMs) * time.Millisecond

	if cfg.BatchDefaultLimit < 1 || cfg.BatchDefaultLimit > 50 {
		return fmt.Errorf("invalid batch_default_limit (must be 1..50)")
	}

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	cfg.Location = loc

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sweep_schedule %q: %w", cfg.SweepSchedule, err)
	}
	if strings.TrimSpace(cfg.BatchSchedule) != "" {
		if _, err := parser.Parse(cfg.BatchSchedule); err != nil {
			return fmt.Errorf("invalid batch_schedule %q: %w", cfg.BatchSchedule, err)
		}
	}

	cfg.WatchedChannels = splitList(cfg.WatchedChannelsRaw)
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
