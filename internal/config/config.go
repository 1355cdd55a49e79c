package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"pulse/internal/models"

	"github.com/spf13/viper"
)

const (
	defaultServerAddr          = "localhost:8080"
	defaultBufferCapacity      = 1000
	defaultSnapshotSize        = 50
	defaultCollectorInterval   = 30 * time.Second
	defaultDiskPath            = "/"
	defaultNetworkCapacityMbps = 1000
	defaultAlertRetention      = 60 * time.Second
	defaultCacheTTL            = 60 * time.Second
	defaultQueueSize           = 256
	defaultTokenExpiry         = 90 * 24 * time.Hour
	defaultSQLitePath          = "pulse.db"
)

// Config is the runtime configuration of the service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Buffer     BufferConfig     `mapstructure:"buffer"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Subscriber SubscriberConfig `mapstructure:"subscriber"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	ConfigPath string           `mapstructure:"-"`
}

type ServerConfig struct {
	Addr       string   `mapstructure:"addr"`
	RateLimit  float64  `mapstructure:"rate-limit"` // requests per second per IP
	RateBurst  int      `mapstructure:"rate-burst"`
	AllowedIPs []string `mapstructure:"allowed-ips"`
}

type BufferConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type SnapshotConfig struct {
	Size int `mapstructure:"size"`
}

type CollectorConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Interval            time.Duration `mapstructure:"interval"`
	DiskPath            string        `mapstructure:"disk-path"`
	NetworkCapacityMbps float64       `mapstructure:"network-capacity-mbps"`
}

type AlertsConfig struct {
	Retention time.Duration          `mapstructure:"retention"`
	Rules     []models.AlertRuleSpec `mapstructure:"rules"`
}

type CacheConfig struct {
	Driver string        `mapstructure:"driver"` // memory | redis
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite-path"`
}

type SubscriberConfig struct {
	QueueSize int `mapstructure:"queue-size"`
}

type AuthConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Secret      string        `mapstructure:"secret"`
	TokenExpiry time.Duration `mapstructure:"token-expiry"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed-origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

// Load reads configuration from defaults, an optional YAML file and
// PULSE_* environment variables, in increasing order of precedence
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if len(cfg.Alerts.Rules) == 0 {
		cfg.Alerts.Rules = DefaultAlertRules()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", defaultServerAddr)
	v.SetDefault("server.rate-limit", 100)
	v.SetDefault("server.rate-burst", 200)
	v.SetDefault("server.allowed-ips", []string{})
	v.SetDefault("buffer.capacity", defaultBufferCapacity)
	v.SetDefault("snapshot.size", defaultSnapshotSize)
	v.SetDefault("collector.enabled", true)
	v.SetDefault("collector.interval", defaultCollectorInterval)
	v.SetDefault("collector.disk-path", defaultDiskPath)
	v.SetDefault("collector.network-capacity-mbps", defaultNetworkCapacityMbps)
	v.SetDefault("alerts.retention", defaultAlertRetention)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", defaultCacheTTL)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("storage.sqlite-path", defaultSQLitePath)
	v.SetDefault("subscriber.queue-size", defaultQueueSize)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token-expiry", defaultTokenExpiry)
	v.SetDefault("cors.allowed-origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("server rate limit and burst must be greater than 0")
	}
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer capacity must be greater than 0, got %d", c.Buffer.Capacity)
	}
	if c.Snapshot.Size < 0 {
		return fmt.Errorf("snapshot size must not be negative, got %d", c.Snapshot.Size)
	}
	if c.Collector.Enabled && c.Collector.Interval <= 0 {
		return fmt.Errorf("collector interval must be greater than 0, got %v", c.Collector.Interval)
	}
	if c.Alerts.Retention < 0 {
		return fmt.Errorf("alert retention must not be negative, got %v", c.Alerts.Retention)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative, got %v", c.Cache.TTL)
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	if c.Subscriber.QueueSize <= 0 {
		return fmt.Errorf("subscriber queue size must be greater than 0, got %d", c.Subscriber.QueueSize)
	}
	if c.Auth.Enabled && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth secret must be at least 32 bytes when auth is enabled")
	}
	return nil
}

// DefaultAlertRules is the rule set seeded when none is configured
func DefaultAlertRules() []models.AlertRuleSpec {
	return []models.AlertRuleSpec{
		rule("High error rate", "reliability.error.rate", models.ConditionGT, 0.05, models.SeverityWarning),
		rule("High CPU usage", "system.cpu.usage", models.ConditionGT, 80, models.SeverityWarning),
		rule("High memory usage", "system.memory.usage", models.ConditionGT, 85, models.SeverityWarning),
		rule("Queue backlog", "queue.depth", models.ConditionGT, 1000, models.SeverityError),
	}
}

func rule(name, metric string, cond models.Condition, threshold float64, severity models.Severity) models.AlertRuleSpec {
	return models.AlertRuleSpec{
		Name:      name,
		Metric:    metric,
		Condition: cond,
		Threshold: &threshold,
		Severity:  severity,
	}
}
