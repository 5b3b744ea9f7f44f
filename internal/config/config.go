package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	LogMode bool   `mapstructure:"log_mode"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type SecurityConfig struct {
	BcryptCost    int    `mapstructure:"bcrypt_cost"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PresenceConfig holds the three independent liveness durations plus the
// sweep cadence of the auto-logout supervisor.
type PresenceConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	OnlineTTL         time.Duration `mapstructure:"online_ttl"`
	GracePeriod       time.Duration `mapstructure:"grace_period"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

type StatusConfig struct {
	ExtendedBreakMinutes int `mapstructure:"extended_break_minutes"`
	DefaultBreakCapacity int `mapstructure:"default_break_capacity"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
	Presence PresenceConfig `mapstructure:"presence"`
	Status   StatusConfig   `mapstructure:"status"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

var (
	appConfig *Config
	once      sync.Once
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "data/breaktopia.db")
	v.SetDefault("database.log_mode", false)

	// keys without a real default are still registered so that
	// AutomaticEnv can fill them during Unmarshal
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "breaktopia")
	v.SetDefault("jwt.expire_hours", 24*7)

	v.SetDefault("security.bcrypt_cost", 10)
	v.SetDefault("security.encryption_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("presence.heartbeat_interval", "5s")
	v.SetDefault("presence.online_ttl", "45s")
	v.SetDefault("presence.grace_period", "30s")
	v.SetDefault("presence.sweep_interval", "10s")

	v.SetDefault("status.extended_break_minutes", 15)
	v.SetDefault("status.default_break_capacity", 2)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "breaktopia.events")
}

// Load loads configuration from given file path (e.g. "config.yaml").
// If path is empty, it defaults to "config.yaml" in current working directory.
// A missing file is not an error: defaults plus BRK_* environment variables apply.
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		var c *Config
		c, err = load(path)
		if err == nil {
			appConfig = c
		}
	})

	if err != nil {
		return nil, err
	}
	return appConfig, nil
}

func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	// environment overrides, e.g. BRK_SERVER_PORT=9000
	v.SetEnvPrefix("BRK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the presence engine cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	p := c.Presence
	if p.HeartbeatInterval <= 0 || p.OnlineTTL <= 0 || p.GracePeriod <= 0 || p.SweepInterval <= 0 {
		return fmt.Errorf("presence durations must be positive")
	}
	if c.Status.DefaultBreakCapacity < 0 {
		return fmt.Errorf("status.default_break_capacity must not be negative")
	}
	return nil
}

// Warnings lists settings that are valid but likely to cause false offline
// detections under normal network jitter.
func (c *Config) Warnings() []string {
	var out []string
	p := c.Presence
	if p.OnlineTTL < 2*p.HeartbeatInterval {
		out = append(out, fmt.Sprintf("presence.online_ttl %s is below 2x heartbeat_interval %s", p.OnlineTTL, p.HeartbeatInterval))
	}
	if p.GracePeriod < 2*p.HeartbeatInterval {
		out = append(out, fmt.Sprintf("presence.grace_period %s is below 2x heartbeat_interval %s", p.GracePeriod, p.HeartbeatInterval))
	}
	return out
}

// Get returns the loaded global configuration.
// Call Load() once at application startup.
func Get() *Config {
	return appConfig
}
