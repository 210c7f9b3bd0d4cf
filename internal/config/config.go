package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Gateway    ServerConfig     `mapstructure:"gateway"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Leader     LeaderConfig     `mapstructure:"leader"`
	Instance   InstanceConfig   `mapstructure:"instance"`
	Bus        BusConfig        `mapstructure:"bus"`
	Keys       KeysConfig       `mapstructure:"keys"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LeaderConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

// BusConfig names the pub/sub channels and controls publish/subscribe behaviour.
type BusConfig struct {
	BroadcastChannel   string        `mapstructure:"broadcast_channel"`
	SettlementChannel  string        `mapstructure:"settlement_channel"`
	NotificationPrefix string        `mapstructure:"notification_prefix"`
	Codec              string        `mapstructure:"codec"`
	PublishTimeout     time.Duration `mapstructure:"publish_timeout"`
	ReconnectBaseWait  time.Duration `mapstructure:"reconnect_base_wait"`
	ReconnectMaxWait   time.Duration `mapstructure:"reconnect_max_wait"`
}

type KeysConfig struct {
	Source          string        `mapstructure:"source"` // file, redis or mysql
	Dir             string        `mapstructure:"dir"`
	FilePattern     string        `mapstructure:"file_pattern"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"`
	RedisHash       string        `mapstructure:"redis_hash"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheSizeMB     int           `mapstructure:"cache_size_mb"`
}

type SettlementConfig struct {
	Workers           int    `mapstructure:"workers"`
	QueueLength       int    `mapstructure:"queue_length"`
	PublishRejections bool   `mapstructure:"publish_rejections"`
	StatsSchedule     string `mapstructure:"stats_schedule"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Namespace string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8081)
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 10)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("leader.enabled", true)
	v.SetDefault("leader.key", "auction_settlement_leader")
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("leader.retry_interval", 5*time.Second)
	v.SetDefault("bus.broadcast_channel", "auctions.started")
	v.SetDefault("bus.settlement_channel", "auctions.settlement")
	v.SetDefault("bus.notification_prefix", "auction")
	v.SetDefault("bus.codec", "json")
	v.SetDefault("bus.publish_timeout", 2*time.Second)
	v.SetDefault("bus.reconnect_base_wait", 1*time.Second)
	v.SetDefault("bus.reconnect_max_wait", 60*time.Second)
	v.SetDefault("keys.source", "file")
	v.SetDefault("keys.dir", "./keys")
	v.SetDefault("keys.file_pattern", "%s_public.pem")
	v.SetDefault("keys.refresh_schedule", "@every 30s")
	v.SetDefault("keys.redis_hash", "bidder_keys")
	v.SetDefault("keys.cache_ttl", 5*time.Minute)
	v.SetDefault("keys.cache_size_mb", 8)
	v.SetDefault("settlement.workers", 16)
	v.SetDefault("settlement.queue_length", 1024)
	v.SetDefault("settlement.publish_rejections", false)
	v.SetDefault("settlement.stats_schedule", "@every 1m")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "localhost:8125")
	v.SetDefault("metrics.namespace", "auction_settlement.")
	v.SetDefault("log.level", "info")
}

var envBindings = map[string]string{
	"server.port":                   "SERVER_PORT",
	"server.host":                   "SERVER_HOST",
	"gateway.port":                  "GATEWAY_PORT",
	"redis.address":                 "REDIS_ADDRESS",
	"redis.password":                "REDIS_PASSWORD",
	"redis.db":                      "REDIS_DB",
	"mysql.dsn":                     "MYSQL_DSN",
	"leader.enabled":                "LEADER_ENABLED",
	"leader.ttl":                    "LEADER_TTL",
	"instance.id":                   "INSTANCE_ID",
	"bus.codec":                     "BUS_CODEC",
	"keys.source":                   "KEYS_SOURCE",
	"keys.dir":                      "KEYS_DIR",
	"settlement.workers":            "SETTLEMENT_WORKERS",
	"settlement.publish_rejections": "SETTLEMENT_PUBLISH_REJECTIONS",
	"metrics.enabled":               "METRICS_ENABLED",
	"metrics.address":               "METRICS_ADDRESS",
	"log.level":                     "LOG_LEVEL",
}

// Load reads configuration from defaults, an optional config file and the environment.
// An empty configPath searches the usual locations and tolerates a missing file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/auction-settlement/")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, continue with defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if config.Instance.ID == "" {
		config.Instance.ID = "settlement-" + uuid.NewString()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks settings that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Bus.BroadcastChannel == "" || c.Bus.SettlementChannel == "" {
		return errors.New("bus.broadcast_channel and bus.settlement_channel are required")
	}
	if c.Bus.NotificationPrefix == "" {
		return errors.New("bus.notification_prefix is required")
	}
	switch c.Bus.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("bus.codec %q is not supported", c.Bus.Codec)
	}
	switch c.Keys.Source {
	case "file":
		if c.Keys.Dir == "" {
			return errors.New("keys.dir is required for the file key source")
		}
		if strings.Count(c.Keys.FilePattern, "%s") != 1 {
			return errors.New("keys.file_pattern must contain exactly one %s")
		}
	case "redis":
		if c.Keys.RedisHash == "" {
			return errors.New("keys.redis_hash is required for the redis key source")
		}
	case "mysql":
		if c.MySQL.DSN == "" {
			return errors.New("mysql.dsn is required for the mysql key source")
		}
	default:
		return fmt.Errorf("keys.source %q is not supported", c.Keys.Source)
	}
	if c.Settlement.Workers <= 0 {
		return errors.New("settlement.workers must be positive")
	}
	if c.Bus.ReconnectBaseWait <= 0 || c.Bus.ReconnectMaxWait < c.Bus.ReconnectBaseWait {
		return errors.New("bus.reconnect_base_wait must be positive and not exceed bus.reconnect_max_wait")
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %s, Keys: %s, Codec: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.Keys.Source,
		c.Bus.Codec,
		c.Instance.ID,
	)
}
