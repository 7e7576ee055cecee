package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Kite       KiteConfig
	MarketData MarketDataConfig
	Backtest   BacktestConfig
	Storage    StorageConfig
	RateLimit  RateLimitConfig
	Cache      CacheConfig
	Logging    LoggingConfig
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the key/value connection string used by the pgx driver.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka specific configuration
type KafkaConfig struct {
	Enabled bool
	Brokers string
	Topics  map[string]string
}

// BrokerList splits the comma separated broker addresses.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Topic looks up a topic by its config key. Viper lowercases map keys.
func (k KafkaConfig) Topic(name string) string {
	return k.Topics[strings.ToLower(name)]
}

// KiteConfig holds the broker API configuration. APIKey and AccessToken are
// fallbacks for users that have not stored their own credentials.
type KiteConfig struct {
	BaseURL           string
	APIKey            string
	AccessToken       string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
}

// MarketDataConfig holds the streaming settings. A non-empty BarCachePath
// puts a SQLite read-through cache in front of historical data requests.
type MarketDataConfig struct {
	PollInterval time.Duration
	WindowSize   int
	Exchange     string
	BarCachePath string
}

// BacktestConfig holds defaults for backtest runs
type BacktestConfig struct {
	InitialCapital float64
	RiskFreeRate   float64
	Timeout        time.Duration
	Interval       string
}

// StorageConfig selects where backtest reports are archived
type StorageConfig struct {
	Type      string // "local" or "s3"
	LocalPath string
	BaseURL   string
	S3Bucket  string
	S3Region  string
	S3Prefix  string
}

// RateLimitConfig holds request throttling configuration
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	Enabled    bool
	Expiration time.Duration
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the configuration from file and environment variables.
// A .env file next to the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path must be set")
	}
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwtSecret must be set")
	}
	return cfg, nil
}

// LoadKiteConfig resolves only the broker settings, for tools that talk to
// Kite without running the service. The config file is optional; defaults
// and KITE_* variables apply either way.
func LoadKiteConfig(path string) (KiteConfig, error) {
	cfg, err := load(path)
	if err != nil {
		return KiteConfig{}, err
	}
	return cfg.Kite, nil
}

func load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// KITE_APIKEY overrides kite.apiKey, and so on
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.idleTimeout", "120s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "30m")

	v.SetDefault("auth.accessTokenTTL", "30m")
	v.SetDefault("auth.refreshTokenTTL", "168h")
	v.SetDefault("auth.bcryptCost", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	// Kafka topic defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topics.backtestEvents", "backtest-events")
	v.SetDefault("kafka.topics.orderEvents", "order-events")

	// empty defaults let KITE_APIKEY and KITE_ACCESSTOKEN apply without a file
	v.SetDefault("kite.baseURL", "https://api.kite.trade")
	v.SetDefault("kite.apiKey", "")
	v.SetDefault("kite.accessToken", "")
	v.SetDefault("kite.timeout", "10s")
	v.SetDefault("kite.requestsPerSecond", 3)
	v.SetDefault("kite.maxRetries", 3)

	v.SetDefault("marketData.pollInterval", "1s")
	v.SetDefault("marketData.windowSize", 100)
	v.SetDefault("marketData.exchange", "NSE")

	v.SetDefault("backtest.initialCapital", 100000)
	v.SetDefault("backtest.riskFreeRate", 0.02)
	v.SetDefault("backtest.timeout", "5m")
	v.SetDefault("backtest.interval", "day")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.localPath", "./data/reports")
	v.SetDefault("storage.baseURL", "/reports")

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.limit", 120)
	v.SetDefault("rateLimit.window", "1m")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.expiration", "1m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
