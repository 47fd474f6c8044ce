package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Gateway environments.
const (
	EnvTest       = "test"
	EnvProduction = "production"
)

// State backends for tokens and rate-limit buckets.
const (
	StateMemory = "memory"
	StateRedis  = "redis"
)

type Config struct {
	AppEnv    string          `yaml:"app_env"`
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Auth      AuthConfig      `yaml:"auth"`
	Features  FeatureFlags    `yaml:"features"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	StoreURL       string        `yaml:"store_url"`
}

type DatabaseConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"`
	SSLMode      string        `yaml:"sslmode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	MaxLifetime  time.Duration `yaml:"max_lifetime"`
}

func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

// URL renders the connection as a postgres:// URL for pgx.
func (d DatabaseConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" +
		strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	OrdersTopic string   `yaml:"orders_topic"`
}

// GatewayConfig configures the external card/installment payment gateway.
type GatewayConfig struct {
	Environment   string        `yaml:"environment"`
	TestURL       string        `yaml:"test_url"`
	ProductionURL string        `yaml:"production_url"`
	Email         string        `yaml:"email"`
	Password      string        `yaml:"password"`
	PartnerID     string        `yaml:"partner_id"`
	SuccessURL    string        `yaml:"success_url"`
	CancelURL     string        `yaml:"cancel_url"`
	DeclineURL    string        `yaml:"decline_url"`
	Timeout       time.Duration `yaml:"timeout"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	RequestsPerS  float64       `yaml:"requests_per_second"`
	AllowMock     bool          `yaml:"allow_mock"`
}

// BaseURL selects the gateway host for the configured environment.
func (g GatewayConfig) BaseURL() string {
	if g.Environment == EnvProduction {
		return strings.TrimRight(g.ProductionURL, "/")
	}
	return strings.TrimRight(g.TestURL, "/")
}

// HasCredentials reports whether login credentials are configured.
func (g GatewayConfig) HasCredentials() bool {
	return g.Email != "" && g.Password != ""
}

// MockAllowed reports whether missing credentials may fall back to mock sessions.
func (g GatewayConfig) MockAllowed() bool {
	return g.AllowMock || g.Environment != EnvProduction
}

type RateLimitConfig struct {
	MaxRequests   int           `yaml:"max_requests"`
	Window        time.Duration `yaml:"window"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	FromAddr string `yaml:"from_addr"`
	FromName string `yaml:"from_name"`
}

// Enabled reports whether enough SMTP settings exist to send mail.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.FromAddr != ""
}

type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	AdminEmail        string        `yaml:"admin_email"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
}

type FeatureFlags struct {
	EnableOrderEvents  bool   `yaml:"enable_order_events"`
	EnableOrderCaching bool   `yaml:"enable_order_caching"`
	StateBackend       string `yaml:"state_backend"`
}

// Load reads .env, an optional YAML file named by CONFIG_PATH, and finally
// environment variables, each layer overriding the previous one. A
// CONFIG_PATH that cannot be read or parsed is an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Gateway.Environment {
	case EnvTest, EnvProduction:
	default:
		return fmt.Errorf("invalid payment environment %q: want %q or %q",
			c.Gateway.Environment, EnvTest, EnvProduction)
	}

	switch c.Features.StateBackend {
	case StateMemory, StateRedis:
	default:
		return fmt.Errorf("invalid state backend %q", c.Features.StateBackend)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		AppEnv:   "production",
		LogLevel: "info",
		Server: ServerConfig{
			Port:           8082,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"http://localhost:3000"},
			StoreURL:       "http://localhost:3000",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "sahib",
			Password:     "sahib",
			Name:         "sahibparfum",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			MaxLifetime:  5 * time.Minute,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			TTL:  5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			OrdersTopic: "storefront.orders",
		},
		Gateway: GatewayConfig{
			TestURL:       "https://test.payriff.com",
			ProductionURL: "https://api.payriff.com",
			Timeout:       20 * time.Second,
			TokenTTL:      55 * time.Minute,
			RequestsPerS:  5,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   10,
			Window:        15 * time.Minute,
			SweepInterval: time.Minute,
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "Sahib Parfum",
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		Features: FeatureFlags{
			EnableOrderEvents:  true,
			EnableOrderCaching: true,
			StateBackend:       StateMemory,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.AppEnv = getEnvString("APP_ENV", cfg.AppEnv)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)

	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvSeconds("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvSeconds("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Server.StoreURL = getEnvString("STORE_URL", cfg.Server.StoreURL)

	cfg.Database.Host = getEnvString("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvString("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvString("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnvString("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnvString("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Redis.Host = getEnvString("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnvInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TTL = getEnvSeconds("REDIS_CACHE_TTL", cfg.Redis.TTL)

	cfg.Kafka.Brokers = getEnvList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.OrdersTopic = getEnvString("KAFKA_ORDERS_TOPIC", cfg.Kafka.OrdersTopic)

	cfg.Gateway.Environment = strings.ToLower(getEnvString("PAYMENT_ENVIRONMENT", cfg.Gateway.Environment))
	if cfg.Gateway.Environment == "" {
		// Unset: follow the application environment.
		cfg.Gateway.Environment = EnvTest
		if cfg.AppEnv == EnvProduction {
			cfg.Gateway.Environment = EnvProduction
		}
	}
	cfg.Gateway.TestURL = getEnvString("PAYMENT_GATEWAY_TEST_URL", cfg.Gateway.TestURL)
	cfg.Gateway.ProductionURL = getEnvString("PAYMENT_GATEWAY_PROD_URL", cfg.Gateway.ProductionURL)
	cfg.Gateway.Email = getEnvString("PAYMENT_GATEWAY_EMAIL", cfg.Gateway.Email)
	cfg.Gateway.Password = getEnvString("PAYMENT_GATEWAY_PASSWORD", cfg.Gateway.Password)
	cfg.Gateway.PartnerID = getEnvString("PAYMENT_GATEWAY_PARTNER_ID", cfg.Gateway.PartnerID)
	cfg.Gateway.SuccessURL = getEnvString("PAYMENT_SUCCESS_URL", cfg.Gateway.SuccessURL)
	cfg.Gateway.CancelURL = getEnvString("PAYMENT_CANCEL_URL", cfg.Gateway.CancelURL)
	cfg.Gateway.DeclineURL = getEnvString("PAYMENT_DECLINE_URL", cfg.Gateway.DeclineURL)
	cfg.Gateway.Timeout = getEnvSeconds("PAYMENT_GATEWAY_TIMEOUT", cfg.Gateway.Timeout)
	cfg.Gateway.TokenTTL = getEnvSeconds("PAYMENT_TOKEN_TTL", cfg.Gateway.TokenTTL)
	cfg.Gateway.RequestsPerS = getEnvFloat("PAYMENT_GATEWAY_RPS", cfg.Gateway.RequestsPerS)
	cfg.Gateway.AllowMock = getEnvBool("PAYMENT_ALLOW_MOCK", cfg.Gateway.AllowMock)
	if cfg.Gateway.SuccessURL == "" {
		cfg.Gateway.SuccessURL = strings.TrimRight(cfg.Server.StoreURL, "/") + "/payment/success"
	}
	if cfg.Gateway.CancelURL == "" {
		cfg.Gateway.CancelURL = strings.TrimRight(cfg.Server.StoreURL, "/") + "/payment/cancel"
	}
	if cfg.Gateway.DeclineURL == "" {
		cfg.Gateway.DeclineURL = strings.TrimRight(cfg.Server.StoreURL, "/") + "/payment/decline"
	}

	cfg.RateLimit.MaxRequests = getEnvInt("PAYMENT_RATE_LIMIT_MAX", cfg.RateLimit.MaxRequests)
	cfg.RateLimit.Window = getEnvSeconds("PAYMENT_RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	cfg.SMTP.Host = getEnvString("SMTP_SERVER", cfg.SMTP.Host)
	cfg.SMTP.Port = getEnvInt("SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.User = getEnvString("SMTP_USER", cfg.SMTP.User)
	cfg.SMTP.Password = getEnvString("SMTP_PASS", cfg.SMTP.Password)
	cfg.SMTP.FromAddr = getEnvString("FROM_ADDR", cfg.SMTP.FromAddr)
	cfg.SMTP.FromName = getEnvString("FROM_NAME", cfg.SMTP.FromName)

	cfg.Auth.JWTSecret = getEnvString("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenTTL = getEnvSeconds("JWT_TTL", cfg.Auth.TokenTTL)
	cfg.Auth.AdminEmail = getEnvString("ADMIN_EMAIL", cfg.Auth.AdminEmail)
	cfg.Auth.AdminPasswordHash = getEnvString("ADMIN_PASSWORD_HASH", cfg.Auth.AdminPasswordHash)

	cfg.Features.EnableOrderEvents = getEnvBool("ENABLE_ORDER_EVENTS", cfg.Features.EnableOrderEvents)
	cfg.Features.EnableOrderCaching = getEnvBool("ENABLE_ORDER_CACHING", cfg.Features.EnableOrderCaching)
	cfg.Features.StateBackend = strings.ToLower(getEnvString("STATE_BACKEND", cfg.Features.StateBackend))
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvSeconds reads an integer number of seconds.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
