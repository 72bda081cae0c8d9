package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Shortcode ShortcodeConfig
	Sweep     SweepConfig
	GeoIP     GeoIPConfig
	Auth      AuthConfig
}

type AppConfig struct {
	Env     string
	Port    string
	BaseURL string
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

type RateLimitConfig struct {
	Requests int
	Duration time.Duration
}

type ShortcodeConfig struct {
	CodeLength          int
	MaxGenerateAttempts int
	DefaultValidityMins int
	MaxValidityMins     int
}

type SweepConfig struct {
	Interval time.Duration
}

type GeoIPConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	APIKeys       map[string]string
	BasicUser     string
	BasicPassword string
}

func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file (optional, env vars take precedence)
	_ = viper.ReadInConfig()

	cfg := &Config{
		App: AppConfig{
			Env:     viper.GetString("APP_ENV"),
			Port:    viper.GetString("APP_PORT"),
			BaseURL: viper.GetString("APP_BASE_URL"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("POSTGRES_HOST"),
			Port:     viper.GetString("POSTGRES_PORT"),
			User:     viper.GetString("POSTGRES_USER"),
			Password: viper.GetString("POSTGRES_PASSWORD"),
			DBName:   viper.GetString("POSTGRES_DB"),
			SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
			MaxConns: viper.GetInt("POSTGRES_MAX_CONNS"),
			MinConns: viper.GetInt("POSTGRES_MIN_CONNS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
		},
		RateLimit: RateLimitConfig{
			Requests: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Duration: viper.GetDuration("RATE_LIMIT_DURATION"),
		},
		Shortcode: ShortcodeConfig{
			CodeLength:          viper.GetInt("SHORT_CODE_LENGTH"),
			MaxGenerateAttempts: viper.GetInt("SHORT_CODE_MAX_ATTEMPTS"),
			DefaultValidityMins: viper.GetInt("SHORT_CODE_DEFAULT_VALIDITY_MINUTES"),
			MaxValidityMins:     viper.GetInt("SHORT_CODE_MAX_VALIDITY_MINUTES"),
		},
		Sweep: SweepConfig{
			Interval: viper.GetDuration("SWEEP_INTERVAL"),
		},
		GeoIP: GeoIPConfig{
			Endpoint: viper.GetString("GEOIP_ENDPOINT"),
			Timeout:  viper.GetDuration("GEOIP_TIMEOUT"),
		},
		Auth: AuthConfig{
			JWTSecret:     viper.GetString("AUTH_JWT_SECRET"),
			TokenTTL:      viper.GetDuration("AUTH_TOKEN_TTL"),
			APIKeys:       viper.GetStringMapString("AUTH_API_KEYS"),
			BasicUser:     viper.GetString("AUTH_BASIC_USER"),
			BasicPassword: viper.GetString("AUTH_BASIC_PASSWORD"),
		},
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_BASE_URL", "http://localhost")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_USER", "shortlink")
	viper.SetDefault("POSTGRES_PASSWORD", "shortlink")
	viper.SetDefault("POSTGRES_DB", "shortlink")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 25)
	viper.SetDefault("POSTGRES_MIN_CONNS", 5)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 10)

	viper.SetDefault("RATE_LIMIT_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_DURATION", "1m")

	viper.SetDefault("SHORT_CODE_LENGTH", 8)
	viper.SetDefault("SHORT_CODE_MAX_ATTEMPTS", 10)
	viper.SetDefault("SHORT_CODE_DEFAULT_VALIDITY_MINUTES", 30)
	viper.SetDefault("SHORT_CODE_MAX_VALIDITY_MINUTES", 1440)

	viper.SetDefault("SWEEP_INTERVAL", "5m")

	viper.SetDefault("GEOIP_ENDPOINT", "http://ip-api.com/json")
	viper.SetDefault("GEOIP_TIMEOUT", "5s")

	viper.SetDefault("AUTH_JWT_SECRET", "")
	viper.SetDefault("AUTH_TOKEN_TTL", "15m")
	viper.SetDefault("AUTH_BASIC_USER", "")
	viper.SetDefault("AUTH_BASIC_PASSWORD", "")
}

func (c *PostgresConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}
