package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig `mapstructure:"log"`
	Database  DatabaseConfig
	JWT       JWTConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Cache     CacheConfig     `mapstructure:"cache"`
	Attempt   AttemptConfig   `mapstructure:"attempt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Runtime flags, set from the command line.
	ForceMigrate bool   `mapstructure:"-"`
	MigrateOnly  bool   `mapstructure:"-"`
	SeedPath     string `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig budgets requests per caller. MaxRequests/WindowMinutes cover the
// authenticated API; Auth and Session override it for sign-in and live exam sessions.
type RateLimitConfig struct {
	MaxRequests   int           `mapstructure:"max_requests"`
	WindowMinutes int           `mapstructure:"window_minutes"`
	Auth          RateLimitRule `mapstructure:"auth"`
	Session       RateLimitRule `mapstructure:"session"`
}

// RateLimitRule allows MaxRequests per WindowSeconds. Zero requests disables the limit.
type RateLimitRule struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

func (r RateLimitRule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// API expresses the default budget as a rule.
func (c RateLimitConfig) API() RateLimitRule {
	return RateLimitRule{MaxRequests: c.MaxRequests, WindowSeconds: c.WindowMinutes * 60}
}

type DatabaseConfig struct {
	Driver    string `mapstructure:"driver"`
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool   `mapstructure:"parse_time"`
	SSLMode   string `mapstructure:"sslmode"`
	Path      string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	Host               string
	Port               int
	Password           string
	DB                 int
	PoolSize           int `mapstructure:"pool_size"`
	MinIdleConns       int `mapstructure:"min_idle_conns"`
	DialTimeoutSeconds int `mapstructure:"dial_timeout_seconds"`
}

type CacheConfig struct {
	Backend    string `mapstructure:"backend"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// AttemptConfig controls the exam-taking countdown and abandoned-attempt housekeeping.
type AttemptConfig struct {
	DefaultDurationSeconds int    `mapstructure:"default_duration_seconds"`
	UseExamDuration        bool   `mapstructure:"use_exam_duration"`
	AbandonAfterHours      int    `mapstructure:"abandon_after_hours"`
	ReapSchedule           string `mapstructure:"reap_schedule"`
	SessionIdleMinutes     int    `mapstructure:"session_idle_minutes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "exam_prep.db")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("attempt.default_duration_seconds", 3600)
	v.SetDefault("attempt.use_exam_duration", true)
	v.SetDefault("attempt.abandon_after_hours", 24)
	v.SetDefault("attempt.reap_schedule", "@every 1h")
	v.SetDefault("attempt.session_idle_minutes", 120)
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("rate_limit.auth.max_requests", 10)
	v.SetDefault("rate_limit.auth.window_seconds", 60)
	v.SetDefault("rate_limit.session.max_requests", 300)
	v.SetDefault("rate_limit.session.window_seconds", 60)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.dial_timeout_seconds", 5)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EXAM_PREP")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Attempt.DefaultDurationSeconds <= 0 {
		return fmt.Errorf("attempt.default_duration_seconds must be positive, got %d", c.Attempt.DefaultDurationSeconds)
	}
	for name, rule := range map[string]RateLimitRule{
		"rate_limit":         c.RateLimit.API(),
		"rate_limit.auth":    c.RateLimit.Auth,
		"rate_limit.session": c.RateLimit.Session,
	} {
		if rule.MaxRequests > 0 && rule.WindowSeconds <= 0 {
			return fmt.Errorf("%s: window must be positive when max_requests is set", name)
		}
	}
	switch c.Cache.Backend {
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("cache.backend is redis but redis.enabled is false")
		}
	case "memory", "":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}
