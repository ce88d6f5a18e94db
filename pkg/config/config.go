package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Upstream API variants. The two front ends disagree on path shapes.
const (
	VariantStudent = "student"
	VariantAdmin   = "admin"
)

// Token store drivers.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Env  string
	Port int

	API        APIConfig
	Endpoints  EndpointOverrides
	TokenStore TokenStoreConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Session    SessionConfig
	Reconcile  ReconcileConfig
	CORS       CORSConfig
	Log        LogConfig
	Metrics    MetricsConfig
}

// APIConfig points the agent at the upstream enrollment API.
type APIConfig struct {
	BaseURL string
	Variant string
	Timeout time.Duration
}

// EndpointOverrides replaces individual entries of the variant endpoint table. Empty values keep the preset.
type EndpointOverrides struct {
	Login          string
	Refresh        string
	Me             string
	Logout         string
	ListForStudent string
	ListAll        string
	CheckConflict  string
	Enroll         string
	Withdraw       string
}

// TokenStoreConfig selects where the access/refresh pair is persisted.
type TokenStoreConfig struct {
	Driver   string
	FilePath string
	Prefix   string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SessionConfig tunes access-token expiry evaluation.
type SessionConfig struct {
	ExpirySkew time.Duration
}

// ReconcileConfig sizes the background reload queue.
type ReconcileConfig struct {
	QueueSize int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.API = APIConfig{
		BaseURL: strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		Variant: normalizeVariant(v.GetString("API_VARIANT")),
		Timeout: parseDuration(v.GetString("API_TIMEOUT"), 15*time.Second),
	}

	cfg.Endpoints = EndpointOverrides{
		Login:          v.GetString("ENDPOINT_LOGIN"),
		Refresh:        v.GetString("ENDPOINT_REFRESH"),
		Me:             v.GetString("ENDPOINT_ME"),
		Logout:         v.GetString("ENDPOINT_LOGOUT"),
		ListForStudent: v.GetString("ENDPOINT_LIST_FOR_STUDENT"),
		ListAll:        v.GetString("ENDPOINT_LIST_ALL"),
		CheckConflict:  v.GetString("ENDPOINT_CHECK_CONFLICT"),
		Enroll:         v.GetString("ENDPOINT_ENROLL"),
		Withdraw:       v.GetString("ENDPOINT_WITHDRAW"),
	}

	cfg.TokenStore = TokenStoreConfig{
		Driver:   strings.ToLower(v.GetString("TOKEN_STORE_DRIVER")),
		FilePath: v.GetString("TOKEN_STORE_FILE"),
		Prefix:   v.GetString("TOKEN_STORE_PREFIX"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Session = SessionConfig{
		ExpirySkew: parseDuration(v.GetString("SESSION_EXPIRY_SKEW"), 10*time.Second),
	}

	queueSize := v.GetInt("RECONCILE_QUEUE_SIZE")
	if queueSize <= 0 {
		queueSize = 16
	}
	cfg.Reconcile = ReconcileConfig{QueueSize: queueSize}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8090)

	v.SetDefault("API_BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("API_VARIANT", VariantStudent)
	v.SetDefault("API_TIMEOUT", "15s")

	v.SetDefault("TOKEN_STORE_DRIVER", StoreFile)
	v.SetDefault("TOKEN_STORE_FILE", "./.portal-session.json")
	v.SetDefault("TOKEN_STORE_PREFIX", "portal:")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "portal_agent")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 4)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SESSION_EXPIRY_SKEW", "10s")
	v.SetDefault("RECONCILE_QUEUE_SIZE", 16)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ENABLE_METRICS", true)
}

func normalizeVariant(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case VariantAdmin:
		return VariantAdmin
	default:
		return VariantStudent
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
