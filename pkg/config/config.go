package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Alerts   AlertsConfig
	Cases    CasesConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AlertsConfig tunes the case alert engine and its optional scheduled runs.
type AlertsConfig struct {
	ReminderDays      int
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	SystemUserID      string
	WorkerRetries     int
}

// CasesConfig governs case summary caching and exports.
type CasesConfig struct {
	SummaryCacheTTL time.Duration
	ExportMaxRows   int
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	reminderDays := v.GetInt("ALERT_REMINDER_DAYS")
	if reminderDays <= 0 {
		reminderDays = 7
	}
	cfg.Alerts = AlertsConfig{
		ReminderDays:      reminderDays,
		SchedulerEnabled:  v.GetBool("ENABLE_ALERT_SCHEDULER"),
		SchedulerInterval: parseDuration(v.GetString("ALERT_SCHEDULER_INTERVAL"), 24*time.Hour),
		SystemUserID:      v.GetString("ALERT_SYSTEM_USER_ID"),
		WorkerRetries:     v.GetInt("ALERT_WORKER_RETRIES"),
	}

	cfg.Cases = CasesConfig{
		SummaryCacheTTL: parseDuration(v.GetString("CASE_SUMMARY_CACHE_TTL"), 5*time.Minute),
		ExportMaxRows:   v.GetInt("CASE_EXPORT_MAX_ROWS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_cases")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ALERT_REMINDER_DAYS", 7)
	v.SetDefault("ENABLE_ALERT_SCHEDULER", false)
	v.SetDefault("ALERT_SCHEDULER_INTERVAL", "24h")
	v.SetDefault("ALERT_SYSTEM_USER_ID", "system")
	v.SetDefault("ALERT_WORKER_RETRIES", 2)

	v.SetDefault("CASE_SUMMARY_CACHE_TTL", "5m")
	v.SetDefault("CASE_EXPORT_MAX_ROWS", 1000)
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
