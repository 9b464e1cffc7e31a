package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the optional revocation cache connection.
type RedisSettings struct {
	Enabled          bool   `mapstructure:"enabled"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	DB               int    `mapstructure:"db"`
	Password         string `mapstructure:"password"`
	TLSEnabled       bool   `mapstructure:"tls_enabled"`
	RevocationPrefix string `mapstructure:"revocation_prefix"`
}

// KafkaSettings configures the notification event producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// AuthSettings gathers token lifetimes, concurrency caps, and lockout tuning.
type AuthSettings struct {
	Issuer               string        `mapstructure:"issuer"`
	KeyDirectory         string        `mapstructure:"key_directory"`
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	WebRefreshTokenTTL   time.Duration `mapstructure:"web_refresh_token_ttl"`
	AppRefreshTokenTTL   time.Duration `mapstructure:"app_refresh_token_ttl"`
	SecurityTokenTTL     time.Duration `mapstructure:"security_token_ttl"`
	SimpleOTPTTL         time.Duration `mapstructure:"simple_otp_ttl"`
	MaxAccessTokens      int           `mapstructure:"max_access_tokens"`
	MaxRefreshTokens     int           `mapstructure:"max_refresh_tokens"`
	MaxSecurityWarns     int           `mapstructure:"max_security_warns"`
	LockDuration         time.Duration `mapstructure:"lock_duration"`
	BackupCodeCount      int           `mapstructure:"backup_code_count"`
	PasswordMinLength    int           `mapstructure:"password_min_length"`
	PasswordMinClasses   int           `mapstructure:"password_min_classes"`
	PasswordMinZxcvbn    int           `mapstructure:"password_min_zxcvbn"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("TSM")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.revocation_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"auth.issuer",
		"auth.key_directory",
		"auth.access_token_ttl",
		"auth.web_refresh_token_ttl",
		"auth.app_refresh_token_ttl",
		"auth.security_token_ttl",
		"auth.simple_otp_ttl",
		"auth.max_access_tokens",
		"auth.max_refresh_tokens",
		"auth.max_security_warns",
		"auth.lock_duration",
		"auth.backup_code_count",
		"auth.password_min_length",
		"auth.password_min_classes",
		"auth.password_min_zxcvbn",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "thestudentmaster-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "tsm")
	v.SetDefault("postgres.password", "tsm_password")
	v.SetDefault("postgres.database", "tsm")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.revocation_prefix", "tsm:revoked")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "tsm")

	v.SetDefault("auth.issuer", "thestudentmaster")
	v.SetDefault("auth.key_directory", "./secrets")
	v.SetDefault("auth.access_token_ttl", "8m")
	v.SetDefault("auth.web_refresh_token_ttl", "15m")
	v.SetDefault("auth.app_refresh_token_ttl", "720h")
	v.SetDefault("auth.security_token_ttl", "5m")
	v.SetDefault("auth.simple_otp_ttl", "15m")
	v.SetDefault("auth.max_access_tokens", 8)
	v.SetDefault("auth.max_refresh_tokens", 5)
	v.SetDefault("auth.max_security_warns", 5)
	v.SetDefault("auth.lock_duration", "2h")
	v.SetDefault("auth.backup_code_count", 6)
	v.SetDefault("auth.password_min_length", 10)
	v.SetDefault("auth.password_min_classes", 3)
	v.SetDefault("auth.password_min_zxcvbn", 2)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "thestudentmaster-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "TSM_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
