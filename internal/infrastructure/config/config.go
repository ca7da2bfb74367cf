package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Stock     StockConfig
	Locker    LockerConfig
	Kafka     KafkaConfig
	Alert     AlertConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string // database name, or the file/URI for sqlite
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds the settings used to verify access tokens
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
}

// StockConfig tunes the reservation engine
type StockConfig struct {
	LockWaitTimeout          time.Duration // how long a mutation waits for its stock keys
	LockTTL                  time.Duration // lease of a distributed lock
	RetryAttempts            int
	RetryBackoff             time.Duration
	ExpirySoonWindowDays     int
	ReservationTTL           time.Duration // 0 keeps reservations until released
	ReservationSweepInterval time.Duration
	ReservationSweepLimit    int
	DefaultRequiresQC        bool
	DefaultUnit              string
	ReportURLTTL             time.Duration
	ReportExportInterval     time.Duration // 0 disables the scheduled expiry export
}

// LockerConfig selects the key locker implementation
type LockerConfig struct {
	Backend       string // memory or redis
	KeyPrefix     string
	RetryInterval time.Duration
}

// KafkaConfig holds stock event streaming settings
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	ClientID     string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// AlertConfig holds low-stock alert settings
type AlertConfig struct {
	RedisEnabled bool
	RedisChannel string
	Cooldown     time.Duration
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Enabled           bool
	Endpoint          string
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool
	PresignExpiration time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// ProfilingConfig holds continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	BasicAuthUser     string
	BasicAuthPassword string
	MutexProfiling    bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_DATABASE_PASSWORD)
// 2. .env file in the working directory, if present
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	// A missing .env is fine; real environment variables still win
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans whose default is true cannot be detected as unset later
	v.SetDefault("stock.default_requires_qc", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Stock: StockConfig{
			LockWaitTimeout:          v.GetDuration("stock.lock_wait_timeout"),
			LockTTL:                  v.GetDuration("stock.lock_ttl"),
			RetryAttempts:            v.GetInt("stock.retry_attempts"),
			RetryBackoff:             v.GetDuration("stock.retry_backoff"),
			ExpirySoonWindowDays:     v.GetInt("stock.expiry_soon_window_days"),
			ReservationTTL:           v.GetDuration("stock.reservation_ttl"),
			ReservationSweepInterval: v.GetDuration("stock.reservation_sweep_interval"),
			ReservationSweepLimit:    v.GetInt("stock.reservation_sweep_limit"),
			DefaultRequiresQC:        v.GetBool("stock.default_requires_qc"),
			DefaultUnit:              v.GetString("stock.default_unit"),
			ReportURLTTL:             v.GetDuration("stock.report_url_ttl"),
			ReportExportInterval:     v.GetDuration("stock.report_export_interval"),
		},
		Locker: LockerConfig{
			Backend:       v.GetString("locker.backend"),
			KeyPrefix:     v.GetString("locker.key_prefix"),
			RetryInterval: v.GetDuration("locker.retry_interval"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("kafka.enabled"),
			Brokers:      v.GetStringSlice("kafka.brokers"),
			Topic:        v.GetString("kafka.topic"),
			ClientID:     v.GetString("kafka.client_id"),
			BatchTimeout: v.GetDuration("kafka.batch_timeout"),
			WriteTimeout: v.GetDuration("kafka.write_timeout"),
		},
		Alert: AlertConfig{
			RedisEnabled: v.GetBool("alert.redis_enabled"),
			RedisChannel: v.GetString("alert.redis_channel"),
			Cooldown:     v.GetDuration("alert.cooldown"),
		},
		Storage: StorageConfig{
			Enabled:           v.GetBool("storage.enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			MutexProfiling:    v.GetBool("profiling.mutex_profiling"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stock-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "stock"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "stock-engine"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.Stock.LockWaitTimeout == 0 {
		cfg.Stock.LockWaitTimeout = 3 * time.Second
	}
	if cfg.Stock.LockTTL == 0 {
		cfg.Stock.LockTTL = 10 * time.Second
	}
	if cfg.Stock.RetryAttempts == 0 {
		cfg.Stock.RetryAttempts = 3
	}
	if cfg.Stock.RetryBackoff == 0 {
		cfg.Stock.RetryBackoff = 50 * time.Millisecond
	}
	if cfg.Stock.ExpirySoonWindowDays == 0 {
		cfg.Stock.ExpirySoonWindowDays = 1
	}
	if cfg.Stock.ReservationSweepInterval == 0 {
		cfg.Stock.ReservationSweepInterval = time.Minute
	}
	if cfg.Stock.ReservationSweepLimit == 0 {
		cfg.Stock.ReservationSweepLimit = 500
	}
	if cfg.Stock.DefaultUnit == "" {
		cfg.Stock.DefaultUnit = "unit"
	}
	if cfg.Stock.ReportURLTTL == 0 {
		cfg.Stock.ReportURLTTL = 15 * time.Minute
	}
	if cfg.Locker.Backend == "" {
		cfg.Locker.Backend = "memory"
	}
	if cfg.Locker.KeyPrefix == "" {
		cfg.Locker.KeyPrefix = "lock:"
	}
	if cfg.Locker.RetryInterval == 0 {
		cfg.Locker.RetryInterval = 25 * time.Millisecond
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "stock-events"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = cfg.App.Name
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 5 * time.Second
	}
	if cfg.Alert.RedisChannel == "" {
		cfg.Alert.RedisChannel = "stock-alerts"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 15 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ServerAddress == "" {
		cfg.Profiling.ServerAddress = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Locker.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("locker.backend must be memory or redis, got %q", c.Locker.Backend)
	}
	if c.Stock.RetryAttempts < 1 {
		return fmt.Errorf("stock.retry_attempts must be at least 1")
	}
	if c.Stock.ExpirySoonWindowDays < 0 {
		return fmt.Errorf("stock.expiry_soon_window_days cannot be negative")
	}
	if c.Stock.ReservationTTL < 0 {
		return fmt.Errorf("stock.reservation_ttl cannot be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Driver == "sqlite" {
			return fmt.Errorf("database.driver sqlite is not supported in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values.
// For sqlite the database name is used as the file name or URI.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.DBName
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
