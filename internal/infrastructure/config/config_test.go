package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// managedEnv lists every variable the tests touch so each case starts clean
var managedEnv = []string{
	"ERP_APP_NAME",
	"ERP_APP_ENV",
	"ERP_APP_PORT",
	"ERP_DATABASE_DRIVER",
	"ERP_DATABASE_HOST",
	"ERP_DATABASE_PORT",
	"ERP_DATABASE_USER",
	"ERP_DATABASE_PASSWORD",
	"ERP_DATABASE_DBNAME",
	"ERP_DATABASE_SSLMODE",
	"ERP_DATABASE_MAX_OPEN_CONNS",
	"ERP_DATABASE_MAX_IDLE_CONNS",
	"ERP_JWT_SECRET",
	"ERP_STOCK_RETRY_ATTEMPTS",
	"ERP_STOCK_LOCK_WAIT_TIMEOUT",
	"ERP_STOCK_DEFAULT_REQUIRES_QC",
	"ERP_STOCK_RESERVATION_TTL",
	"ERP_LOCKER_BACKEND",
	"ERP_KAFKA_ENABLED",
	"ERP_KAFKA_BROKERS",
	"ERP_STORAGE_ENABLED",
	"ERP_STORAGE_BUCKET",
	"ERP_HTTP_CORS_ALLOW_ORIGINS",
	"ERP_TELEMETRY_SAMPLING_RATIO",
}

func saveEnv(t *testing.T) func() {
	t.Helper()
	original := make(map[string]string, len(managedEnv))
	for _, k := range managedEnv {
		original[k] = os.Getenv(k)
	}
	t.Cleanup(func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	})
	return func() {
		for _, k := range managedEnv {
			os.Unsetenv(k)
		}
	}
}

func TestLoad(t *testing.T) {
	clearEnv := saveEnv(t)

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "stock-engine", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "stock", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Equal(t, 3*time.Second, cfg.Stock.LockWaitTimeout)
		assert.Equal(t, 3, cfg.Stock.RetryAttempts)
		assert.Equal(t, 50*time.Millisecond, cfg.Stock.RetryBackoff)
		assert.Equal(t, 1, cfg.Stock.ExpirySoonWindowDays)
		assert.Zero(t, cfg.Stock.ReservationTTL)
		assert.True(t, cfg.Stock.DefaultRequiresQC)
		assert.Equal(t, "unit", cfg.Stock.DefaultUnit)

		assert.Equal(t, "memory", cfg.Locker.Backend)
		assert.False(t, cfg.Kafka.Enabled)
		assert.Equal(t, "stock-events", cfg.Kafka.Topic)
		assert.Equal(t, "stock-engine", cfg.Kafka.ClientID)
		assert.Equal(t, "stock-alerts", cfg.Alert.RedisChannel)
		assert.False(t, cfg.Storage.Enabled)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, "stock-engine", cfg.Telemetry.ServiceName)
	})

	t.Run("loads values from environment variables with ERP prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_APP_NAME", "test-app")
		os.Setenv("ERP_APP_ENV", "testing")
		os.Setenv("ERP_APP_PORT", "9000")
		os.Setenv("ERP_DATABASE_HOST", "testdb.local")
		os.Setenv("ERP_DATABASE_PORT", "5433")
		os.Setenv("ERP_DATABASE_USER", "testuser")
		os.Setenv("ERP_DATABASE_PASSWORD", "testpass")
		os.Setenv("ERP_DATABASE_DBNAME", "testdb")
		os.Setenv("ERP_DATABASE_SSLMODE", "require")
		os.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "50")
		os.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "10")
		os.Setenv("ERP_STOCK_RETRY_ATTEMPTS", "5")
		os.Setenv("ERP_STOCK_LOCK_WAIT_TIMEOUT", "750ms")
		os.Setenv("ERP_STOCK_DEFAULT_REQUIRES_QC", "false")
		os.Setenv("ERP_STOCK_RESERVATION_TTL", "30m")
		os.Setenv("ERP_LOCKER_BACKEND", "redis")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testuser", cfg.Database.User)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "testdb", cfg.Database.DBName)
		assert.Equal(t, "require", cfg.Database.SSLMode)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, 5, cfg.Stock.RetryAttempts)
		assert.Equal(t, 750*time.Millisecond, cfg.Stock.LockWaitTimeout)
		assert.False(t, cfg.Stock.DefaultRequiresQC)
		assert.Equal(t, 30*time.Minute, cfg.Stock.ReservationTTL)
		assert.Equal(t, "redis", cfg.Locker.Backend)
		assert.Equal(t, "test-app", cfg.Telemetry.ServiceName)
	})

	t.Run("sqlite driver uses dbname as dsn", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_DATABASE_DRIVER", "sqlite")
		os.Setenv("ERP_DATABASE_DBNAME", "file:stock.db")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "file:stock.db", cfg.Database.DSN())
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects unknown locker backend", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_LOCKER_BACKEND", "etcd")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locker.backend")
	})

	t.Run("requires brokers when kafka is enabled", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_KAFKA_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kafka.brokers")

		os.Setenv("ERP_KAFKA_BROKERS", "localhost:9092")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("requires bucket when storage is enabled", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_STORAGE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("zero MaxOpenConns uses default", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "0")

		cfg, err := Load()
		require.NoError(t, err)
		// 0 is treated as "not set", so default (25) is used
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("validates sampling ratio range", func(t *testing.T) {
		clearEnv()
		os.Setenv("ERP_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	clearEnv := saveEnv(t)

	// Helper to set valid production base config
	setValidProductionBase := func() {
		os.Setenv("ERP_APP_ENV", "production")
		os.Setenv("ERP_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("ERP_DATABASE_PASSWORD", "secure-password")
		os.Setenv("ERP_DATABASE_SSLMODE", "require")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("ERP_JWT_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("ERP_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("ERP_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("ERP_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects sqlite in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("ERP_DATABASE_DRIVER", "sqlite")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite is not supported in production")
	})

	t.Run("rejects wildcard cors origin in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("ERP_HTTP_CORS_ALLOW_ORIGINS", "*")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		// URL-encoded password should be in the DSN
		assert.Contains(t, dsn, "pass%40word%23123")
	})

	t.Run("sqlite returns the file name", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: "sqlite", DBName: "file::memory:?cache=shared"}
		assert.Equal(t, "file::memory:?cache=shared", cfg.DSN())
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", cfg.Addr())
}
