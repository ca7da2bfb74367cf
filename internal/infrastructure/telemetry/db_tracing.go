package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds database tracing configuration
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL includes bound variables in span statements
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DBTracingPlugin registers otelgorm plus a callback that flags slow queries
// and failed statements on the active span
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates the plugin
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type queryStartKey struct{}

// Register installs the plugin on db. It does nothing when tracing is disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

// registerCallbacks runs the timing hooks around every statement kind. The
// after hooks run before otelgorm ends its span.
func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	regs := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("stock_timing:before_create", p.before) },
		func() error { return cb.Query().Before("gorm:query").Register("stock_timing:before_query", p.before) },
		func() error { return cb.Update().Before("gorm:update").Register("stock_timing:before_update", p.before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("stock_timing:before_delete", p.before) },
		func() error { return cb.Row().Before("gorm:row").Register("stock_timing:before_row", p.before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("stock_timing:before_raw", p.before) },
		func() error {
			return cb.Create().After("gorm:create").Before("otel:after_create").Register("stock_timing:after_create", p.after)
		},
		func() error {
			return cb.Query().After("gorm:query").Before("otel:after_query").Register("stock_timing:after_query", p.after)
		},
		func() error {
			return cb.Update().After("gorm:update").Before("otel:after_update").Register("stock_timing:after_update", p.after)
		},
		func() error {
			return cb.Delete().After("gorm:delete").Before("otel:after_delete").Register("stock_timing:after_delete", p.after)
		},
		func() error {
			return cb.Row().After("gorm:row").Before("otel:after_row").Register("stock_timing:after_row", p.after)
		},
		func() error {
			return cb.Raw().After("gorm:raw").Before("otel:after_raw").Register("stock_timing:after_raw", p.after)
		},
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

func (p *DBTracingPlugin) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracingPlugin) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
