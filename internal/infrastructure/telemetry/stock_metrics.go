package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Operation outcomes
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeBusy     = "busy"
	OutcomeFailed   = "failed"
)

var (
	AttrOperation = attribute.Key("operation")
	AttrOutcome   = attribute.Key("outcome")
	AttrErrorCode = attribute.Key("error_code")
)

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// LowStockCounter reports how many stock rows sit at or below their threshold
type LowStockCounter interface {
	CountAtOrBelowThreshold(ctx context.Context) (int64, error)
}

// StockMetrics records stock operation counts and latencies and exposes the
// low-stock row count as an observable gauge
type StockMetrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	lowStock   metric.Int64ObservableGauge
	reg        metric.Registration
	logger     *zap.Logger
}

// StockMetricsConfig configures NewStockMetrics. LowStock is optional.
type StockMetricsConfig struct {
	Meter    metric.Meter
	Logger   *zap.Logger
	LowStock LowStockCounter
}

// NewStockMetrics creates the instruments on cfg.Meter
func NewStockMetrics(cfg StockMetricsConfig) (*StockMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &StockMetrics{logger: logger}

	var err error
	m.operations, err = cfg.Meter.Int64Counter("stock_operations_total",
		metric.WithDescription("Stock operations by outcome"),
		metric.WithUnit("{operations}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter stock_operations_total: %w", err)
	}
	m.duration, err = cfg.Meter.Float64Histogram("stock_operation_duration_seconds",
		metric.WithDescription("Stock operation latency including lock waits"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(OperationDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram stock_operation_duration_seconds: %w", err)
	}

	if cfg.LowStock != nil {
		m.lowStock, err = cfg.Meter.Int64ObservableGauge("stock_low_stock_items",
			metric.WithDescription("Stock rows at or below their low-stock threshold"),
			metric.WithUnit("{items}"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create gauge stock_low_stock_items: %w", err)
		}
		counter := cfg.LowStock
		m.reg, err = cfg.Meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			n, err := counter.CountAtOrBelowThreshold(ctx)
			if err != nil {
				logger.Warn("Failed to count low-stock rows", zap.Error(err))
				return nil
			}
			o.ObserveInt64(m.lowStock, n)
			return nil
		}, m.lowStock)
		if err != nil {
			return nil, fmt.Errorf("failed to register low-stock callback: %w", err)
		}
	}
	return m, nil
}

// ObserveOperation implements appinv.Metrics
func (m *StockMetrics) ObserveOperation(ctx context.Context, operation string, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	attrs := []attribute.KeyValue{AttrOperation.String(operation), AttrOutcome.String(outcome)}
	if code := shared.ErrorCode(err); code != "" {
		attrs = append(attrs, AttrErrorCode.String(code))
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(AttrOperation.String(operation)))
}

// Close unregisters the gauge callback
func (m *StockMetrics) Close() error {
	if m.reg == nil {
		return nil
	}
	return m.reg.Unregister()
}

// Outcome classifies an operation result
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case shared.IsTransient(err):
		return OutcomeBusy
	case shared.ErrorCode(err) != "":
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

var _ appinv.Metrics = (*StockMetrics)(nil)
