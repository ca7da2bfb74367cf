package telemetry_test

import (
	"context"
	"testing"

	"github.com/erp/stockengine/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type traceProbe struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func openTraceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&traceProbe{}))
	return db
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db := openTraceDB(t)
	p := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, p.Register(db))
	assert.Nil(t, db.Callback().Query().Get("stock_timing:after_query"))
}

func TestDBTracingPlugin_RecordsStatements(t *testing.T) {
	recorder := useRecorder(t)
	db := openTraceDB(t)

	p := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{Enabled: true, DBSystem: "sqlite"}, zap.NewNop())
	require.NoError(t, p.Register(db))
	assert.NotNil(t, db.Callback().Query().Get("stock_timing:after_query"))

	ctx, parent := telemetry.StartSpan(context.Background(), "test")
	require.NoError(t, db.WithContext(ctx).Create(&traceProbe{Name: "a"}).Error)
	var rows []traceProbe
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	parent.End()

	var dbSpans int
	for _, s := range recorder.Ended() {
		if s.Name() == "test" {
			continue
		}
		dbSpans++
		assert.Equal(t, parent.SpanContext().TraceID(), s.SpanContext().TraceID())
	}
	assert.GreaterOrEqual(t, dbSpans, 2)
}
