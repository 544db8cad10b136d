package logger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func bucketQuery() (string, int64) {
	return "SELECT payload FROM rollup_daily_buckets WHERE date_key = '2025-03-01'", 1
}

func TestNewGormLoggerDefaults(t *testing.T) {
	log, _ := observedLogger()
	gl := NewGormLogger(log, gormlogger.Warn)

	assert.Equal(t, defaultSlowThreshold, gl.slowThreshold)
	assert.True(t, gl.ignoreRecordNotFoundError)
}

func TestGormLoggerOptions(t *testing.T) {
	log, _ := observedLogger()
	gl := NewGormLogger(log, gormlogger.Warn,
		WithSlowThreshold(50*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)

	assert.Equal(t, 50*time.Millisecond, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)
}

func TestLogModeReturnsClone(t *testing.T) {
	log, _ := observedLogger()
	gl := NewGormLogger(log, gormlogger.Warn)

	silent := gl.LogMode(gormlogger.Silent)
	require.NotSame(t, gl, silent)
	assert.Equal(t, gormlogger.Warn, gl.logLevel)
}

func TestTraceLogsFailedQuery(t *testing.T) {
	log, logs := observedLogger()
	gl := NewGormLogger(log, gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), bucketQuery, assert.AnError)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Query failed", entry.Message)
	assert.Contains(t, entry.ContextMap()["sql"], "rollup_daily_buckets")
}

func TestTraceSuppressesRecordNotFound(t *testing.T) {
	log, logs := observedLogger()
	gl := NewGormLogger(log, gormlogger.Error)

	// A missing bucket row is the normal gap-detection outcome.
	gl.Trace(context.Background(), time.Now(), bucketQuery, gormlogger.ErrRecordNotFound)

	assert.Equal(t, 0, logs.Len())
}

func TestTraceWarnsOnSlowQuery(t *testing.T) {
	log, logs := observedLogger()
	gl := NewGormLogger(log, gormlogger.Warn, WithSlowThreshold(time.Nanosecond))

	gl.Trace(context.Background(), time.Now().Add(-time.Millisecond), bucketQuery, nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Slow query", entry.Message)
	assert.Equal(t, time.Nanosecond, entry.ContextMap()["threshold"])
}

func TestTraceDebugLogsAtInfoLevel(t *testing.T) {
	log, logs := observedLogger()
	gl := NewGormLogger(log, gormlogger.Info)

	gl.Trace(context.Background(), time.Now(), bucketQuery, nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Query", logs.All()[0].Message)
	assert.Equal(t, zap.DebugLevel, logs.All()[0].Level)
}

func TestTraceSilentEmitsNothing(t *testing.T) {
	log, logs := observedLogger()
	gl := NewGormLogger(log, gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), bucketQuery, assert.AnError)

	assert.Equal(t, 0, logs.Len())
}

func TestTraceCarriesRequestID(t *testing.T) {
	log, logs := observedLogger()
	gl := NewGormLogger(log, gormlogger.Info)

	ctx, _ := WithRequestID(context.Background(), log, "req-9")
	gl.Trace(ctx, time.Now(), bucketQuery, nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-9", logs.All()[0].ContextMap()["request_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"bogus", gormlogger.Warn},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MapGormLogLevel(tt.input), tt.input)
	}
}

func TestGormLoggerImplementsInterface(t *testing.T) {
	var _ gormlogger.Interface = (*GormLogger)(nil)
}
