package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestWithContextRoundTrip(t *testing.T) {
	log := zap.NewNop()
	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
}

func TestFromContextDefaultsToNop(t *testing.T) {
	log := FromContext(context.Background())
	require.NotNil(t, log)
	log.Info("must not panic")
}

func TestWithRequestIDEnrichesEntries(t *testing.T) {
	log, logs := observedLogger()

	ctx, enriched := WithRequestID(context.Background(), log, "req-42")
	enriched.Info("bucket stored")

	assert.Equal(t, "req-42", GetRequestID(ctx))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
	assert.Same(t, enriched, FromContext(ctx))
}

func TestWithAgentIDEnrichesEntries(t *testing.T) {
	log, logs := observedLogger()

	ctx, enriched := WithAgentID(context.Background(), log, "agent-7")
	enriched.Info("dashboard assembled")

	assert.Equal(t, "agent-7", GetAgentID(ctx))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "agent-7", logs.All()[0].ContextMap()["agent_id"])
}

func TestChainedEnrichment(t *testing.T) {
	log, logs := observedLogger()

	ctx, log := WithRequestID(context.Background(), log, "req-1")
	ctx, log = WithAgentID(ctx, log, "agent-1")
	log.Info("range combined")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "agent-1", GetAgentID(ctx))
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "agent-1", fields["agent_id"])
}

func TestGetRequestIDEmptyWhenUnset(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetAgentID(context.Background()))
}

func TestWithTraceContextNoSpanReturnsSameLogger(t *testing.T) {
	log := zap.NewNop()
	assert.Same(t, log, WithTraceContext(context.Background(), log))
}
