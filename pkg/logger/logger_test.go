package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "listbind/internal/core/context"
)

func TestFromContext_UsesInjectedLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{zap.New(core).Sugar()}

	ctx := WithLogger(context.Background(), l.WithComponent("list"))
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", Operation: "loadAll"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: 7, SiteURL: "https://x/sites/y"})

	Warn(ctx, "expand failed", "field", "Manager")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "expand failed", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "list", fields["component"])
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, int64(7), fields["user_id"])
	assert.Equal(t, "Manager", fields["field"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "bogus", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zap.InfoLevel))
}
