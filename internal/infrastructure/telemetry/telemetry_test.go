package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultMetrics(t *testing.T) {
	m := Default()
	require.NotNil(t, m)
	assert.Same(t, m, Default())

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.Call(ctx, "FetchRecords", "Tasks", nil)
		m.Call(ctx, "FetchRecords", "Tasks", errors.New("x"))
		m.Add(ctx, m.RecordsLoaded, 3, "Tasks")
		m.Add(ctx, m.Degradations, 1, "Tasks", attribute.String(AttrField, "Manager"))
	})
}

func TestSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "load", "Tasks")
	require.NotNil(t, ctx)
	assert.NotPanics(t, func() { EndSpan(span, errors.New("boom")) })
}

func TestNewMetrics_Noop(t *testing.T) {
	m, err := NewMetrics(noopMeter())
	require.NoError(t, err)
	assert.NotNil(t, m.Submits)
}
