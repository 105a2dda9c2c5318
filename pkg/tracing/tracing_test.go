package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	tp, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp)

	// Shutdown on a disabled provider is a no-op.
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.operation")
	require.NotNil(t, span)
	span.End()

	// Helpers must not panic on a non-recording span.
	AddSpanAttributes(ctx, UserIDKey.String("user-1"))
	RecordError(ctx, errors.New("boom"))
}
