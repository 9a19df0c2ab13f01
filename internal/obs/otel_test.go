package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_WithoutEndpoint(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitTracer(ctx, "slotcart-test", "")
	require.NoError(t, err)

	_, span := Tracer("test").Start(ctx, "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(ctx))
}
