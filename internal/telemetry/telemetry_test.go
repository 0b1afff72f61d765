package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{})
	require.NoError(t, err)
	defer shutdown(context.Background()) //nolint:errcheck

	_, span := Tracer("").Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestEnabledExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Options{
		Enabled:     true,
		ServiceName: "civic-ledger-test",
		Version:     "test",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := Tracer("").Start(context.Background(), "ledger.vote")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "ledger.vote")
	assert.Contains(t, buf.String(), "civic-ledger-test")

	// Leave later tests with a no-op provider.
	_, err = Init(context.Background(), Options{})
	require.NoError(t, err)
}
