package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewProvider_Success_Disabled tests that an empty endpoint disables
// tracing.
func TestNewProvider_Success_Disabled(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(t.Context(), Config{})
	require.NoError(t, err)

	assert.False(t, p.Enabled())

	_, span := p.Tracer("test").Start(t.Context(), "op")
	assert.False(t, span.IsRecording())
	span.End()

	require.NoError(t, p.Shutdown(t.Context()))
}

// TestNewProvider_Success_Enabled tests an exporter setup. Nothing is
// exported because no span is recorded.
func TestNewProvider_Success_Enabled(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"localhost:4318", "http://localhost:4318/v1/traces"} {
		p, err := NewProvider(t.Context(), Config{Endpoint: endpoint, ServiceVersion: "test"})
		require.NoError(t, err, endpoint)

		assert.True(t, p.Enabled())
		assert.NotNil(t, p.Tracer("test"))

		require.NoError(t, p.Shutdown(t.Context()), endpoint)
	}
}
