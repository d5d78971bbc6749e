package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmflow/internal/config"
)

func TestSetupTracing_Disabled(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Monitoring.Tracing.Enabled = false

	shutdown, err := SetupTracing(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEndpointHost(t *testing.T) {
	tests := map[string]string{
		"http://collector:4317":   "collector:4317",
		"https://collector:4317/": "collector:4317",
		"localhost:4317":          "localhost:4317",
	}
	for in, want := range tests {
		assert.Equal(t, want, EndpointHost(in), in)
	}
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 0.1, SampleRatio(0))
	assert.Equal(t, 0.1, SampleRatio(2))
	assert.Equal(t, 0.5, SampleRatio(0.5))
}
