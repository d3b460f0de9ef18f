package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

func TestSetupTracingEmptyEndpointReturnsNoopCleanup(t *testing.T) {
	cfg := &config.Config{}
	cfg.Metrics.OTLPEndpoint = ""

	cleanup, err := setupTracing(cfg)
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	assert.NoError(t, cleanup(t.Context()))
}

func TestInitTracerValidEndpointReturnsCleanup(t *testing.T) {
	cfg := &config.Config{}
	cfg.Metrics.OTLPEndpoint = "localhost:4317"

	// gRPC connections are lazy, so a well-formed endpoint won't fail at
	// creation time.
	cleanup, err := initTracer(cfg)
	require.NoError(t, err)
	assert.NotNil(t, cleanup)
}

func TestSetupTracingWithEndpointReturnsCleanupAndNoError(t *testing.T) {
	cfg := &config.Config{}
	cfg.Metrics.OTLPEndpoint = "localhost:4317"

	cleanup, err := setupTracing(cfg)
	require.NoError(t, err)
	assert.NotNil(t, cleanup)
}

func TestNewCommandSetsAnnotations(t *testing.T) {
	c := NewCommand("1.2.3", "abcdef")
	assert.Equal(t, "1.2.3", c.Annotations["version"])
	assert.Equal(t, "abcdef", c.Annotations["commit"])
	assert.True(t, c.SilenceErrors)
}

func TestSetupSchedulerReturnsUsableScheduler(t *testing.T) {
	scheduler, err := setupScheduler()
	require.NoError(t, err)
	require.NotNil(t, scheduler)
	require.NoError(t, scheduler.Shutdown())
}
