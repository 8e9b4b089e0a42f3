package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, shutdown(ctx), "noop shutdown ignores a cancelled context")
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// A non-routable address, so nothing is exported.
	shutdown, err := Setup(context.Background(), "http://192.0.2.1:4318")
	require.NoError(t, err)

	assert.NotNil(t, Tracer())
	assert.NoError(t, shutdown(context.Background()))
}
