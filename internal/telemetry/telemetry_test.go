package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	provider, err := Init(context.Background(), Config{
		ServiceName:  "dispatch-test",
		OTLPEndpoint: "localhost:4317",
		Enabled:      false,
	})
	require.NoError(t, err)
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestShutdownJoinsErrors(t *testing.T) {
	errTrace := errors.New("trace flush failed")
	errMetric := errors.New("metric flush failed")
	provider := &Provider{shutdowns: []func(context.Context) error{
		func(context.Context) error { return errTrace },
		func(context.Context) error { return nil },
		func(context.Context) error { return errMetric },
	}}

	err := provider.Shutdown(context.Background())
	assert.ErrorIs(t, err, errTrace)
	assert.ErrorIs(t, err, errMetric)
}
