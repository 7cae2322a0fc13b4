package tracer_client

import (
	"context"
	"testing"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptionsFromViper(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set(config.TracingEndpoint, "otel-collector:4317")
	viper.Set(config.TracingInsecure, true)
	viper.Set(config.AgentID, "greenhouse-north")

	opt := buildOptions([]Option{WithSampleRatio(0.25), WithTimeout(0)})
	assert.Equal(t, "otel-collector:4317", opt.Endpoint)
	assert.True(t, opt.Insecure)
	assert.Equal(t, constants.TracingDefaultServiceName, opt.ServiceName)
	assert.Equal(t, "greenhouse-north", opt.InstanceID)
	assert.Equal(t, 0.25, opt.SampleRatio)
	assert.Equal(t, constants.TracingDefaultInitTimeout, opt.Timeout)
}

func TestBuildOptionsClampsSampleRatio(t *testing.T) {
	t.Cleanup(viper.Reset)
	for _, r := range []float64{-1, 0, 3} {
		assert.Equal(t, 1.0, buildOptions([]Option{WithSampleRatio(r)}).SampleRatio, r)
	}
	assert.Equal(t, 5*time.Second, buildOptions([]Option{WithTimeout(5 * time.Second)}).Timeout)
}

func TestTracerWithoutProvider(t *testing.T) {
	require.Nil(t, Provider())
	tracer := Tracer("alerts")
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "evaluate")
	span.End()
	assert.NoError(t, Shutdown(context.Background()))
}
