package mqtt_logger

import (
	"time"

	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
)

type Options struct {
	MessageTimeout      time.Duration
	InactivityThreshold time.Duration
	LaneBuffer          int
	BootstrapRetryDelay time.Duration
	ReconnectDelay      time.Duration
	Logs                *log.Channels
	Now                 func() time.Time
}

type Option func(*Options)

func WithMessageTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.MessageTimeout = d
	}
}

func WithInactivityThreshold(d time.Duration) Option {
	return func(o *Options) {
		o.InactivityThreshold = d
	}
}

func WithLaneBuffer(n int) Option {
	return func(o *Options) {
		o.LaneBuffer = n
	}
}

// WithRetryDelays sets the wait before a new bootstrap attempt and the wait
// between a lost connection and the reconnect.
func WithRetryDelays(bootstrap, reconnect time.Duration) Option {
	return func(o *Options) {
		o.BootstrapRetryDelay = bootstrap
		o.ReconnectDelay = reconnect
	}
}

func WithChannels(c *log.Channels) Option {
	return func(o *Options) {
		o.Logs = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

func defaultOptionsFromViper() Options {
	return Options{
		MessageTimeout:      config.GetDuration(config.PipelineMessageTimeout, constants.PipelineDefaultMessageTimeout),
		InactivityThreshold: config.GetDuration(config.PipelineInactivityThreshold, constants.PipelineDefaultInactivityThreshold),
		LaneBuffer:          config.GetInt(config.PipelineLaneBuffer, constants.PipelineDefaultLaneBuffer),
		BootstrapRetryDelay: config.GetDuration(config.MqttBootstrapRetryDelay, constants.MqttDefaultBootstrapRetryDelay),
		ReconnectDelay:      config.GetDuration(config.MqttReconnectDelay, constants.MqttDefaultReconnectDelay),
		Now:                 time.Now,
	}
}
