package store

import (
	"time"

	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver           string
	DSN              string
	AutoMigrate      bool
	RetryAttempts    int
	RetryBackoff     time.Duration
	RetryMaxBackoff  time.Duration
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
	Logger           *log.Logger
	Now              func() time.Time
}

type Option func(*Options)

func WithDriver(driver string) Option {
	return func(o *Options) {
		o.Driver = driver
	}
}

func WithDSN(dsn string) Option {
	return func(o *Options) {
		o.DSN = dsn
	}
}

func WithAutoMigrate(v bool) Option {
	return func(o *Options) {
		o.AutoMigrate = v
	}
}

func WithRetry(attempts int, backoff, maxBackoff time.Duration) Option {
	return func(o *Options) {
		o.RetryAttempts = attempts
		o.RetryBackoff = backoff
		o.RetryMaxBackoff = maxBackoff
	}
}

func WithBreaker(threshold uint32, openTimeout time.Duration) Option {
	return func(o *Options) {
		o.BreakerThreshold = threshold
		o.BreakerTimeout = openTimeout
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithClock overrides the time source used for created/resolved timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

func defaultOptionsFromViper() Options {
	return Options{
		Driver:           config.GetString(config.StoreDriver, constants.StoreDefaultDriver),
		DSN:              config.GetString(config.StoreDSN, constants.StoreDefaultDSN),
		AutoMigrate:      config.GetBool(config.StoreAutoMigrate, true),
		RetryAttempts:    config.GetInt(config.StoreRetryAttempts, constants.StoreDefaultRetryAttempts),
		RetryBackoff:     constants.StoreDefaultRetryBackoff,
		RetryMaxBackoff:  constants.StoreDefaultRetryMaxBackoff,
		BreakerThreshold: uint32(config.GetInt(config.StoreBreakerFailureThreshold, constants.StoreDefaultBreakerThreshold)),
		BreakerTimeout:   config.GetDuration(config.StoreBreakerOpenTimeout, constants.StoreDefaultBreakerTimeout),
		Logger:           log.Default(),
		Now:              func() time.Time { return time.Now().UTC() },
	}
}
