package log

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ServiceLogFile     = "service.log"
	ErrorLogFile       = "error.log"
	DebugLogFile       = "debug.log"
	CalibrationLogFile = "calibration.log"
	AlertsLogFile      = "alerts.log"
	DatabaseLogFile    = "database.log"
)

// Channels groups the diagnostic log streams of the agent. Every channel
// except Debug also writes to the default logger.
type Channels struct {
	Service     *Logger
	Error       *Logger
	Debug       *Logger
	Calibration *Logger
	Alerts      *Logger
	Database    *Logger
}

// NewChannels opens one file per channel under root.
func NewChannels(root string) (*Channels, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create log root")
	}

	base := Default()
	build := func(name string, level zapcore.Level, tee bool) (*Logger, error) {
		fl, err := NewFileLogger(filepath.Join(root, name), level)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", name)
		}
		core := fl.Core()
		if tee {
			core = zapcore.NewTee(base.Core(), core)
		}
		return &Logger{zap.New(core, zap.AddCaller())}, nil
	}

	var (
		c   = &Channels{}
		err error
	)
	if c.Service, err = build(ServiceLogFile, zap.InfoLevel, true); err != nil {
		return nil, err
	}
	if c.Error, err = build(ErrorLogFile, zap.WarnLevel, true); err != nil {
		return nil, err
	}
	if c.Debug, err = build(DebugLogFile, zap.DebugLevel, false); err != nil {
		return nil, err
	}
	if c.Calibration, err = build(CalibrationLogFile, zap.InfoLevel, true); err != nil {
		return nil, err
	}
	if c.Alerts, err = build(AlertsLogFile, zap.InfoLevel, true); err != nil {
		return nil, err
	}
	if c.Database, err = build(DatabaseLogFile, zap.InfoLevel, false); err != nil {
		return nil, err
	}
	return c, nil
}

// NopChannels returns channels that discard everything.
func NopChannels() *Channels {
	nop := &Logger{zap.NewNop()}
	return &Channels{
		Service:     nop,
		Error:       nop,
		Debug:       nop,
		Calibration: nop,
		Alerts:      nop,
		Database:    nop,
	}
}

// Sync flushes every channel.
func (c *Channels) Sync() error {
	var err error
	for _, l := range []*Logger{c.Service, c.Error, c.Debug, c.Calibration, c.Alerts, c.Database} {
		if l != nil {
			err = multierr.Append(err, l.Sync())
		}
	}
	return err
}
