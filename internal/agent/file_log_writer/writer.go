// Package file_log_writer keeps one human readable audit file per topic,
// newest entry first.
package file_log_writer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrPathOutsideRoot = errors.New("log path escapes the log root")

type Options struct {
	Attempts   int
	RetryDelay time.Duration
	ErrorLog   *log.Logger
	// Prepend writes content in front of a file. Replaced in tests.
	Prepend func(path string, content []byte) error
}

type Option func(*Options)

func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Options) {
		o.Attempts = attempts
		o.RetryDelay = delay
	}
}

func WithErrorLog(l *log.Logger) Option {
	return func(o *Options) {
		o.ErrorLog = l
	}
}

func WithPrependFunc(f func(path string, content []byte) error) Option {
	return func(o *Options) {
		o.Prepend = f
	}
}

// Reading is one calibrated sample to record.
type Reading struct {
	Topic      string
	SensorName string
	Value      float64
	Decimals   int
	Unit       string
	Payload    string
	At         time.Time
}

type Writer struct {
	root  string
	conf  Options
	locks *utilities.KeyedMutex
}

func New(root string, opts ...Option) *Writer {
	conf := Options{
		Attempts:   constants.FileLogDefaultWriteAttempts,
		RetryDelay: constants.FileLogDefaultWriteRetryDelay,
		ErrorLog:   log.Default(),
		Prepend:    utilities.PrependFile,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}
	return &Writer{root: root, conf: conf, locks: utilities.NewKeyedMutex()}
}

func (w *Writer) Root() string {
	return w.root
}

// PathFor maps topic to {root}/{first segment}/{topic with '/' as '_'}.log.
func (w *Writer) PathFor(topic string) (string, error) {
	path := utilities.TopicLogPath(w.root, topic)
	if !utilities.WithinRoot(w.root, path) {
		return "", errors.Wrapf(ErrPathOutsideRoot, "topic %q", topic)
	}
	return path, nil
}

// Prepend writes text at the top of the topic file. Writers of the same file
// are serialized; failed writes are retried before being reported.
func (w *Writer) Prepend(ctx context.Context, topic, text string) error {
	path, err := w.PathFor(topic)
	if err != nil {
		w.fail(topic, err)
		return err
	}

	unlock := w.locks.Lock(path)
	defer unlock()

	attempt := 0
	err = utilities.Retry(ctx, func() error {
		attempt++
		if wErr := w.conf.Prepend(path, []byte(text)); wErr != nil {
			if attempt < w.conf.Attempts {
				w.conf.ErrorLog.Warn(fmt.Sprintf("write to %s failed (attempt %d/%d): %v", path, attempt, w.conf.Attempts, wErr))
			}
			return wErr
		}
		return nil
	}, w.conf.Attempts, w.conf.RetryDelay)
	if err != nil {
		err = errors.Wrapf(err, "write %s", path)
		w.fail(topic, err)
		return err
	}
	return nil
}

func (w *Writer) fail(topic string, err error) {
	metrics.MessagesFailed.WithLabelValues(metrics.StageFileLog).Inc()
	w.conf.ErrorLog.Error("file log write failed", zap.String("topic", topic), zap.Error(err))
}

func (w *Writer) WriteReading(ctx context.Context, r Reading) error {
	return w.Prepend(ctx, r.Topic, FormatReading(r))
}

// WriteStartMarker matches session_tracker.MarkerFunc.
func (w *Writer) WriteStartMarker(ctx context.Context, topic string, at time.Time) {
	_ = w.Prepend(ctx, topic, FormatMarker("Inicio", topic, at))
}

// WriteEndMarker matches session_tracker.MarkerFunc.
func (w *Writer) WriteEndMarker(ctx context.Context, topic string, at time.Time) {
	_ = w.Prepend(ctx, topic, FormatMarker("Fin", topic, at))
}

func FormatReading(r Reading) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(r.At.Format(constants.FileLogTimestampLayout))
	b.WriteString("] ")
	b.WriteString(r.SensorName)
	b.WriteString(" - Valor: ")
	b.WriteString(strconv.FormatFloat(r.Value, 'f', r.Decimals, 64))
	if r.Unit != "" {
		b.WriteString(" ")
		b.WriteString(r.Unit)
	}
	b.WriteString(" (raw: ")
	b.WriteString(strings.TrimSpace(r.Payload))
	b.WriteString(")\n")
	return b.String()
}

func FormatMarker(kind, topic string, at time.Time) string {
	return fmt.Sprintf("[%s] === %s de recepción: %s ===\n", at.Format(constants.FileLogTimestampLayout), kind, topic)
}
