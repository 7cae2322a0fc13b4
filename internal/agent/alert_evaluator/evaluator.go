// Package alert_evaluator checks calibrated readings against the operator
// thresholds and keeps at most one unresolved notification per sensor.
package alert_evaluator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeNoConfig       Outcome = "no_config"
	OutcomeInRange        Outcome = "in_range"
	OutcomeInRangeUpdated Outcome = "in_range_updated"
	OutcomeCreated        Outcome = "created"
	OutcomeUpdated        Outcome = "updated"
)

// Result is the decision taken for one reading.
type Result struct {
	Outcome        Outcome       `json:"outcome"`
	SensorID       int           `json:"sensor_id"`
	Value          float64       `json:"value"`
	ThresholdRange string        `json:"threshold_range,omitempty"`
	Notification   *models.Alert `json:"notification,omitempty"`
}

// Changed reports whether a notification was created or updated.
func (r Result) Changed() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeUpdated || r.Outcome == OutcomeInRangeUpdated
}

type Options struct {
	Logger *log.Logger
	Push   Notifier
	Email  Notifier
	Now    func() time.Time
}

type Option func(*Options)

func WithLogger(l *log.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithPushNotifier(n Notifier) Option {
	return func(o *Options) {
		o.Push = n
	}
}

func WithEmailNotifier(n Notifier) Option {
	return func(o *Options) {
		o.Email = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

type Evaluator struct {
	store store.Store
	cache *ConfigCache
	locks *utilities.KeyedMutex
	conf  Options
}

func NewEvaluator(s store.Store, cache *ConfigCache, opts ...Option) *Evaluator {
	conf := Options{
		Logger: log.Default(),
		Now:    func() time.Time { return time.Now().UTC() },
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}
	return &Evaluator{store: s, cache: cache, locks: utilities.NewKeyedMutex(), conf: conf}
}

func (e *Evaluator) Cache() *ConfigCache {
	return e.cache
}

// config returns the live config of a sensor. The store is consulted on every
// call; the cached entry is kept only while it still matches the latest row.
func (e *Evaluator) config(ctx context.Context, sensorID int) (AlertConfig, bool, error) {
	latest, err := e.store.FindLatestAlertConfig(ctx, sensorID)
	if errors.Is(err, store.ErrNotFound) {
		if _, ok := e.cache.Get(sensorID); ok {
			e.conf.Logger.Info(fmt.Sprintf("alert config of sensor %d no longer exists, dropped from cache", sensorID))
			e.cache.Delete(sensorID)
		}
		return AlertConfig{}, false, nil
	}
	if err != nil {
		return AlertConfig{}, false, errors.Wrapf(err, "load alert config of sensor %d", sensorID)
	}

	if cached, ok := e.cache.Get(sensorID); ok {
		if cached.AlertID == latest.AlertID {
			return cached, true, nil
		}
		e.conf.Logger.Info(fmt.Sprintf("alert config of sensor %d replaced: %d -> %d", sensorID, cached.AlertID, latest.AlertID))
	}
	cfg := NewAlertConfig(latest)
	e.cache.Put(cfg)
	return cfg, true, nil
}

// Evaluate applies the threshold of the sensor to value. Readings inside the
// range refresh an open notification but never resolve it.
func (e *Evaluator) Evaluate(ctx context.Context, sensor models.SensorInfo, value float64) (Result, error) {
	unlock := e.locks.Lock(strconv.Itoa(sensor.SensorID))
	defer unlock()

	res := Result{Outcome: OutcomeNoConfig, SensorID: sensor.SensorID, Value: value}

	cfg, ok, err := e.config(ctx, sensor.SensorID)
	if err != nil || !ok {
		return res, err
	}
	res.ThresholdRange = cfg.ThresholdRange

	existing, err := e.store.FindUnresolvedNotification(ctx, sensor.SensorID)
	hasOpen := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return res, errors.Wrapf(err, "find open notification of sensor %d", sensor.SensorID)
	}

	outOfRange := value < cfg.Range.Min || value > cfg.Range.Max

	switch {
	case hasOpen:
		if err := e.store.UpdateCurrentValue(ctx, existing.AlertID, value); err != nil {
			return res, errors.Wrapf(err, "update notification %d", existing.AlertID)
		}
		existing.CurrentValue = value
		res.Notification = &existing
		res.Outcome = OutcomeInRangeUpdated
		if outOfRange {
			res.Outcome = OutcomeUpdated
		}
		metrics.Notifications.WithLabelValues(string(ActionUpdated)).Inc()
		e.conf.Logger.Debug("notification value refreshed",
			zap.Int("alert_id", existing.AlertID),
			zap.Int("sensor_id", sensor.SensorID),
			zap.Float64("value", value),
			zap.Bool("out_of_range", outOfRange))
		e.notify(ctx, cfg, Event{Action: ActionUpdated, Alert: existing, Sensor: sensor})
		return res, nil

	case outOfRange:
		alert := models.Alert{
			GreenHouseID:   sensor.GreenHouseID,
			SensorID:       sensor.SensorID,
			AlertType:      models.AlertTypeFor(sensor.SensorType),
			Severity:       cfg.Severity.OrDefault(),
			Message:        GenerateAlertMessage(sensor.SensorType, value, cfg.Range),
			CreatedAt:      e.conf.Now(),
			IsResolved:     false,
			ThresholdRange: cfg.ThresholdRange,
			CurrentValue:   value,
			NotifyByEmail:  cfg.NotifyByEmail,
			NotifyByPush:   cfg.NotifyByPush,
			IsNotification: true,
		}
		if alert.GreenHouseID == "" {
			alert.GreenHouseID = cfg.GreenHouseID
		}
		if err := e.store.InsertAlert(ctx, &alert); err != nil {
			return res, errors.Wrapf(err, "create notification for sensor %d", sensor.SensorID)
		}
		res.Notification = &alert
		res.Outcome = OutcomeCreated
		metrics.Notifications.WithLabelValues(string(ActionCreated)).Inc()
		e.conf.Logger.Info("notification created",
			zap.Int("alert_id", alert.AlertID),
			zap.Int("sensor_id", sensor.SensorID),
			zap.String("sensor_name", sensor.SensorName),
			zap.String("severity", alert.Severity.String()),
			zap.String("threshold", cfg.ThresholdRange),
			zap.Float64("value", value),
			zap.String("message", alert.Message))
		e.notify(ctx, cfg, Event{Action: ActionCreated, Alert: alert, Sensor: sensor})
		return res, nil

	default:
		res.Outcome = OutcomeInRange
		return res, nil
	}
}

// notify fires the triggers configured on the alert. Push follows every
// change; email is only requested for new notifications.
func (e *Evaluator) notify(ctx context.Context, cfg AlertConfig, ev Event) {
	if cfg.NotifyByPush && e.conf.Push != nil {
		if err := e.conf.Push.Notify(ctx, ev); err != nil {
			e.conf.Logger.Warn(fmt.Sprintf("push notification for alert %d failed: %v", ev.Alert.AlertID, err))
		}
	}
	if cfg.NotifyByEmail && ev.Action == ActionCreated && e.conf.Email != nil {
		if err := e.conf.Email.Notify(ctx, ev); err != nil {
			e.conf.Logger.Warn(fmt.Sprintf("email request for alert %d failed: %v", ev.Alert.AlertID, err))
		}
	}
}
