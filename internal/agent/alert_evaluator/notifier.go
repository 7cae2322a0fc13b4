package alert_evaluator

import (
	"context"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Event describes a notification written to the store.
type Event struct {
	Action Action
	Alert  models.Alert
	Sensor models.SensorInfo
}

// Notifier delivers a notification event through one channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Notifiers fans one event out to every notifier in the list.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, ev Event) error {
	var errs error
	for _, n := range ns {
		if n == nil {
			continue
		}
		errs = multierr.Append(errs, n.Notify(ctx, ev))
	}
	return errs
}

// EmailRequestLogger records email requests in the alerts log. Delivery is
// done by the web front-end, which reads these records.
type EmailRequestLogger struct {
	logger *log.Logger
}

func NewEmailRequestLogger(logger *log.Logger) *EmailRequestLogger {
	return &EmailRequestLogger{logger: logger}
}

func (n *EmailRequestLogger) Notify(_ context.Context, ev Event) error {
	n.logger.Info("email notification requested",
		zap.String("action", string(ev.Action)),
		zap.Int("alert_id", ev.Alert.AlertID),
		zap.Int("sensor_id", ev.Sensor.SensorID),
		zap.String("sensor_name", ev.Sensor.SensorName),
		zap.String("green_house_id", ev.Sensor.GreenHouseID),
		zap.String("user_id", ev.Sensor.UserID),
		zap.String("severity", ev.Alert.Severity.String()),
		zap.String("message", ev.Alert.Message),
		zap.Float64("current_value", ev.Alert.CurrentValue))
	return nil
}
