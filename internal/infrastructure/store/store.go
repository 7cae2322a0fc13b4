package store

import (
	"context"
	"errors"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/models"
)

// ErrNotFound is returned when a lookup matches no row. It is never retried.
var ErrNotFound = errors.New("store: record not found")

// Store is the persistent state shared with the web front-end.
type Store interface {
	FindSensorByTopic(ctx context.Context, topic string) (models.SensorInfo, error)
	ListAllSensorTopics(ctx context.Context) ([]models.SensorInfo, error)
	ListSensorIDs(ctx context.Context) ([]int, error)

	// FindLatestAlertConfig returns the most recently created non-notification alert of a sensor.
	FindLatestAlertConfig(ctx context.Context, sensorID int) (models.Alert, error)
	// ListLatestAlertConfigs returns FindLatestAlertConfig for every sensor that has one.
	ListLatestAlertConfigs(ctx context.Context) ([]models.Alert, error)
	FindUnresolvedNotification(ctx context.Context, sensorID int) (models.Alert, error)

	InsertAlert(ctx context.Context, alert *models.Alert) error
	UpdateCurrentValue(ctx context.Context, alertID int, value float64) error
	ResolveAlert(ctx context.Context, alertID int) error

	DeleteOrphanedAlerts(ctx context.Context) (int64, error)
	ResolveStaleNotifications(ctx context.Context, olderThan time.Duration) (int64, error)
	// ResolveDuplicateNotifications keeps only the newest unresolved notification per sensor.
	ResolveDuplicateNotifications(ctx context.Context) (int64, error)

	Close() error
}
