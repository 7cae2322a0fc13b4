package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const breakerName = "store"

// GormStore implements Store on top of gorm. Every call goes through a
// circuit breaker and transient failures are retried with backoff.
type GormStore struct {
	db   *gorm.DB
	cb   *gobreaker.CircuitBreaker[struct{}]
	conf Options
}

var _ Store = (*GormStore)(nil)

// New opens the configured database.
func New(opts ...Option) (*GormStore, error) {
	conf := buildOptions(opts)

	var dialector gorm.Dialector
	switch conf.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(conf.DSN)
	case DriverPostgres:
		dialector = postgres.Open(conf.DSN)
	default:
		return nil, errors.Errorf("unsupported store driver %q", conf.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newGormLogger(conf.Logger),
		NowFunc: conf.Now,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", conf.Driver)
	}
	return newGormStore(db, conf)
}

// NewWithDB wraps an already opened gorm handle.
func NewWithDB(db *gorm.DB, opts ...Option) (*GormStore, error) {
	return newGormStore(db, buildOptions(opts))
}

func buildOptions(opts []Option) Options {
	conf := defaultOptionsFromViper()
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}
	return conf
}

func newGormStore(db *gorm.DB, conf Options) (*GormStore, error) {
	if db == nil {
		return nil, cerrors.ErrInvalidDatabaseClient
	}
	if conf.AutoMigrate {
		if err := db.AutoMigrate(&models.GreenHouse{}, &models.Sensor{}, &models.Alert{}); err != nil {
			return nil, errors.Wrap(err, "auto migrate")
		}
	}

	threshold := conf.BreakerThreshold
	if threshold == 0 {
		threshold = 1
	}
	logger := conf.Logger
	metrics.BreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     conf.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !cerrors.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(fmt.Sprintf("circuit breaker %s: %s -> %s", name, from, to))
			metrics.BreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(to))
		},
	})

	return &GormStore{db: db, cb: cb, conf: conf}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// do runs fn inside the breaker and retries while the failure is transient.
func (s *GormStore) do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return utilities.RetryWithBackoff(ctx, func() error {
		_, err := s.cb.Execute(func() (struct{}, error) {
			return struct{}{}, classify(fn(s.db.WithContext(ctx)))
		})
		switch {
		case err == nil:
			metrics.BreakerRequests.WithLabelValues(breakerName, "success").Inc()
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.BreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
			return cerrors.Transient(err)
		default:
			metrics.BreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		}
		return err
	}, cerrors.IsTransient, s.conf.RetryAttempts, s.conf.RetryBackoff, s.conf.RetryMaxBackoff)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return cerrors.Transient(err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "connection refused", "connection reset", "broken pipe", "too many connections"} {
		if strings.Contains(msg, marker) {
			return cerrors.Transient(err)
		}
	}
	return err
}

func sensorInfoQuery(tx *gorm.DB) *gorm.DB {
	return tx.Table("sensors AS s").
		Select("s.sensor_id, s.sensor_name, s.sensor_type, s.units, s.topic, s.green_house_id, g.user_id").
		Joins("LEFT JOIN green_houses AS g ON g.green_house_id = s.green_house_id")
}

// FindSensorByTopic resolves "{greenhouse}/{sensorTopic}". A topic that does
// not match in that form is retried as a bare sensor topic.
func (s *GormStore) FindSensorByTopic(ctx context.Context, topic string) (models.SensorInfo, error) {
	topic = strings.Trim(strings.TrimSpace(topic), "/")
	if topic == "" {
		return models.SensorInfo{}, cerrors.ErrMissingSensorTopic
	}
	greenhouseID, sensorTopic := utilities.SplitTopic(topic)

	var info models.SensorInfo
	err := s.do(ctx, func(tx *gorm.DB) error {
		var rows []models.SensorInfo
		q := sensorInfoQuery(tx).Where("s.topic = ?", sensorTopic)
		if greenhouseID != "" {
			q = q.Where("s.green_house_id = ?", greenhouseID)
		}
		if err := q.Order("s.sensor_id").Limit(1).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 && greenhouseID != "" {
			if err := sensorInfoQuery(tx).Where("s.topic = ?", topic).Order("s.sensor_id").Limit(1).Scan(&rows).Error; err != nil {
				return err
			}
		}
		if len(rows) == 0 {
			return ErrNotFound
		}
		info = rows[0]
		return nil
	})
	return info, err
}

func (s *GormStore) ListAllSensorTopics(ctx context.Context) ([]models.SensorInfo, error) {
	var rows []models.SensorInfo
	err := s.do(ctx, func(tx *gorm.DB) error {
		rows = rows[:0]
		return sensorInfoQuery(tx).Order("s.sensor_id").Scan(&rows).Error
	})
	return rows, err
}

func (s *GormStore) ListSensorIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := s.do(ctx, func(tx *gorm.DB) error {
		ids = ids[:0]
		return tx.Model(&models.Sensor{}).Order("sensor_id").Pluck("sensor_id", &ids).Error
	})
	return ids, err
}

func (s *GormStore) FindLatestAlertConfig(ctx context.Context, sensorID int) (models.Alert, error) {
	var alert models.Alert
	err := s.do(ctx, func(tx *gorm.DB) error {
		return tx.Where("sensor_id = ? AND is_notification = ?", sensorID, false).
			Order("created_at DESC").Order("alert_id DESC").
			First(&alert).Error
	})
	return alert, err
}

func (s *GormStore) ListLatestAlertConfigs(ctx context.Context) ([]models.Alert, error) {
	var all []models.Alert
	err := s.do(ctx, func(tx *gorm.DB) error {
		all = all[:0]
		return tx.Where("is_notification = ?", false).
			Order("sensor_id").Order("created_at DESC").Order("alert_id DESC").
			Find(&all).Error
	})
	if err != nil {
		return nil, err
	}
	return firstPerSensor(all), nil
}

func (s *GormStore) FindUnresolvedNotification(ctx context.Context, sensorID int) (models.Alert, error) {
	var alert models.Alert
	err := s.do(ctx, func(tx *gorm.DB) error {
		return tx.Where("sensor_id = ? AND is_notification = ? AND is_resolved = ?", sensorID, true, false).
			Order("created_at DESC").Order("alert_id DESC").
			First(&alert).Error
	})
	return alert, err
}

func (s *GormStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return errors.New("nil alert")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.conf.Now()
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	return s.do(ctx, func(tx *gorm.DB) error {
		return tx.Create(alert).Error
	})
}

func (s *GormStore) UpdateCurrentValue(ctx context.Context, alertID int, value float64) error {
	return s.do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Alert{}).Where("alert_id = ?", alertID).Update("current_value", value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ResolveAlert marks an alert resolved. Resolving an already resolved alert is a no-op.
func (s *GormStore) ResolveAlert(ctx context.Context, alertID int) error {
	return s.do(ctx, func(tx *gorm.DB) error {
		var alert models.Alert
		if err := tx.Where("alert_id = ?", alertID).First(&alert).Error; err != nil {
			return err
		}
		if alert.IsResolved {
			return nil
		}
		return tx.Model(&models.Alert{}).Where("alert_id = ?", alertID).
			Updates(map[string]any{"is_resolved": true, "resolved_at": s.conf.Now()}).Error
	})
}

func (s *GormStore) DeleteOrphanedAlerts(ctx context.Context) (int64, error) {
	var n int64
	err := s.do(ctx, func(tx *gorm.DB) error {
		res := tx.Where("sensor_id NOT IN (?)", tx.Model(&models.Sensor{}).Select("sensor_id")).Delete(&models.Alert{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

func (s *GormStore) ResolveStaleNotifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.conf.Now()
	cutoff := now.Add(-olderThan)
	var n int64
	err := s.do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Alert{}).
			Where("is_notification = ? AND is_resolved = ? AND created_at < ?", true, false, cutoff).
			Updates(map[string]any{"is_resolved": true, "resolved_at": now})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

func (s *GormStore) ResolveDuplicateNotifications(ctx context.Context) (int64, error) {
	var n int64
	err := s.do(ctx, func(tx *gorm.DB) error {
		var open []models.Alert
		if err := tx.Where("is_notification = ? AND is_resolved = ?", true, false).
			Order("sensor_id").Order("created_at DESC").Order("alert_id DESC").
			Find(&open).Error; err != nil {
			return err
		}
		keep := firstPerSensor(open)
		if len(keep) == len(open) {
			n = 0
			return nil
		}
		kept := make(map[int]struct{}, len(keep))
		for _, a := range keep {
			kept[a.AlertID] = struct{}{}
		}
		var stale []int
		for _, a := range open {
			if _, ok := kept[a.AlertID]; !ok {
				stale = append(stale, a.AlertID)
			}
		}
		res := tx.Model(&models.Alert{}).Where("alert_id IN ?", stale).
			Updates(map[string]any{"is_resolved": true, "resolved_at": s.conf.Now()})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// firstPerSensor keeps the first alert of each sensor from a list sorted by sensor.
func firstPerSensor(sorted []models.Alert) []models.Alert {
	out := make([]models.Alert, 0, len(sorted))
	seen := make(map[int]struct{}, len(sorted))
	for _, a := range sorted {
		if _, ok := seen[a.SensorID]; ok {
			continue
		}
		seen[a.SensorID] = struct{}{}
		out = append(out, a)
	}
	return out
}
