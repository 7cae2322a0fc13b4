package alert_evaluator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// CalibrationPruner drops calibration state of sensors that no longer exist.
type CalibrationPruner interface {
	Retain(ids []int) int
}

// Clearer is a cache that is emptied after every refresh.
type Clearer interface {
	Clear()
}

type RefresherOptions struct {
	Interval     time.Duration
	PollInterval time.Duration
	StaleAge     time.Duration
	Logger       *log.Logger
	Pruner       CalibrationPruner
	Clearers     []Clearer
}

type RefresherOption func(*RefresherOptions)

func WithRefreshInterval(d time.Duration) RefresherOption {
	return func(o *RefresherOptions) {
		o.Interval = d
	}
}

func WithPollInterval(d time.Duration) RefresherOption {
	return func(o *RefresherOptions) {
		o.PollInterval = d
	}
}

func WithStaleAge(d time.Duration) RefresherOption {
	return func(o *RefresherOptions) {
		o.StaleAge = d
	}
}

func WithRefreshLogger(l *log.Logger) RefresherOption {
	return func(o *RefresherOptions) {
		o.Logger = l
	}
}

func WithCalibrationPruner(p CalibrationPruner) RefresherOption {
	return func(o *RefresherOptions) {
		o.Pruner = p
	}
}

func WithClearer(c Clearer) RefresherOption {
	return func(o *RefresherOptions) {
		o.Clearers = append(o.Clearers, c)
	}
}

// Report summarises one refresh run.
type Report struct {
	Orphans    int64     `json:"orphans_deleted"`
	Stale      int64     `json:"stale_resolved"`
	Duplicates int64     `json:"duplicates_resolved"`
	Configs    int       `json:"configs"`
	Changes    []Change  `json:"-"`
	Pruned     int       `json:"calibrations_pruned"`
	FinishedAt time.Time `json:"finished_at"`
}

// Refresher resynchronises the config cache with the store on a fixed
// interval, or within one poll interval of Signal.
type Refresher struct {
	store   store.Store
	cache   *ConfigCache
	conf    RefresherOptions
	pending atomic.Bool
	group   singleflight.Group
}

func NewRefresher(s store.Store, cache *ConfigCache, opts ...RefresherOption) *Refresher {
	conf := RefresherOptions{
		Interval:     config.GetDuration(config.AlertsRefreshInterval, constants.AlertsDefaultRefreshInterval),
		PollInterval: config.GetDuration(config.AlertsRefreshPollInterval, constants.AlertsDefaultRefreshPollInterval),
		StaleAge:     config.GetDuration(config.AlertsStaleNotificationAge, constants.AlertsDefaultStaleNotificationAge),
		Logger:       log.Default(),
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}
	return &Refresher{store: s, cache: cache, conf: conf}
}

// Signal requests a refresh at the next poll.
func (r *Refresher) Signal() {
	r.pending.Store(true)
}

// Run refreshes once, then keeps polling until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.refreshAndLog(ctx)
	last := time.Now()

	ticker := time.NewTicker(r.conf.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.conf.Logger.Info("alert refresher stopped")
			return nil
		case <-ticker.C:
			signalled := r.pending.CompareAndSwap(true, false)
			if !signalled && time.Since(last) < r.conf.Interval {
				continue
			}
			r.refreshAndLog(ctx)
			last = time.Now()
		}
	}
}

func (r *Refresher) refreshAndLog(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.conf.Logger.Error(fmt.Sprintf("alert refresh failed: %v", err))
	}
}

// Refresh runs the hygiene queries and reloads the cache. Concurrent callers
// share one run.
func (r *Refresher) Refresh(ctx context.Context) (Report, error) {
	v, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		return r.refresh(ctx)
	})
	rep, _ := v.(Report)
	return rep, err
}

func (r *Refresher) refresh(ctx context.Context) (Report, error) {
	var (
		rep  Report
		errs error
		err  error
	)
	logger := r.conf.Logger

	if rep.Orphans, err = r.store.DeleteOrphanedAlerts(ctx); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "delete orphaned alerts"))
	} else if rep.Orphans > 0 {
		logger.Info(fmt.Sprintf("deleted %d alerts of removed sensors", rep.Orphans))
	}

	if rep.Stale, err = r.store.ResolveStaleNotifications(ctx, r.conf.StaleAge); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "resolve stale notifications"))
	} else if rep.Stale > 0 {
		logger.Info(fmt.Sprintf("resolved %d notifications older than %s", rep.Stale, r.conf.StaleAge))
	}

	if rep.Duplicates, err = r.store.ResolveDuplicateNotifications(ctx); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "resolve duplicate notifications"))
	} else if rep.Duplicates > 0 {
		logger.Info(fmt.Sprintf("resolved %d duplicate notifications", rep.Duplicates))
	}

	alerts, err := r.store.ListLatestAlertConfigs(ctx)
	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "list alert configs"))
	} else {
		configs := make([]AlertConfig, 0, len(alerts))
		for _, a := range alerts {
			configs = append(configs, NewAlertConfig(a))
		}
		rep.Configs = len(configs)
		rep.Changes = r.cache.Replace(configs)
		for _, c := range rep.Changes {
			logger.Info(c.String())
		}
	}

	if r.conf.Pruner != nil {
		ids, err := r.store.ListSensorIDs(ctx)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "list sensors"))
		} else if rep.Pruned = r.conf.Pruner.Retain(ids); rep.Pruned > 0 {
			logger.Info(fmt.Sprintf("dropped calibration of %d removed sensors", rep.Pruned))
		}
	}

	for _, c := range r.conf.Clearers {
		c.Clear()
	}

	rep.FinishedAt = time.Now()
	if errs != nil {
		metrics.RefreshRuns.WithLabelValues("error").Inc()
		return rep, errs
	}
	metrics.RefreshRuns.WithLabelValues("ok").Inc()
	logger.Debug(fmt.Sprintf("alert cache refreshed: %d configs, %d changes", rep.Configs, len(rep.Changes)))
	return rep, nil
}
