package alert_evaluator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store/storetest"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pruner struct {
	kept []int
}

func (p *pruner) Retain(ids []int) int {
	p.kept = ids
	return 1
}

type clearCounter struct {
	n atomic.Int32
}

func (c *clearCounter) Clear() { c.n.Add(1) }

func TestRefreshReplacesCacheAndRunsHygiene(t *testing.T) {
	now := time.Now().UTC()
	mem := storetest.NewMemory()
	mem.AddSensor(models.SensorInfo{SensorID: 1, Topic: "temp", GreenHouseID: "gh1"})
	mem.AddSensor(models.SensorInfo{SensorID: 2, Topic: "hum", GreenHouseID: "gh1"})
	mem.AddAlert(models.Alert{AlertID: 10, SensorID: 1, ThresholdRange: "20-30", CreatedAt: now.Add(-time.Hour)})
	mem.AddAlert(models.Alert{AlertID: 11, SensorID: 2, ThresholdRange: "30-80", CreatedAt: now.Add(-time.Hour)})
	mem.AddAlert(models.Alert{AlertID: 12, SensorID: 9, ThresholdRange: "1-2", CreatedAt: now})
	mem.AddAlert(models.Alert{AlertID: 13, SensorID: 1, IsNotification: true, CreatedAt: now.Add(-8 * 24 * time.Hour)})
	mem.AddAlert(models.Alert{AlertID: 14, SensorID: 2, IsNotification: true, CreatedAt: now.Add(-2 * time.Hour)})
	mem.AddAlert(models.Alert{AlertID: 15, SensorID: 2, IsNotification: true, CreatedAt: now.Add(-time.Hour)})

	cache := NewConfigCache()
	cache.Put(NewAlertConfig(models.Alert{AlertID: 5, SensorID: 1, ThresholdRange: "0-10"}))
	cache.Put(NewAlertConfig(models.Alert{AlertID: 6, SensorID: 3, ThresholdRange: "0-10"}))

	p, c := &pruner{}, &clearCounter{}
	r := NewRefresher(mem, cache,
		WithRefreshLogger(log.NopChannels().Alerts),
		WithCalibrationPruner(p),
		WithClearer(c),
	)
	rep, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), rep.Orphans)
	assert.Equal(t, int64(1), rep.Stale)
	assert.Equal(t, int64(1), rep.Duplicates)
	assert.Equal(t, 2, rep.Configs)
	assert.Equal(t, 1, rep.Pruned)
	assert.Equal(t, []int{1, 2}, p.kept)
	assert.Equal(t, int32(1), c.n.Load())

	require.Len(t, rep.Changes, 3)
	assert.Equal(t, ChangeUpdated, rep.Changes[0].Kind)
	assert.Equal(t, ChangeAdded, rep.Changes[1].Kind)
	assert.Equal(t, ChangeRemoved, rep.Changes[2].Kind)
	assert.Contains(t, rep.Changes[0].String(), `"0-10" -> "20-30"`)

	cfg, ok := cache.Get(1)
	require.True(t, ok)
	assert.Equal(t, 10, cfg.AlertID)
	assert.Equal(t, 2, cache.Len())
}

func TestRefreshKeepsCacheWhenListFails(t *testing.T) {
	mem := storetest.NewMemory()
	mem.FailWith("ListLatestAlertConfigs", errors.New("connection refused"))
	cache := NewConfigCache()
	cache.Put(NewAlertConfig(models.Alert{AlertID: 5, SensorID: 1, ThresholdRange: "0-10"}))

	r := NewRefresher(mem, cache, WithRefreshLogger(log.NopChannels().Alerts))
	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestSignalTriggersRefreshWithinPoll(t *testing.T) {
	mem := storetest.NewMemory()
	r := NewRefresher(mem, NewConfigCache(),
		WithRefreshLogger(log.NopChannels().Alerts),
		WithRefreshInterval(time.Hour),
		WithPollInterval(10*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return mem.Calls("ListLatestAlertConfigs") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, mem.Calls("ListLatestAlertConfigs"))

	r.Signal()
	assert.Eventually(t, func() bool { return mem.Calls("ListLatestAlertConfigs") == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestIntervalTriggersRefresh(t *testing.T) {
	mem := storetest.NewMemory()
	r := NewRefresher(mem, NewConfigCache(),
		WithRefreshLogger(log.NopChannels().Alerts),
		WithRefreshInterval(30*time.Millisecond),
		WithPollInterval(5*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	assert.Eventually(t, func() bool { return mem.Calls("ListLatestAlertConfigs") >= 3 }, 2*time.Second, 5*time.Millisecond)
}
