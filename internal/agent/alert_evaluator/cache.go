package alert_evaluator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/models"
)

// AlertConfig is the cached projection of a threshold configuration.
type AlertConfig struct {
	AlertID        int                  `json:"alert_id"`
	SensorID       int                  `json:"sensor_id"`
	GreenHouseID   string               `json:"green_house_id"`
	ThresholdRange string               `json:"threshold_range"`
	Range          models.Range         `json:"-"`
	NotifyByEmail  bool                 `json:"notify_by_email"`
	NotifyByPush   bool                 `json:"notify_by_push"`
	Severity       models.AlertSeverity `json:"severity"`
	CreatedAt      time.Time            `json:"created_at"`
}

func NewAlertConfig(a models.Alert) AlertConfig {
	return AlertConfig{
		AlertID:        a.AlertID,
		SensorID:       a.SensorID,
		GreenHouseID:   a.GreenHouseID,
		ThresholdRange: a.ThresholdRange,
		Range:          models.ParseThreshold(a.ThresholdRange),
		NotifyByEmail:  a.NotifyByEmail,
		NotifyByPush:   a.NotifyByPush,
		Severity:       a.Severity,
		CreatedAt:      a.CreatedAt,
	}
}

type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeUpdated ChangeKind = "updated"
)

// Change is one difference found when the cache is replaced.
type Change struct {
	Kind     ChangeKind
	SensorID int
	Old      *AlertConfig
	New      *AlertConfig
}

func (c Change) String() string {
	switch c.Kind {
	case ChangeAdded:
		return fmt.Sprintf("sensor %d: new alert config %d, threshold %q, severity %s", c.SensorID, c.New.AlertID, c.New.ThresholdRange, c.New.Severity)
	case ChangeRemoved:
		return fmt.Sprintf("sensor %d: alert config %d removed", c.SensorID, c.Old.AlertID)
	default:
		return fmt.Sprintf("sensor %d: alert config %d -> %d, threshold %q -> %q, severity %s -> %s",
			c.SensorID, c.Old.AlertID, c.New.AlertID, c.Old.ThresholdRange, c.New.ThresholdRange, c.Old.Severity, c.New.Severity)
	}
}

// ConfigCache holds at most one config per sensor.
type ConfigCache struct {
	mu      sync.RWMutex
	configs map[int]AlertConfig
}

func NewConfigCache() *ConfigCache {
	return &ConfigCache{configs: make(map[int]AlertConfig)}
}

func (c *ConfigCache) Get(sensorID int) (AlertConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.configs[sensorID]
	return cfg, ok
}

func (c *ConfigCache) Put(cfg AlertConfig) {
	c.mu.Lock()
	c.configs[cfg.SensorID] = cfg
	n := len(c.configs)
	c.mu.Unlock()
	metrics.CachedAlertConfigs.Set(float64(n))
}

func (c *ConfigCache) Delete(sensorID int) {
	c.mu.Lock()
	delete(c.configs, sensorID)
	n := len(c.configs)
	c.mu.Unlock()
	metrics.CachedAlertConfigs.Set(float64(n))
}

func (c *ConfigCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.configs)
}

// Snapshot returns the cached configs ordered by sensor.
func (c *ConfigCache) Snapshot() []AlertConfig {
	c.mu.RLock()
	out := make([]AlertConfig, 0, len(c.configs))
	for _, cfg := range c.configs {
		out = append(out, cfg)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Replace swaps the whole cache and reports what changed, ordered by sensor.
func (c *ConfigCache) Replace(configs []AlertConfig) []Change {
	next := make(map[int]AlertConfig, len(configs))
	for _, cfg := range configs {
		next[cfg.SensorID] = cfg
	}

	c.mu.Lock()
	prev := c.configs
	c.configs = next
	c.mu.Unlock()
	metrics.CachedAlertConfigs.Set(float64(len(next)))

	var changes []Change
	for id, old := range prev {
		cur, ok := next[id]
		if !ok {
			changes = append(changes, Change{Kind: ChangeRemoved, SensorID: id, Old: &old})
			continue
		}
		if cur.AlertID != old.AlertID || cur.ThresholdRange != old.ThresholdRange || cur.Severity != old.Severity {
			changes = append(changes, Change{Kind: ChangeUpdated, SensorID: id, Old: &old, New: &cur})
		}
	}
	for id, cur := range next {
		if _, ok := prev[id]; !ok {
			changes = append(changes, Change{Kind: ChangeAdded, SensorID: id, New: &cur})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].SensorID < changes[j].SensorID })
	return changes
}
