// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
)

type Memory struct {
	mu      sync.Mutex
	sensors []models.SensorInfo
	alerts  []models.Alert
	nextID  int
	calls   map[string]int
	fail    map[string]error

	Now func() time.Time
}

var _ store.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		calls:  make(map[string]int),
		fail:   make(map[string]error),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) AddSensor(s models.SensorInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensors = append(m.sensors, s)
}

func (m *Memory) RemoveSensor(sensorID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sensors[:0]
	for _, s := range m.sensors {
		if s.SensorID != sensorID {
			out = append(out, s)
		}
	}
	m.sensors = out
}

// AddAlert stores a copy of a, assigning an id when it has none.
func (m *Memory) AddAlert(a models.Alert) models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(a)
}

func (m *Memory) insert(a models.Alert) models.Alert {
	if a.AlertID == 0 {
		a.AlertID = m.nextID
	}
	if a.AlertID >= m.nextID {
		m.nextID = a.AlertID + 1
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.Now()
	}
	m.alerts = append(m.alerts, a)
	return a
}

func (m *Memory) DeleteAlert(alertID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.alerts[:0]
	for _, a := range m.alerts {
		if a.AlertID != alertID {
			out = append(out, a)
		}
	}
	m.alerts = out
}

// Alerts returns a copy of every stored alert.
func (m *Memory) Alerts() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Alert(nil), m.alerts...)
}

// Notifications returns the stored notifications of a sensor.
func (m *Memory) Notifications(sensorID int) []models.Alert {
	var out []models.Alert
	for _, a := range m.Alerts() {
		if a.IsNotification && a.SensorID == sensorID {
			out = append(out, a)
		}
	}
	return out
}

// FailWith makes every later call of method return err. A nil err clears it.
func (m *Memory) FailWith(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// enter must be called with m.mu held.
func (m *Memory) enter(method string) error {
	m.calls[method]++
	return m.fail[method]
}

func (m *Memory) FindSensorByTopic(_ context.Context, topic string) (models.SensorInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindSensorByTopic"); err != nil {
		return models.SensorInfo{}, err
	}
	gh, sensorTopic := utilities.SplitTopic(topic)
	for _, s := range m.sensors {
		if s.Topic == sensorTopic && (gh == "" || s.GreenHouseID == gh) {
			return s, nil
		}
	}
	for _, s := range m.sensors {
		if s.Topic == topic {
			return s, nil
		}
	}
	return models.SensorInfo{}, store.ErrNotFound
}

func (m *Memory) ListAllSensorTopics(_ context.Context) ([]models.SensorInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListAllSensorTopics"); err != nil {
		return nil, err
	}
	return append([]models.SensorInfo(nil), m.sensors...), nil
}

func (m *Memory) ListSensorIDs(_ context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListSensorIDs"); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(m.sensors))
	for _, s := range m.sensors {
		ids = append(ids, s.SensorID)
	}
	return ids, nil
}

func newer(a, b models.Alert) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.AlertID > b.AlertID
}

func (m *Memory) latest(sensorID int, match func(models.Alert) bool) (models.Alert, bool) {
	var (
		best  models.Alert
		found bool
	)
	for _, a := range m.alerts {
		if a.SensorID != sensorID || !match(a) {
			continue
		}
		if !found || newer(a, best) {
			best, found = a, true
		}
	}
	return best, found
}

func isConfig(a models.Alert) bool { return !a.IsNotification }

func isOpenNotification(a models.Alert) bool { return a.IsNotification && !a.IsResolved }

func (m *Memory) FindLatestAlertConfig(_ context.Context, sensorID int) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindLatestAlertConfig"); err != nil {
		return models.Alert{}, err
	}
	if a, ok := m.latest(sensorID, isConfig); ok {
		return a, nil
	}
	return models.Alert{}, store.ErrNotFound
}

func (m *Memory) ListLatestAlertConfigs(_ context.Context) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListLatestAlertConfigs"); err != nil {
		return nil, err
	}
	seen := make(map[int]struct{})
	var out []models.Alert
	for _, a := range m.alerts {
		if _, ok := seen[a.SensorID]; ok || a.IsNotification {
			continue
		}
		seen[a.SensorID] = struct{}{}
		if best, ok := m.latest(a.SensorID, isConfig); ok {
			out = append(out, best)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out, nil
}

func (m *Memory) FindUnresolvedNotification(_ context.Context, sensorID int) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindUnresolvedNotification"); err != nil {
		return models.Alert{}, err
	}
	if a, ok := m.latest(sensorID, isOpenNotification); ok {
		return a, nil
	}
	return models.Alert{}, store.ErrNotFound
}

func (m *Memory) InsertAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertAlert"); err != nil {
		return err
	}
	*alert = m.insert(*alert)
	return nil
}

func (m *Memory) update(alertID int, fn func(a *models.Alert)) error {
	for i := range m.alerts {
		if m.alerts[i].AlertID == alertID {
			fn(&m.alerts[i])
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *Memory) UpdateCurrentValue(_ context.Context, alertID int, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateCurrentValue"); err != nil {
		return err
	}
	return m.update(alertID, func(a *models.Alert) { a.CurrentValue = value })
}

func (m *Memory) resolve(a *models.Alert) {
	if a.IsResolved {
		return
	}
	now := m.Now()
	a.IsResolved = true
	a.ResolvedAt = &now
}

func (m *Memory) ResolveAlert(_ context.Context, alertID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ResolveAlert"); err != nil {
		return err
	}
	return m.update(alertID, m.resolve)
}

func (m *Memory) DeleteOrphanedAlerts(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteOrphanedAlerts"); err != nil {
		return 0, err
	}
	known := make(map[int]struct{}, len(m.sensors))
	for _, s := range m.sensors {
		known[s.SensorID] = struct{}{}
	}
	var n int64
	out := m.alerts[:0]
	for _, a := range m.alerts {
		if _, ok := known[a.SensorID]; ok {
			out = append(out, a)
			continue
		}
		n++
	}
	m.alerts = out
	return n, nil
}

func (m *Memory) ResolveStaleNotifications(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ResolveStaleNotifications"); err != nil {
		return 0, err
	}
	cutoff := m.Now().Add(-olderThan)
	var n int64
	for i := range m.alerts {
		a := &m.alerts[i]
		if isOpenNotification(*a) && a.CreatedAt.Before(cutoff) {
			m.resolve(a)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ResolveDuplicateNotifications(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ResolveDuplicateNotifications"); err != nil {
		return 0, err
	}
	var n int64
	for i := range m.alerts {
		a := &m.alerts[i]
		if !isOpenNotification(*a) {
			continue
		}
		if best, ok := m.latest(a.SensorID, isOpenNotification); ok && best.AlertID != a.AlertID {
			m.resolve(a)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
