package mqtt_logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/agent/alert_evaluator"
	"github.com/okieraised/greenhouse-agent/internal/agent/calibration"
	"github.com/okieraised/greenhouse-agent/internal/agent/file_log_writer"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/mqtt_client"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store/storetest"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var tempSensor = models.SensorInfo{
	SensorID:     1,
	SensorName:   "temp-a",
	SensorType:   models.SensorTypeTemperature,
	Topic:        "temp",
	GreenHouseID: "gh1",
	UserID:       "user-1",
}

type fakeTransport struct {
	mu          sync.Mutex
	onMessage   mqtt_client.MessageHandler
	onLost      mqtt_client.DisconnectHandler
	connected   bool
	connectErrs []error
	connects    int
	disconnects int
	subs        []string
}

func (f *fakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, topic)
	return nil
}

func (f *fakeTransport) OnMessage(h mqtt_client.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = h
}

func (f *fakeTransport) OnDisconnected(h mqtt_client.DisconnectHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLost = h
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeTransport) deliver(topic, payload string) {
	f.mu.Lock()
	h := f.onMessage
	f.mu.Unlock()
	h(topic, []byte(payload))
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	h := f.onLost
	f.mu.Unlock()
	h(err)
}

func (f *fakeTransport) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subs...)
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

type harness struct {
	transport *fakeTransport
	mem       *storetest.Memory
	engine    *calibration.Engine
	files     *file_log_writer.Writer
	pipeline  *Pipeline
	errors    *observer.ObservedLogs
	cancel    context.CancelFunc
	done      chan error
}

func newHarness(t *testing.T, fileOpts []file_log_writer.Option, opts ...Option) *harness {
	t.Helper()
	core, observed := observer.New(zapcore.DebugLevel)
	channels := log.NopChannels()
	channels.Error = &log.Logger{Logger: zap.New(core)}

	mem := storetest.NewMemory()
	mem.AddSensor(tempSensor)
	cache := alert_evaluator.NewConfigCache()
	engine := calibration.NewEngine(channels.Calibration)
	files := file_log_writer.New(t.TempDir(), append([]file_log_writer.Option{
		file_log_writer.WithErrorLog(channels.Error),
	}, fileOpts...)...)

	transport := &fakeTransport{}
	base := []Option{
		WithChannels(channels),
		WithRetryDelays(10*time.Millisecond, 10*time.Millisecond),
		WithInactivityThreshold(time.Hour),
		WithMessageTimeout(time.Second),
	}
	p, err := New(transport, Components{
		Store:       mem,
		Calibration: engine,
		Evaluator:   alert_evaluator.NewEvaluator(mem, cache, alert_evaluator.WithLogger(channels.Alerts)),
		Refresher:   alert_evaluator.NewRefresher(mem, cache),
		Files:       files,
	}, append(base, opts...)...)
	require.NoError(t, err)

	return &harness{
		transport: transport,
		mem:       mem,
		engine:    engine,
		files:     files,
		pipeline:  p,
		errors:    observed,
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.pipeline.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })

	require.Eventually(t, func() bool {
		return h.pipeline.Status().Connected && h.pipeline.Status().Subscriptions > 0
	}, waitFor, tick)
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("pipeline did not stop")
	}
}

func (h *harness) logFile(t *testing.T, topic string) string {
	t.Helper()
	path, err := h.files.PathFor(topic)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

func (h *harness) failures(stage string) int {
	return h.errors.FilterMessage("message processing failed").FilterField(zap.String("stage", stage)).Len()
}

func TestCalibratedReadingsAreLoggedInOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	for _, raw := range []string{"25600", "25500", "25700"} {
		h.transport.deliver("gh1/temp", raw)
	}

	require.Eventually(t, func() bool {
		return strings.Count(h.logFile(t, "gh1/temp"), "Valor:") == 3
	}, waitFor, tick)

	content := h.logFile(t, "gh1/temp")
	newest := strings.Index(content, "Valor: 25.7")
	middle := strings.Index(content, "Valor: 25.5")
	oldest := strings.Index(content, "Valor: 25.6")
	require.True(t, newest >= 0 && middle >= 0 && oldest >= 0, content)
	assert.Less(t, newest, middle, "latest reading is prepended")
	assert.Less(t, middle, oldest)
	assert.Contains(t, content, "Inicio")

	st, ok := h.engine.Get(tempSensor.SensorID)
	require.True(t, ok)
	assert.Equal(t, 3, st.SampleCount)

	path, err := h.files.PathFor("gh1/temp")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.files.Root(), "gh1", "gh1_temp.log"), path)
}

func TestBreachCreatesThenUpdatesOneNotification(t *testing.T) {
	h := newHarness(t, nil)
	h.mem.AddAlert(models.Alert{
		AlertID:        100,
		GreenHouseID:   "gh1",
		SensorID:       tempSensor.SensorID,
		Severity:       models.SeverityHigh,
		ThresholdRange: "20-30",
		NotifyByPush:   true,
	})
	h.start(t)

	h.transport.deliver("gh1/temp", "35.5")
	require.Eventually(t, func() bool {
		return len(h.mem.Notifications(tempSensor.SensorID)) == 1
	}, waitFor, tick)

	n := h.mem.Notifications(tempSensor.SensorID)[0]
	assert.Contains(t, n.Message, "por encima")
	assert.Equal(t, 35.5, n.CurrentValue)
	assert.False(t, n.IsResolved)

	h.transport.deliver("gh1/temp", "36.0")
	require.Eventually(t, func() bool {
		ns := h.mem.Notifications(tempSensor.SensorID)
		return len(ns) == 1 && ns[0].CurrentValue == 36.0
	}, waitFor, tick)
	assert.Len(t, h.mem.Notifications(tempSensor.SensorID), 1)
}

func TestGarbagePayloadHasNoSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	h.mem.AddAlert(models.Alert{
		AlertID:        100,
		GreenHouseID:   "gh1",
		SensorID:       tempSensor.SensorID,
		ThresholdRange: "20-30",
	})
	h.start(t)

	h.transport.deliver("gh1/temp", "Logs?/sensor")
	require.Eventually(t, func() bool { return h.failures("parse") == 1 }, waitFor, tick)

	assert.Zero(t, h.engine.Len())
	assert.Empty(t, h.mem.Notifications(tempSensor.SensorID))
	assert.NotContains(t, h.logFile(t, "gh1/temp"), "Valor:")
}

func TestUnknownTopicIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.transport.deliver("gh9/none", "12")
	require.Eventually(t, func() bool { return h.failures("sensor") == 1 }, waitFor, tick)
	assert.Zero(t, h.engine.Len())
}

func TestSlowMessageIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	blocking := file_log_writer.WithPrependFunc(func(string, []byte) error {
		<-release
		return nil
	})

	h := newHarness(t, []file_log_writer.Option{blocking}, WithMessageTimeout(30*time.Millisecond))
	t.Cleanup(unblock)
	h.start(t)

	h.transport.deliver("gh1/temp", "21")
	require.Eventually(t, func() bool { return h.failures("timeout") == 1 }, waitFor, tick)

	unblock()
	h.stop(t)
}

type slowLookupStore struct {
	store.Store
	release chan struct{}
}

func (s *slowLookupStore) FindSensorByTopic(ctx context.Context, topic string) (models.SensorInfo, error) {
	<-s.release
	return s.Store.FindSensorByTopic(ctx, topic)
}

func TestAbandonedMessageLeavesNoState(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }

	h := newHarness(t, nil, WithMessageTimeout(30*time.Millisecond))
	slow := &slowLookupStore{Store: h.mem, release: release}
	p, err := New(h.transport, Components{
		Store:       slow,
		Calibration: h.engine,
		Evaluator:   alert_evaluator.NewEvaluator(h.mem, alert_evaluator.NewConfigCache()),
		Refresher:   alert_evaluator.NewRefresher(h.mem, alert_evaluator.NewConfigCache()),
		Files:       h.files,
	}, WithChannels(h.pipeline.logs),
		WithRetryDelays(10*time.Millisecond, 10*time.Millisecond),
		WithInactivityThreshold(time.Hour),
		WithMessageTimeout(30*time.Millisecond))
	require.NoError(t, err)
	h.pipeline = p
	t.Cleanup(unblock)
	h.start(t)

	h.transport.deliver("gh1/temp", "21")
	require.Eventually(t, func() bool { return h.failures("timeout") == 1 }, waitFor, tick)

	unblock()
	h.stop(t)
	assert.Zero(t, h.engine.Len())
	assert.NotContains(t, h.logFile(t, "gh1/temp"), "Valor:")
}

func TestBootstrapRetriesUntilConnected(t *testing.T) {
	h := newHarness(t, nil)
	h.transport.connectErrs = []error{errors.New("connection refused"), errors.New("connection refused")}
	h.start(t)

	assert.Equal(t, 3, h.transport.connectCount())
	assert.Equal(t, []string{"gh1/temp"}, h.transport.subscriptions())
}

func TestReconnectResubscribesFromStore(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	require.Equal(t, []string{"gh1/temp"}, h.transport.subscriptions())

	h.mem.AddSensor(models.SensorInfo{
		SensorID:     2,
		SensorName:   "co2-a",
		SensorType:   models.SensorTypeCO2,
		Topic:        "co2",
		GreenHouseID: "gh1",
	})
	h.transport.drop(errors.New("EOF"))

	require.Eventually(t, func() bool {
		return h.transport.connectCount() == 2 && h.pipeline.Status().Connected
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return len(h.transport.subscriptions()) == 3
	}, waitFor, tick)
	assert.Equal(t, []string{"gh1/temp", "gh1/temp", "gh1/co2"}, h.transport.subscriptions())
	assert.Equal(t, 2, h.pipeline.Status().Subscriptions)
}

func TestShutdownStopsIntake(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.transport.deliver("gh1/temp", "21")
	require.Eventually(t, func() bool {
		return strings.Contains(h.logFile(t, "gh1/temp"), "Valor: 21")
	}, waitFor, tick)

	h.stop(t)
	assert.False(t, h.transport.IsConnected())

	h.transport.deliver("gh1/temp", "22")
	time.Sleep(20 * time.Millisecond)
	assert.NotContains(t, h.logFile(t, "gh1/temp"), "Valor: 22")

	err := h.pipeline.Run(context.Background())
	assert.Error(t, err, "a pipeline runs once")
}

func TestCheckReading(t *testing.T) {
	h := newHarness(t, nil)
	h.mem.AddAlert(models.Alert{
		AlertID:        100,
		GreenHouseID:   "gh1",
		SensorID:       tempSensor.SensorID,
		ThresholdRange: "20-30",
	})

	res, err := h.pipeline.CheckReading(context.Background(), "gh1/temp", 12)
	require.NoError(t, err)
	assert.Equal(t, alert_evaluator.OutcomeCreated, res.Outcome)
	require.NotNil(t, res.Notification)
	assert.Equal(t, 12.0, res.Notification.CurrentValue)

	_, err = h.pipeline.CheckReading(context.Background(), "gh9/none", 12)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
