// Package mqtt_logger subscribes to every sensor topic and takes each reading
// through parsing, calibration, alerting and the per-topic file log.
package mqtt_logger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/agent/alert_evaluator"
	"github.com/okieraised/greenhouse-agent/internal/agent/calibration"
	"github.com/okieraised/greenhouse-agent/internal/agent/file_log_writer"
	"github.com/okieraised/greenhouse-agent/internal/agent/session_tracker"
	"github.com/okieraised/greenhouse-agent/internal/agent/value_parser"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/local_cache"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/mqtt_client"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("pipeline stopped")

// Transport is the pub/sub client the pipeline runs over.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string) error
	OnMessage(h mqtt_client.MessageHandler)
	OnDisconnected(h mqtt_client.DisconnectHandler)
	IsConnected() bool
	Disconnect()
}

// Components are the collaborators shared with the HTTP surface and the
// refresh loop.
type Components struct {
	Store       store.Store
	Sensors     *local_cache.SensorCache
	Calibration *calibration.Engine
	Evaluator   *alert_evaluator.Evaluator
	Refresher   *alert_evaluator.Refresher
	Files       *file_log_writer.Writer
}

type inbound struct {
	payload    []byte
	receivedAt time.Time
}

type Pipeline struct {
	transport Transport
	c         Components
	conf      Options
	logs      *log.Channels
	tracker   *session_tracker.Tracker

	ctx          context.Context
	mu           sync.Mutex
	lanes        map[string]chan inbound
	closed       bool
	wg           sync.WaitGroup
	reconnecting atomic.Bool
	subscribed   atomic.Int32
}

func New(transport Transport, c Components, opts ...Option) (*Pipeline, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if c.Store == nil || c.Calibration == nil || c.Evaluator == nil || c.Files == nil {
		return nil, errors.New("store, calibration engine, evaluator and file writer are required")
	}

	conf := defaultOptionsFromViper()
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}
	if conf.Logs == nil {
		conf.Logs = log.NopChannels()
	}
	if conf.LaneBuffer <= 0 {
		conf.LaneBuffer = 1
	}

	p := &Pipeline{
		transport: transport,
		c:         c,
		conf:      conf,
		logs:      conf.Logs,
		lanes:     make(map[string]chan inbound),
	}
	p.tracker = session_tracker.New(conf.InactivityThreshold,
		session_tracker.WithClock(conf.Now),
		session_tracker.WithOnStart(func(ctx context.Context, topic string, at time.Time) {
			p.logs.Service.Info(fmt.Sprintf("reception started on %s", topic))
			c.Files.WriteStartMarker(ctx, topic, at)
		}),
		session_tracker.WithOnEnd(func(ctx context.Context, topic string, at time.Time) {
			p.logs.Service.Info(fmt.Sprintf("reception ended on %s", topic))
			c.Files.WriteEndMarker(ctx, topic, at)
		}),
	)
	return p, nil
}

// Run connects, subscribes and processes messages until ctx is done. A failed
// bootstrap is retried after the bootstrap delay without limit.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.ctx != nil {
		p.mu.Unlock()
		return errors.New("pipeline already running")
	}
	p.ctx = ctx
	p.mu.Unlock()

	p.transport.OnMessage(p.enqueue)
	p.transport.OnDisconnected(p.connectionLost)

	p.dumpDatabase(ctx)

	for attempt := 1; ; attempt++ {
		err := p.connect(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			p.shutdown()
			return nil
		}
		p.logs.Error.Error(fmt.Sprintf("mqtt bootstrap attempt %d failed, retrying in %s", attempt, p.conf.BootstrapRetryDelay), zap.Error(err))
		if sErr := utilities.Sleep(ctx, p.conf.BootstrapRetryDelay); sErr != nil {
			p.shutdown()
			return nil
		}
	}
	p.logs.Service.Info("mqtt logger ready")

	<-ctx.Done()
	p.shutdown()
	return nil
}

// connect opens the transport and subscribes to every registered sensor topic.
// The topic list is read from the store on each call.
func (p *Pipeline) connect(ctx context.Context) error {
	if err := p.transport.Connect(ctx); err != nil {
		return err
	}
	sensors, err := p.c.Store.ListAllSensorTopics(ctx)
	if err != nil {
		p.transport.Disconnect()
		return errors.Wrap(err, "list sensor topics")
	}

	var n int32
	for _, s := range sensors {
		topic := s.FullTopic()
		if topic == "" {
			continue
		}
		if err := p.transport.Subscribe(ctx, topic); err != nil {
			p.logs.Error.Error(fmt.Sprintf("subscribe to %s failed", topic), zap.Error(err))
			continue
		}
		n++
		p.logs.Debug.Debug(fmt.Sprintf("subscribed to %s", topic))
	}
	p.subscribed.Store(n)
	p.logs.Service.Info(fmt.Sprintf("subscribed to %d of %d sensor topics", n, len(sensors)))
	return nil
}

func (p *Pipeline) connectionLost(err error) {
	metrics.Reconnects.Inc()
	p.logs.Error.Warn("mqtt connection lost", zap.Error(err))
	if !p.reconnecting.CompareAndSwap(false, true) {
		return
	}
	if !p.spawn(p.reconnect) {
		p.reconnecting.Store(false)
	}
}

func (p *Pipeline) reconnect() {
	defer p.reconnecting.Store(false)
	delay := p.conf.ReconnectDelay
	for {
		if err := utilities.Sleep(p.ctx, delay); err != nil {
			return
		}
		err := p.connect(p.ctx)
		if err == nil {
			p.logs.Service.Info("mqtt connection restored")
			return
		}
		if p.ctx.Err() != nil {
			return
		}
		p.logs.Error.Error(fmt.Sprintf("mqtt reconnect failed, retrying in %s", p.conf.BootstrapRetryDelay), zap.Error(err))
		delay = p.conf.BootstrapRetryDelay
	}
}

// spawn runs fn on a goroutine joined at shutdown. It reports false once the
// pipeline is closed.
func (p *Pipeline) spawn(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.ctx == nil {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
	return true
}

// enqueue hands a message to the lane of its topic. Each lane is drained by
// one goroutine so readings of a topic are processed in arrival order.
func (p *Pipeline) enqueue(topic string, payload []byte) {
	msg := inbound{payload: append([]byte(nil), payload...), receivedAt: p.conf.Now()}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.ctx == nil {
		return
	}
	lane, ok := p.lanes[topic]
	if !ok {
		lane = make(chan inbound, p.conf.LaneBuffer)
		p.lanes[topic] = lane
		p.wg.Add(1)
		go p.drain(topic, lane)
	}
	select {
	case lane <- msg:
	default:
		p.reportFailure(metrics.StageOverflow, topic, errors.Errorf("lane full (%d pending), message dropped", p.conf.LaneBuffer))
	}
}

func (p *Pipeline) drain(topic string, lane <-chan inbound) {
	defer p.wg.Done()
	for msg := range lane {
		if p.ctx.Err() != nil {
			continue
		}
		p.handle(topic, msg)
	}
}

// handle bounds the processing of one message. A message that runs past the
// timeout is abandoned and counted; it is never retried.
func (p *Pipeline) handle(topic string, msg inbound) {
	ctx, cancel := context.WithTimeout(p.ctx, p.conf.MessageTimeout)
	defer cancel()

	done := make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		p.process(ctx, topic, msg)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if p.ctx.Err() == nil {
			p.reportFailure(metrics.StageTimeout, topic, errors.Errorf("processing exceeded %s, message dropped", p.conf.MessageTimeout))
		}
	}
}

func (p *Pipeline) process(ctx context.Context, topic string, msg inbound) {
	defer func() {
		if r := recover(); r != nil {
			p.reportFailure(metrics.StagePanic, topic, errors.Errorf("panic while processing message: %v", r))
		}
	}()
	metrics.MessagesReceived.Inc()
	defer func(start time.Time) {
		metrics.MessageDuration.Observe(time.Since(start).Seconds())
	}(time.Now())

	p.tracker.Touch(topic)

	raw := string(msg.payload)
	parsed, err := value_parser.Parse(raw)
	if err != nil {
		p.reportFailure(metrics.StageParse, topic, errors.Wrapf(err, "payload %q", raw))
		return
	}
	if parsed.Corrected {
		p.logs.Debug.Debug(fmt.Sprintf("payload on %s corrected: %q -> %q (%s)", topic, raw, parsed.Cleaned, parsed.Method))
	}

	sensor, err := p.lookup(ctx, topic)
	if err != nil {
		p.reportFailure(metrics.StageSensor, topic, err)
		return
	}

	if abandoned(ctx) {
		return
	}
	value := p.c.Calibration.Process(sensor.SensorID, sensor.SensorType, parsed.Value)
	p.logs.Debug.Debug("reading processed",
		zap.String("topic", topic),
		zap.Int("sensor_id", sensor.SensorID),
		zap.Float64("raw", parsed.Value),
		zap.Float64("value", value))

	if abandoned(ctx) {
		return
	}
	if _, err := p.c.Evaluator.Evaluate(ctx, sensor, value); err != nil {
		p.reportFailure(metrics.StageAlert, topic, err)
	}

	if abandoned(ctx) {
		return
	}
	// Failed writes are reported by the writer itself.
	_ = p.c.Files.WriteReading(ctx, file_log_writer.Reading{
		Topic:      topic,
		SensorName: sensor.SensorName,
		Value:      value,
		Decimals:   sensor.SensorType.Decimals(),
		Unit:       sensor.SensorType.Unit(),
		Payload:    raw,
		At:         msg.receivedAt,
	})
}

// abandoned reports whether the lane has already moved past this message.
// Later steps mutate per-sensor state and must not overlap the next message.
func abandoned(ctx context.Context) bool {
	return ctx.Err() != nil
}

// lookup resolves the sensor of topic through the lookup cache.
func (p *Pipeline) lookup(ctx context.Context, topic string) (models.SensorInfo, error) {
	if p.c.Sensors != nil {
		if info, ok := p.c.Sensors.Get(topic); ok {
			return info, nil
		}
	}
	info, err := p.c.Store.FindSensorByTopic(ctx, topic)
	if errors.Is(err, store.ErrNotFound) {
		return models.SensorInfo{}, errors.Wrapf(err, "no sensor registered for topic %s", topic)
	}
	if err != nil {
		return models.SensorInfo{}, errors.Wrapf(err, "look up sensor of %s", topic)
	}
	if p.c.Sensors != nil {
		p.c.Sensors.Set(topic, info)
	}
	return info, nil
}

// reportFailure is the single sink for per-message failures.
func (p *Pipeline) reportFailure(stage, topic string, err error) {
	metrics.MessagesFailed.WithLabelValues(stage).Inc()
	p.logs.Error.Error("message processing failed",
		zap.String("stage", stage),
		zap.String("topic", topic),
		zap.Error(err))
}

// CheckReading evaluates an already calibrated value for topic outside the
// subscription flow.
func (p *Pipeline) CheckReading(ctx context.Context, topic string, value float64) (alert_evaluator.Result, error) {
	sensor, err := p.lookup(ctx, topic)
	if err != nil {
		return alert_evaluator.Result{}, err
	}
	return p.c.Evaluator.Evaluate(ctx, sensor, value)
}

// SignalRefresh asks the refresh loop to resynchronise at its next poll.
func (p *Pipeline) SignalRefresh() {
	if p.c.Refresher != nil {
		p.c.Refresher.Signal()
	}
}

type Status struct {
	Connected      bool `json:"connected"`
	Subscriptions  int  `json:"subscriptions"`
	ActiveSessions int  `json:"active_sessions"`
	Lanes          int  `json:"lanes"`
	Calibrated     int  `json:"calibration_states"`
	AlertConfigs   int  `json:"alert_configs"`
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	lanes := len(p.lanes)
	p.mu.Unlock()
	return Status{
		Connected:      p.transport.IsConnected(),
		Subscriptions:  int(p.subscribed.Load()),
		ActiveSessions: p.tracker.Len(),
		Lanes:          lanes,
		Calibrated:     p.c.Calibration.Len(),
		AlertConfigs:   p.c.Evaluator.Cache().Len(),
	}
}

// dumpDatabase records the registered sensors at startup.
func (p *Pipeline) dumpDatabase(ctx context.Context) {
	sensors, err := p.c.Store.ListAllSensorTopics(ctx)
	if err != nil {
		p.logs.Error.Error("read registered sensors", zap.Error(err))
		return
	}
	for _, s := range sensors {
		p.logs.Database.Info("registered sensor",
			zap.Int("sensor_id", s.SensorID),
			zap.String("sensor_name", s.SensorName),
			zap.String("sensor_type", s.SensorType.String()),
			zap.String("topic", s.FullTopic()),
			zap.String("green_house_id", s.GreenHouseID),
			zap.String("user_id", s.UserID))
	}
	p.logs.Database.Info(fmt.Sprintf("%d sensors registered", len(sensors)))
}

// shutdown stops intake and joins every goroutine the pipeline started.
func (p *Pipeline) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for topic, lane := range p.lanes {
		close(lane)
		delete(p.lanes, topic)
	}
	p.mu.Unlock()

	p.transport.Disconnect()
	p.wg.Wait()
	p.tracker.Close()
	p.logs.Service.Info("mqtt logger stopped")
}
