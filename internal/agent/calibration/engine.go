// Package calibration infers per-sensor scale factors from the observed values.
package calibration

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"go.uber.org/zap"
)

const (
	WindowSize          = 10
	RecalibrationPeriod = 5
)

// State is the calibration of one sensor. It lives in memory only.
type State struct {
	SensorID         int               `json:"sensor_id"`
	SensorType       models.SensorType `json:"sensor_type"`
	RecentRawValues  []float64         `json:"recent_raw_values"`
	SampleCount      int               `json:"sample_count"`
	ConversionFactor float64           `json:"conversion_factor"`
	IsCalibrated     bool              `json:"is_calibrated"`
	ValueFormat      string            `json:"value_format"`
}

type sensorState struct {
	mu sync.Mutex
	State
}

type Engine struct {
	mu     sync.Mutex
	states map[int]*sensorState
	logger *log.Logger
}

func NewEngine(logger *log.Logger) *Engine {
	return &Engine{
		states: make(map[int]*sensorState),
		logger: logger,
	}
}

func (e *Engine) state(sensorID int, sensorType models.SensorType) (*sensorState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[sensorID]
	if !ok {
		st = &sensorState{State: State{
			SensorID:         sensorID,
			SensorType:       sensorType,
			ConversionFactor: 1,
			ValueFormat:      formatTag(1),
		}}
		e.states[sensorID] = st
		metrics.CalibratedSensors.Set(float64(len(e.states)))
	}
	return st, !ok
}

// Process records raw for the sensor and returns the calibrated value.
// It never panics: on an internal failure raw is returned unchanged.
func (e *Engine) Process(sensorID int, sensorType models.SensorType, raw float64) (value float64) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn(fmt.Sprintf("calibration of sensor %d failed, using raw value %v: %v", sensorID, raw, r))
			value = raw
		}
	}()

	st, created := e.state(sensorID, sensorType)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !created && st.SensorType != sensorType {
		e.logger.Info(fmt.Sprintf("sensor %d changed type %s -> %s, calibration reset", sensorID, st.SensorType, sensorType))
		st.State = State{SensorID: sensorID, SensorType: sensorType, ConversionFactor: 1, ValueFormat: formatTag(1)}
	}

	st.RecentRawValues = append(st.RecentRawValues, raw)
	if len(st.RecentRawValues) > WindowSize {
		st.RecentRawValues = st.RecentRawValues[len(st.RecentRawValues)-WindowSize:]
	}
	st.SampleCount++

	if st.SampleCount%RecalibrationPeriod == 0 {
		e.recalibrate(&st.State)
	}
	return Apply(raw, st.State)
}

func (e *Engine) recalibrate(st *State) {
	mean := average(st.RecentRawValues)
	expected := st.SensorType.ExpectedRange()

	switch {
	case expected.Contains(mean):
		// A locked factor is kept while the mean stays in range.
		if st.IsCalibrated {
			return
		}
		e.logger.Info("sensor reports physical units",
			zap.Int("sensor_id", st.SensorID),
			zap.Float64("mean", mean))
		st.ConversionFactor = 1
		st.ValueFormat = formatTag(1)
		st.IsCalibrated = true
	case mean > expected.Max:
		digits := digitCount(mean)
		for _, f := range st.SensorType.ScaleFactors() {
			if expected.Contains(mean / f) {
				if !st.IsCalibrated || st.ConversionFactor != f {
					e.logger.Info("sensor calibrated",
						zap.Int("sensor_id", st.SensorID),
						zap.String("sensor_type", st.SensorType.String()),
						zap.Float64("mean", mean),
						zap.Int("digits", digits),
						zap.Float64("factor", f))
				}
				st.ConversionFactor = f
				st.ValueFormat = formatTag(f)
				st.IsCalibrated = true
				return
			}
		}
		e.logger.Warn("no scale factor brings the mean into range",
			zap.Int("sensor_id", st.SensorID),
			zap.Float64("mean", mean),
			zap.Int("digits", digits))
	default:
		e.logger.Warn("mean below expected range, calibration unchanged",
			zap.Int("sensor_id", st.SensorID),
			zap.Float64("mean", mean),
			zap.Float64("min", expected.Min))
	}
}

// Apply converts raw with the calibration in st. Before the sensor is
// calibrated the factor ladder is evaluated on raw itself.
func Apply(raw float64, st State) float64 {
	expected := st.SensorType.ExpectedRange()
	v := raw
	switch {
	case st.IsCalibrated && st.ConversionFactor != 0:
		v = raw / st.ConversionFactor
	case raw > expected.Max:
		for _, f := range st.SensorType.ScaleFactors() {
			if expected.Contains(raw / f) {
				v = raw / f
				break
			}
		}
	}
	return utilities.RoundHalfEven(v, st.SensorType.Decimals())
}

// Snapshot copies every state, ordered by sensor id.
func (e *Engine) Snapshot() []State {
	e.mu.Lock()
	entries := make([]*sensorState, 0, len(e.states))
	for _, st := range e.states {
		entries = append(entries, st)
	}
	e.mu.Unlock()

	out := make([]State, 0, len(entries))
	for _, st := range entries {
		st.mu.Lock()
		cp := st.State
		cp.RecentRawValues = append([]float64(nil), st.RecentRawValues...)
		st.mu.Unlock()
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Get returns a copy of the state of one sensor.
func (e *Engine) Get(sensorID int) (State, bool) {
	e.mu.Lock()
	st, ok := e.states[sensorID]
	e.mu.Unlock()
	if !ok {
		return State{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := st.State
	cp.RecentRawValues = append([]float64(nil), st.RecentRawValues...)
	return cp, true
}

// Retain drops the state of every sensor not in ids and returns how many were dropped.
func (e *Engine) Retain(ids []int) int {
	keep := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dropped := 0
	for id := range e.states {
		if _, ok := keep[id]; !ok {
			delete(e.states, id)
			dropped++
		}
	}
	metrics.CalibratedSensors.Set(float64(len(e.states)))
	return dropped
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.states)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func digitCount(v float64) int {
	n := math.Abs(math.Round(v))
	if n < 1 {
		return 1
	}
	return int(math.Floor(math.Log10(n))) + 1
}

func formatTag(factor float64) string {
	return strconv.FormatFloat(factor, 'f', -1, 64)
}
