// Package session_tracker brackets the reception of each topic with start and end markers.
package session_tracker

import (
	"context"
	"sync"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
)

// MarkerFunc is called when a session of topic starts or ends. ctx is done
// once the tracker is closed.
type MarkerFunc func(ctx context.Context, topic string, at time.Time)

type Options struct {
	Threshold time.Duration
	OnStart   MarkerFunc
	OnEnd     MarkerFunc
	Now       func() time.Time
}

type Option func(*Options)

func WithThreshold(d time.Duration) Option {
	return func(o *Options) {
		o.Threshold = d
	}
}

func WithOnStart(f MarkerFunc) Option {
	return func(o *Options) {
		o.OnStart = f
	}
}

func WithOnEnd(f MarkerFunc) Option {
	return func(o *Options) {
		o.OnEnd = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

type timerEntry struct {
	timer *time.Timer
}

// Tracker keeps the last message time of every active topic. Every message
// arms its own inactivity timer; a timer only ends the session when no newer
// message reset the clock.
type Tracker struct {
	conf Options

	mu     sync.Mutex
	last   map[string]time.Time
	timers map[*timerEntry]struct{}
	closed bool

	topics *utilities.KeyedMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(threshold time.Duration, opts ...Option) *Tracker {
	conf := Options{
		Threshold: threshold,
		OnStart:   func(context.Context, string, time.Time) {},
		OnEnd:     func(context.Context, string, time.Time) {},
		Now:       time.Now,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		conf:   conf,
		last:   make(map[string]time.Time),
		timers: make(map[*timerEntry]struct{}),
		topics: utilities.NewKeyedMutex(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Touch records a message on topic. The start marker, when due, is written
// before Touch returns.
func (t *Tracker) Touch(topic string) (started bool) {
	unlock := t.topics.Lock(topic)
	defer unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	now := t.conf.Now()
	_, seen := t.last[topic]
	t.last[topic] = now
	t.schedule(topic)
	active := len(t.last)
	t.mu.Unlock()

	metrics.ActiveSessions.Set(float64(active))
	if !seen {
		t.conf.OnStart(t.ctx, topic, now)
	}
	return !seen
}

// schedule must be called with t.mu held.
func (t *Tracker) schedule(topic string) {
	entry := &timerEntry{}
	t.wg.Add(1)
	entry.timer = time.AfterFunc(t.conf.Threshold, func() {
		defer t.wg.Done()
		t.mu.Lock()
		delete(t.timers, entry)
		t.mu.Unlock()
		t.expire(topic)
	})
	t.timers[entry] = struct{}{}
}

func (t *Tracker) expire(topic string) {
	unlock := t.topics.Lock(topic)
	defer unlock()

	t.mu.Lock()
	last, ok := t.last[topic]
	now := t.conf.Now()
	ended := ok && !t.closed && now.Sub(last) >= t.conf.Threshold
	if ended {
		delete(t.last, topic)
	}
	active := len(t.last)
	t.mu.Unlock()

	if ended {
		metrics.ActiveSessions.Set(float64(active))
		t.conf.OnEnd(t.ctx, topic, now)
	}
}

// Active reports whether topic has an open session.
func (t *Tracker) Active(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.last[topic]
	return ok
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}

// Close stops every pending timer and waits for the ones already firing.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	for entry := range t.timers {
		if entry.timer.Stop() {
			t.wg.Done()
		}
		delete(t.timers, entry)
	}
	t.mu.Unlock()
	t.cancel()
	t.wg.Wait()
}
