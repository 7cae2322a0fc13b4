package session_tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) start(_ context.Context, topic string, _ time.Time) { r.add("start:" + topic) }
func (r *recorder) end(_ context.Context, topic string, _ time.Time)   { r.add("end:" + topic) }

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTracker(rec *recorder, threshold time.Duration) *Tracker {
	return New(threshold, WithOnStart(rec.start), WithOnEnd(rec.end))
}

func TestSessionBracketing(t *testing.T) {
	rec := &recorder{}
	tr := newTracker(rec, 50*time.Millisecond)
	defer tr.Close()

	assert.True(t, tr.Touch("gh1/temp"))
	time.Sleep(10 * time.Millisecond)
	assert.False(t, tr.Touch("gh1/temp"))
	assert.True(t, tr.Active("gh1/temp"))

	assert.Eventually(t, func() bool { return !tr.Active("gh1/temp") }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"start:gh1/temp", "end:gh1/temp"}, rec.snapshot())

	assert.True(t, tr.Touch("gh1/temp"), "a new session starts after the previous ended")
}

func TestConcurrentTimersEndOnce(t *testing.T) {
	rec := &recorder{}
	tr := newTracker(rec, 30*time.Millisecond)
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Touch("gh1/hum")
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	ends := 0
	starts := 0
	for _, e := range rec.snapshot() {
		switch e {
		case "end:gh1/hum":
			ends++
		case "start:gh1/hum":
			starts++
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestTopicsAreIndependent(t *testing.T) {
	rec := &recorder{}
	tr := newTracker(rec, 40*time.Millisecond)
	defer tr.Close()

	tr.Touch("gh1/temp")
	tr.Touch("gh2/temp")
	assert.Equal(t, 2, tr.Len())
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"start:gh1/temp", "start:gh2/temp", "end:gh1/temp", "end:gh2/temp"}, rec.snapshot())
}

func TestCloseStopsPendingTimers(t *testing.T) {
	rec := &recorder{}
	tr := newTracker(rec, 20*time.Millisecond)
	tr.Touch("gh1/co2")
	tr.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"start:gh1/co2"}, rec.snapshot())
	assert.False(t, tr.Touch("gh1/co2"))
}

func TestCloseCancelsMarkerContext(t *testing.T) {
	var markerCtx context.Context
	tr := New(time.Hour, WithOnStart(func(ctx context.Context, _ string, _ time.Time) {
		markerCtx = ctx
	}))

	tr.Touch("gh1/temp")
	require.NotNil(t, markerCtx)
	assert.NoError(t, markerCtx.Err())

	tr.Close()
	assert.ErrorIs(t, markerCtx.Err(), context.Canceled)
}
