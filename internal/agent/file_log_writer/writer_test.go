package file_log_writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2025, 3, 1, 8, 30, 15, 123_000_000, time.Local)

func TestFormat(t *testing.T) {
	line := FormatReading(Reading{
		SensorName: "temp-a",
		Value:      25.6,
		Decimals:   1,
		Unit:       "°C",
		Payload:    " 25600 ",
		At:         at,
	})
	assert.Equal(t, "[2025-03-01 08:30:15.123] temp-a - Valor: 25.6 °C (raw: 25600)\n", line)
	assert.Equal(t, "[2025-03-01 08:30:15.123] === Inicio de recepción: gh1/temp ===\n", FormatMarker("Inicio", "gh1/temp", at))
}

func TestPrependNewestFirst(t *testing.T) {
	root := t.TempDir()
	w := New(root, WithErrorLog(log.NopChannels().Error))
	ctx := context.Background()

	w.WriteStartMarker(ctx, "gh1/temp", at)
	require.NoError(t, w.WriteReading(ctx, Reading{Topic: "gh1/temp", SensorName: "temp-a", Value: 21, Decimals: 1, Unit: "°C", Payload: "210", At: at}))
	w.WriteEndMarker(ctx, "gh1/temp", at)

	path, err := w.PathFor("gh1/temp")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "gh1", "gh1_temp.log"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Fin de recepción")
	assert.Contains(t, lines[1], "Valor: 21.0 °C")
	assert.Contains(t, lines[2], "Inicio de recepción")
}

func TestConcurrentWritersDoNotInterleave(t *testing.T) {
	root := t.TempDir()
	w := New(root, WithErrorLog(log.NopChannels().Error))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.Prepend(context.Background(), "gh1/hum", fmt.Sprintf("entry-%02d\n", i)))
		}(i)
	}
	wg.Wait()

	path, _ := w.PathFor("gh1/hum")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(content)), "\n"), 50)
}

func TestRetriesTransientFailures(t *testing.T) {
	calls := 0
	w := New(t.TempDir(),
		WithErrorLog(log.NopChannels().Error),
		WithRetry(3, time.Millisecond),
		WithPrependFunc(func(path string, content []byte) error {
			calls++
			if calls < 3 {
				return errors.New("device busy")
			}
			return utilities.PrependFile(path, content)
		}),
	)
	require.NoError(t, w.Prepend(context.Background(), "gh1/co2", "ok\n"))
	assert.Equal(t, 3, calls)
}

func TestGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	w := New(t.TempDir(),
		WithErrorLog(log.NopChannels().Error),
		WithRetry(3, time.Millisecond),
		WithPrependFunc(func(string, []byte) error {
			calls++
			return errors.New("disk full")
		}),
	)
	err := w.Prepend(context.Background(), "gh1/co2", "lost\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 3, calls)
}

func TestMarkerRetriesStopWithContext(t *testing.T) {
	calls := 0
	w := New(t.TempDir(),
		WithErrorLog(log.NopChannels().Error),
		WithRetry(3, time.Hour),
		WithPrependFunc(func(string, []byte) error {
			calls++
			return errors.New("disk full")
		}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.WriteEndMarker(ctx, "gh1/temp", at)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("end marker kept retrying after cancellation")
	}
	assert.Equal(t, 1, calls)
}
