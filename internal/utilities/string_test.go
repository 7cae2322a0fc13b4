package utilities

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTopic(t *testing.T) {
	tests := []struct {
		in, gh, sensor string
	}{
		{"gh1/temp", "gh1", "temp"},
		{"gh1/zone/a", "gh1", "zone/a"},
		{"temp", "", "temp"},
		{"/gh1/temp/", "gh1", "temp"},
	}
	for _, tc := range tests {
		gh, sensor := SplitTopic(tc.in)
		assert.Equal(t, tc.gh, gh, tc.in)
		assert.Equal(t, tc.sensor, sensor, tc.in)
	}
	assert.Equal(t, "gh1/temp", JoinTopic("gh1", "temp"))
	assert.Equal(t, "temp", JoinTopic("", "temp"))
}

func TestTopicLogPath(t *testing.T) {
	assert.Equal(t, filepath.Join("Logs", "gh1", "gh1_zone_temp.log"), TopicLogPath("Logs", "gh1/zone/temp"))
	assert.Equal(t, filepath.Join("Logs", "temp", "temp.log"), TopicLogPath("Logs", "temp"))
	assert.Equal(t, filepath.Join("Logs", "_", ".._temp.log"), TopicLogPath("Logs", "../temp"))
}

func TestRoundHalfEven(t *testing.T) {
	assert.Equal(t, 2.0, RoundHalfEven(2.5, 0))
	assert.Equal(t, 4.0, RoundHalfEven(3.5, 0))
	assert.Equal(t, 25.6, RoundHalfEven(25.6, 1))
	assert.Equal(t, 1235.0, RoundHalfEven(1234.6, 0))
}
