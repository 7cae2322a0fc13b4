package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		min, max float64
	}{
		{"well formed", "20-30", 20, 30},
		{"spaces and decimals", " 10.5 - 35 ", 10.5, 35},
		{"bad max", "20-abc", 20, math.Inf(1)},
		{"bad min", "x-30", math.Inf(-1), 30},
		{"empty", "", math.Inf(-1), math.Inf(1)},
		{"no separator", "2030", math.Inf(-1), math.Inf(1)},
		{"negative min is three parts", "-10-30", math.Inf(-1), math.Inf(1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := ParseThreshold(tc.raw)
			assert.Equal(t, tc.min, r.Min)
			assert.Equal(t, tc.max, r.Max)
		})
	}
}

func TestAlertTypeFor(t *testing.T) {
	assert.Equal(t, AlertTypeTemperature, AlertTypeFor(SensorTypeTemperature))
	assert.Equal(t, AlertTypeCO2, AlertTypeFor(SensorTypeCO2))
	assert.Equal(t, AlertTypeBrightness, AlertTypeFor(SensorTypeBrightness))
	assert.Equal(t, AlertTypeHumidity, AlertTypeFor(SensorTypeHumidity))
}

func TestSeverityOrDefault(t *testing.T) {
	assert.Equal(t, SeverityHigh, SeverityHigh.OrDefault())
	assert.Equal(t, SeverityMedium, AlertSeverity(9).OrDefault())
	assert.Equal(t, SeverityMedium, AlertSeverity(-1).OrDefault())
}

func TestSensorTypeTraits(t *testing.T) {
	assert.True(t, SensorTypeTemperature.ExpectedRange().Contains(25.6))
	assert.False(t, SensorTypeCO2.ExpectedRange().Contains(120))
	assert.Equal(t, []float64{10, 100}, SensorTypeHumidity.ScaleFactors())
	assert.Equal(t, 1, SensorTypeTemperature.Decimals())
	assert.Equal(t, 0, SensorTypeBrightness.Decimals())
	assert.Equal(t, "1000-12000", SensorTypeBrightness.DefaultThreshold())
	assert.Equal(t, "gh1/temp", SensorInfo{GreenHouseID: "gh1", Topic: "temp"}.FullTopic())
}
