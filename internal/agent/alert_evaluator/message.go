package alert_evaluator

import (
	"fmt"
	"strconv"

	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
)

// FormatSensorValue renders v with the precision operators expect for the type.
func FormatSensorValue(t models.SensorType, v float64) string {
	decimals := 2
	switch t {
	case models.SensorTypeTemperature:
		decimals = 1
	case models.SensorTypeHumidity, models.SensorTypeCO2:
		decimals = 0
	case models.SensorTypeBrightness:
		decimals = 1
		if v >= 1000 {
			decimals = 0
		}
	}
	return strconv.FormatFloat(utilities.RoundHalfEven(v, decimals), 'f', decimals, 64)
}

// GenerateAlertMessage describes a reading outside of r.
func GenerateAlertMessage(t models.SensorType, value float64, r models.Range) string {
	name, unit := t.DisplayName(), t.Unit()
	if value < r.Min {
		return fmt.Sprintf("El sensor de %s ha detectado un valor bajo: %s %s, por debajo del mínimo permitido (%s %s)",
			name, FormatSensorValue(t, value), unit, FormatSensorValue(t, r.Min), unit)
	}
	return fmt.Sprintf("El sensor de %s ha detectado un valor alto: %s %s, por encima del máximo permitido (%s %s)",
		name, FormatSensorValue(t, value), unit, FormatSensorValue(t, r.Max), unit)
}
