package models

import "math"

type SensorType int

const (
	SensorTypeTemperature SensorType = iota
	SensorTypeCO2
	SensorTypeBrightness
	SensorTypeHumidity
)

func (t SensorType) String() string {
	switch t {
	case SensorTypeTemperature:
		return "Temperature"
	case SensorTypeCO2:
		return "CO2"
	case SensorTypeBrightness:
		return "Brightness"
	case SensorTypeHumidity:
		return "Humidity"
	default:
		return "Unknown"
	}
}

// DisplayName is the operator-facing name used in alert messages.
func (t SensorType) DisplayName() string {
	switch t {
	case SensorTypeTemperature:
		return "Temperatura"
	case SensorTypeHumidity:
		return "Humedad"
	case SensorTypeCO2:
		return "CO2"
	case SensorTypeBrightness:
		return "Luminosidad"
	default:
		return "Desconocido"
	}
}

// Unit is the physical unit symbol of calibrated values.
func (t SensorType) Unit() string {
	switch t {
	case SensorTypeTemperature:
		return "°C"
	case SensorTypeHumidity:
		return "%"
	case SensorTypeCO2:
		return "ppm"
	case SensorTypeBrightness:
		return "lux"
	default:
		return ""
	}
}

// Range is the plausible physical range of a calibrated reading.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// OpenRange accepts every value.
var OpenRange = Range{Min: math.Inf(-1), Max: math.Inf(1)}

// ExpectedRange returns the physical range used by calibration.
func (t SensorType) ExpectedRange() Range {
	switch t {
	case SensorTypeTemperature:
		return Range{Min: -40, Max: 125}
	case SensorTypeHumidity:
		return Range{Min: 0, Max: 100}
	case SensorTypeCO2:
		return Range{Min: 400, Max: 5000}
	case SensorTypeBrightness:
		return Range{Min: 0, Max: 100000}
	default:
		return OpenRange
	}
}

// ScaleFactors lists the divisors hardware of this type is known to report with.
func (t SensorType) ScaleFactors() []float64 {
	switch t {
	case SensorTypeTemperature, SensorTypeBrightness:
		return []float64{10, 100, 1000}
	case SensorTypeHumidity, SensorTypeCO2:
		return []float64{10, 100}
	default:
		return nil
	}
}

// Decimals is the number of decimals calibrated values are rounded to.
func (t SensorType) Decimals() int {
	if t == SensorTypeTemperature {
		return 1
	}
	return 0
}

// DefaultThreshold is the range suggested when an operator creates an alert.
func (t SensorType) DefaultThreshold() string {
	switch t {
	case SensorTypeTemperature:
		return "10-35"
	case SensorTypeHumidity:
		return "30-80"
	case SensorTypeCO2:
		return "1000-2000"
	case SensorTypeBrightness:
		return "1000-12000"
	default:
		return ""
	}
}

type Units int

const (
	UnitsCelsius Units = iota
	UnitsLumen
	UnitsMicrogramPerM3
	UnitsGramPerM3
)

// Sensor is a field device publishing on {GreenHouseID}/{Topic}.
type Sensor struct {
	SensorID     int        `gorm:"column:sensor_id;primaryKey;autoIncrement" json:"sensor_id"`
	SensorName   string     `gorm:"column:sensor_name;size:15;not null" json:"sensor_name"`
	SensorType   SensorType `gorm:"column:sensor_type;not null" json:"sensor_type"`
	Units        Units      `gorm:"column:units;not null" json:"units"`
	Topic        string     `gorm:"column:topic;size:120;not null;index" json:"topic"`
	GreenHouseID string     `gorm:"column:green_house_id;size:128;not null;index" json:"green_house_id"`
}

func (Sensor) TableName() string { return "sensors" }

// SensorInfo is the projection the pipeline needs for one topic.
type SensorInfo struct {
	SensorID     int        `json:"sensor_id"`
	SensorName   string     `json:"sensor_name"`
	SensorType   SensorType `json:"sensor_type"`
	Units        Units      `json:"units"`
	Topic        string     `json:"topic"`
	GreenHouseID string     `json:"green_house_id"`
	UserID       string     `json:"user_id"`
}

// FullTopic is the subscription topic of the sensor.
func (s SensorInfo) FullTopic() string {
	if s.GreenHouseID == "" {
		return s.Topic
	}
	return s.GreenHouseID + "/" + s.Topic
}
