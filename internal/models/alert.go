package models

import (
	"math"
	"strconv"
	"strings"
	"time"
)

type AlertType int

const (
	AlertTypeTemperature AlertType = iota
	AlertTypeHumidity
	AlertTypeCO2
	AlertTypeBrightness
)

func (t AlertType) String() string {
	switch t {
	case AlertTypeTemperature:
		return "Temperature"
	case AlertTypeHumidity:
		return "Humidity"
	case AlertTypeCO2:
		return "CO2"
	case AlertTypeBrightness:
		return "Brightness"
	default:
		return "Unknown"
	}
}

// AlertTypeFor maps a sensor type to its alert type. The two enums are
// numbered differently, so the mapping is explicit.
func AlertTypeFor(t SensorType) AlertType {
	switch t {
	case SensorTypeTemperature:
		return AlertTypeTemperature
	case SensorTypeCO2:
		return AlertTypeCO2
	case SensorTypeBrightness:
		return AlertTypeBrightness
	case SensorTypeHumidity:
		return AlertTypeHumidity
	default:
		return AlertTypeTemperature
	}
}

type AlertSeverity int

const (
	SeverityLow AlertSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s AlertSeverity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// OrDefault returns s, or Medium when s is out of range.
func (s AlertSeverity) OrDefault() AlertSeverity {
	if !s.Valid() {
		return SeverityMedium
	}
	return s
}

func (s AlertSeverity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	default:
		return "Invalid"
	}
}

// Alert is either an operator configured threshold (IsNotification false)
// or a breach raised by the agent (IsNotification true).
type Alert struct {
	AlertID        int           `gorm:"column:alert_id;primaryKey;autoIncrement" json:"alert_id"`
	GreenHouseID   string        `gorm:"column:green_house_id;size:128;not null" json:"green_house_id"`
	SensorID       int           `gorm:"column:sensor_id;not null;index:idx_alert_sensor_kind" json:"sensor_id"`
	AlertType      AlertType     `gorm:"column:alert_type;not null" json:"alert_type"`
	Severity       AlertSeverity `gorm:"column:severity;not null" json:"severity"`
	Message        string        `gorm:"column:message;not null" json:"message"`
	CreatedAt      time.Time     `gorm:"column:created_at;not null" json:"created_at"`
	ResolvedAt     *time.Time    `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	IsResolved     bool          `gorm:"column:is_resolved;not null;default:false" json:"is_resolved"`
	ThresholdRange string        `gorm:"column:threshold_range;not null" json:"threshold_range"`
	CurrentValue   float64       `gorm:"column:current_value;not null" json:"current_value"`
	NotifyByEmail  bool          `gorm:"column:notify_by_email;not null" json:"notify_by_email"`
	NotifyByPush   bool          `gorm:"column:notify_by_push;not null" json:"notify_by_push"`
	IsNotification bool          `gorm:"column:is_notification;not null;index:idx_alert_sensor_kind" json:"is_notification"`
}

func (Alert) TableName() string { return "alerts" }

// ParseThreshold parses "min-max". A side that does not parse is left open,
// and anything other than exactly two parts leaves both sides open.
func ParseThreshold(raw string) Range {
	r := OpenRange
	if raw == "" || !strings.Contains(raw, "-") {
		return r
	}
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return r
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err == nil && !math.IsNaN(v) {
		r.Min = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil && !math.IsNaN(v) {
		r.Max = v
	}
	return r
}
