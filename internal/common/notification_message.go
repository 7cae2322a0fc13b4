package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/pkg/errors"
)

// NotificationMessage is pushed to dashboards when a notification is created
// or its value changes.
type NotificationMessage struct {
	Header  Header           `json:"header"`
	Payload NotificationBody `json:"payload"`
}

type Header struct {
	HeaderID    int64     `json:"headerId"`          // monotonic increasing
	Version     string    `json:"version"`           // message version, e.g. "1.0.0"
	AgentID     string    `json:"agentId,omitempty"` // unique ID of the agent
	Timestamp   time.Time `json:"timestamp"`         // ISO 8601 timestamp
	MessageType string    `json:"messageType"`
}

type NotificationBody struct {
	EventID        uuid.UUID             `json:"eventId"`
	Type           constants.MessageType `json:"type"`
	AlertID        int                   `json:"alertId"`
	SensorID       int                   `json:"sensorId"`
	SensorName     string                `json:"sensorName,omitempty"`
	GreenHouseID   string                `json:"greenHouseId"`
	UserID         string                `json:"userId,omitempty"`
	Severity       string                `json:"severity"`
	Message        string                `json:"message"`
	ThresholdRange string                `json:"thresholdRange"`
	CurrentValue   float64               `json:"currentValue"`
	CreatedAt      time.Time             `json:"createdAt"`
}

func (m *NotificationMessage) Validate() error {
	if m.Payload.EventID == uuid.Nil {
		return errors.New("invalid/missing event id")
	}
	if m.Header.MessageType != constants.MsgHeaderTypeNotification {
		return errors.Errorf("invalid message type: %s", m.Header.MessageType)
	}
	switch m.Payload.Type {
	case constants.MsgTypeNotificationCreated, constants.MsgTypeNotificationUpdated:
	default:
		return errors.Errorf("invalid notification type: %s", m.Payload.Type)
	}
	if m.Payload.AlertID == 0 {
		return errors.New("alert id is required")
	}
	return nil
}
