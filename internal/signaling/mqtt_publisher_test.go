package signaling

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/okieraised/greenhouse-agent/internal/agent/alert_evaluator"
	"github.com/okieraised/greenhouse-agent/internal/common"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.calls = append(f.calls, publishCall{topic: topic, payload: payload})
	return f.err
}

func TestMQTTPublisherNotify(t *testing.T) {
	pub := &fakePublisher{}
	p := NewMQTTPublisher(pub, "notifications", "agent-1")

	ev := alert_evaluator.Event{
		Action: alert_evaluator.ActionCreated,
		Alert: models.Alert{
			AlertID:      7,
			SensorID:     3,
			GreenHouseID: "gh1",
			Severity:     models.SeverityHigh,
			Message:      "por encima",
			CurrentValue: 35.5,
		},
		Sensor: models.SensorInfo{SensorID: 3, SensorName: "temp-1", GreenHouseID: "gh1"},
	}
	require.NoError(t, p.Notify(context.Background(), ev))
	require.Len(t, pub.calls, 1)
	assert.Equal(t, "notifications/gh1/3", pub.calls[0].topic)

	var msg common.NotificationMessage
	require.NoError(t, json.Unmarshal(pub.calls[0].payload, &msg))
	require.NoError(t, msg.Validate())
	assert.Equal(t, constants.MsgTypeNotificationCreated, msg.Payload.Type)
	assert.Equal(t, int64(1), msg.Header.HeaderID)
	assert.Equal(t, "agent-1", msg.Header.AgentID)
	assert.Equal(t, 35.5, msg.Payload.CurrentValue)
	assert.Equal(t, "High", msg.Payload.Severity)
}

func TestMQTTPublisherPropagatesError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	p := NewMQTTPublisher(pub, "notifications", "")

	err := p.Notify(context.Background(), alert_evaluator.Event{
		Action: alert_evaluator.ActionUpdated,
		Alert:  models.Alert{AlertID: 1, SensorID: 2},
	})
	assert.EqualError(t, err, "broker down")
	assert.Equal(t, "notifications/_/2", pub.calls[0].topic)
}
