package signaling

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"

	"github.com/okieraised/greenhouse-agent/internal/agent/alert_evaluator"
	"github.com/pkg/errors"
)

// Publisher is the part of the mqtt client used to push notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTPublisher publishes notification events as JSON on
// {topic}/{greenhouse}/{sensor} so mobile clients can subscribe per greenhouse.
type MQTTPublisher struct {
	pub     Publisher
	topic   string
	agentID string
	seq     atomic.Int64
}

func NewMQTTPublisher(pub Publisher, topic, agentID string) *MQTTPublisher {
	return &MQTTPublisher{pub: pub, topic: topic, agentID: agentID}
}

// TopicFor returns the topic an event is published on.
func (p *MQTTPublisher) TopicFor(ev alert_evaluator.Event) string {
	gh := ev.Alert.GreenHouseID
	if gh == "" {
		gh = ev.Sensor.GreenHouseID
	}
	if gh == "" {
		gh = "_"
	}
	return p.topic + "/" + gh + "/" + strconv.Itoa(ev.Alert.SensorID)
}

func (p *MQTTPublisher) Notify(ctx context.Context, ev alert_evaluator.Event) error {
	msg := NewNotificationMessage(p.seq.Add(1), p.agentID, ev)
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	return p.pub.Publish(ctx, p.TopicFor(ev), payload)
}
