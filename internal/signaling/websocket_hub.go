package signaling

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okieraised/greenhouse-agent/internal/agent/alert_evaluator"
	"github.com/okieraised/greenhouse-agent/internal/common"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/pkg/errors"
)

const notificationVersion = "1.0.0"

var ErrHubClosed = errors.New("websocket hub is closed")

// WebsocketHub fans notification messages out to every connected dashboard.
type WebsocketHub struct {
	agentID    string
	logger     *log.Logger
	seq        atomic.Int64
	size       atomic.Int32
	clients    map[*WebsocketClient]bool
	broadcast  chan common.NotificationMessage
	register   chan *WebsocketClient
	unregister chan *WebsocketClient
	done       chan struct{}
}

func NewWebsocketHub(agentID string, logger *log.Logger) *WebsocketHub {
	if logger == nil {
		logger = log.Default()
	}
	return &WebsocketHub{
		agentID:    agentID,
		logger:     logger,
		clients:    make(map[*WebsocketClient]bool),
		broadcast:  make(chan common.NotificationMessage),
		register:   make(chan *WebsocketClient),
		unregister: make(chan *WebsocketClient),
		done:       make(chan struct{}),
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then disconnects every client.
func (h *WebsocketHub) Run(ctx context.Context) error {
	h.logger.Info("Starting to listen for new clients and messages")
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.handleMessage(message)
		case <-ctx.Done():
			for client := range h.clients {
				h.removeClient(client)
			}
			h.logger.Info("Shutting down notification websocket hub")
			return nil
		}
	}
}

// Clients returns the number of connected clients.
func (h *WebsocketHub) Clients() int {
	return int(h.size.Load())
}

func (h *WebsocketHub) Register(client *WebsocketClient) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *WebsocketHub) Unregister(client *WebsocketClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *WebsocketHub) Broadcast(ctx context.Context, msg common.NotificationMessage) error {
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify broadcasts a notification event to the dashboards.
func (h *WebsocketHub) Notify(ctx context.Context, ev alert_evaluator.Event) error {
	return h.Broadcast(ctx, h.NewMessage(ev))
}

func (h *WebsocketHub) NewMessage(ev alert_evaluator.Event) common.NotificationMessage {
	return NewNotificationMessage(h.seq.Add(1), h.agentID, ev)
}

// NewNotificationMessage builds the wire message of a notification event.
func NewNotificationMessage(seq int64, agentID string, ev alert_evaluator.Event) common.NotificationMessage {
	kind := constants.MsgTypeNotificationUpdated
	if ev.Action == alert_evaluator.ActionCreated {
		kind = constants.MsgTypeNotificationCreated
	}
	return common.NotificationMessage{
		Header: common.Header{
			HeaderID:    seq,
			Version:     notificationVersion,
			AgentID:     agentID,
			Timestamp:   time.Now().UTC(),
			MessageType: constants.MsgHeaderTypeNotification,
		},
		Payload: common.NotificationBody{
			EventID:        uuid.New(),
			Type:           kind,
			AlertID:        ev.Alert.AlertID,
			SensorID:       ev.Sensor.SensorID,
			SensorName:     ev.Sensor.SensorName,
			GreenHouseID:   ev.Alert.GreenHouseID,
			UserID:         ev.Sensor.UserID,
			Severity:       ev.Alert.Severity.String(),
			Message:        ev.Alert.Message,
			ThresholdRange: ev.Alert.ThresholdRange,
			CurrentValue:   ev.Alert.CurrentValue,
			CreatedAt:      ev.Alert.CreatedAt,
		},
	}
}

func (h *WebsocketHub) registerClient(client *WebsocketClient) {
	if _, ok := h.clients[client]; !ok {
		h.logger.Debug(fmt.Sprintf("Registering new client with id [%s]", client.ID.String()))
		h.clients[client] = true
	} else {
		h.logger.Debug(fmt.Sprintf("Client with id [%s] already registered", client.ID.String()))
	}
	h.size.Store(int32(len(h.clients)))
	h.logger.Debug(fmt.Sprintf("There are [%d] clients connected", len(h.clients)))
}

func (h *WebsocketHub) removeClient(client *WebsocketClient) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.size.Store(int32(len(h.clients)))
		h.logger.Debug(fmt.Sprintf("Client with id [%s] disconnected", client.ID.String()))
	}
}

func (h *WebsocketHub) handleMessage(message common.NotificationMessage) {
	h.logger.Debug(fmt.Sprintf("Publishing notification %d to %d clients", message.Payload.AlertID, len(h.clients)))
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			h.logger.Info(fmt.Sprintf("client %s's send buffer is full, dropping client", client.ID))
			h.removeClient(client)
		}
	}
}
