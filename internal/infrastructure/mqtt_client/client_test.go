package mqtt_client

import (
	"context"
	"net"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startBroker(t *testing.T) (*mochi.Server, string) {
	t.Helper()
	addr := freeAddr(t)
	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{Type: "tcp", ID: "t1", Address: addr})))
	require.NoError(t, broker.Serve())
	return broker, "tcp://" + addr
}

func newTestClient(endpoint, id string) *Client {
	return NewClient(endpoint, id,
		WithQoS(1),
		WithConnectTimeout(time.Second),
		WithWriteTimeout(time.Second),
		WithConnectAttempts(2, 10*time.Millisecond),
		WithLogger(log.Default()),
	)
}

func TestClientPublishSubscribe(t *testing.T) {
	broker, endpoint := startBroker(t)
	defer func() { _ = broker.Close() }()

	ctx := context.Background()
	sub := newTestClient(endpoint, "sub")
	received := make(chan string, 1)
	sub.OnMessage(func(topic string, payload []byte) {
		received <- topic + "=" + string(payload)
	})
	require.NoError(t, sub.Connect(ctx))
	defer sub.Disconnect()
	assert.True(t, sub.IsConnected())
	require.NoError(t, sub.Subscribe(ctx, "gh1/temp"))

	pub := newTestClient(endpoint, "pub")
	require.NoError(t, pub.Connect(ctx))
	defer pub.Disconnect()
	require.NoError(t, pub.Publish(ctx, "gh1/temp", []byte("21.5")))

	select {
	case got := <-received:
		assert.Equal(t, "gh1/temp=21.5", got)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestClientConnectionLost(t *testing.T) {
	broker, endpoint := startBroker(t)

	c := newTestClient(endpoint, "lost")
	lost := make(chan error, 1)
	c.OnDisconnected(func(err error) { lost <- err })
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, broker.Close())

	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect handler not called")
	}
	assert.False(t, c.IsConnected())
}

func TestClientConnectGivesUp(t *testing.T) {
	c := newTestClient("tcp://"+freeAddr(t), "nobody")
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, cerrors.IsTransient(err))
}

func TestClientConnectHonoursContext(t *testing.T) {
	c := NewClient("tcp://"+freeAddr(t), "cancelled",
		WithConnectTimeout(time.Second),
		WithConnectAttempts(5, time.Hour),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
