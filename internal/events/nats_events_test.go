package events

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"go-bridge/internal/services"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRepublishesBusEvents(t *testing.T) {
	server := natsserver.RunRandClientPortServer()
	t.Cleanup(server.Shutdown)
	conn, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	received := make(chan *Envelope, 4)
	sub, err := Subscribe(conn, "bridge.events", logger, func(env *Envelope) { received <- env })
	require.NoError(t, err)
	t.Cleanup(func() { sub.Unsubscribe() })
	require.NoError(t, conn.Flush())

	bus := services.NewEventBus(logger)
	NewNATSEventPublisher(conn, "bridge.events", logger).Attach(bus)

	bus.Dispatch(&services.Event{
		ID:        "evt-1",
		Type:      services.EventReleased,
		Actor:     "0xrelayer",
		Timestamp: time.Now().UTC(),
		Data:      &services.ReleasedEvent{TransferID: "t-9", Sequence: 4},
	})

	select {
	case env := <-received:
		assert.Equal(t, "evt-1", env.ID)
		assert.Equal(t, string(services.EventReleased), env.Type)
		var payload services.ReleasedEvent
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, "t-9", payload.TransferID)
		assert.Equal(t, uint64(4), payload.Sequence)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "bridge.events.Locked", Subject("bridge.events", services.EventLocked))
}
