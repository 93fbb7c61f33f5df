package clients

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runNATS(t *testing.T) *nats.Conn {
	t.Helper()
	s := natsserver.RunRandClientPortServer()
	t.Cleanup(s.Shutdown)

	conn, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestNATSRelayPublishAndVerify(t *testing.T) {
	conn := runNATS(t)
	network := newTestNetwork(t, 3)

	server := NewNATSRelayServer(conn, "relay.test", network)
	require.NoError(t, server.Start())
	defer server.Stop()

	emitter := EmitterFromAddress(common.HexToAddress("0x00000000000000000000000000000000000000e1"))
	client := NewNATSRelayClient(conn, "relay.test", 4, emitter)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq, err := client.Publish(ctx, []byte("hello"), 9, 15)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)

	proof, err := Observe(ctx, conn, "relay.test", 4, emitter, seq)
	require.NoError(t, err)
	direct, err := network.Observe(4, emitter, seq)
	require.NoError(t, err)
	assert.Equal(t, direct, proof)

	_, err = Observe(ctx, conn, "relay.test", 4, emitter, seq+1)
	assert.ErrorIs(t, err, ErrRelayRefused)

	result, err := client.Verify(ctx, proof)
	require.NoError(t, err)
	require.True(t, result.Valid, result.Reason)
	assert.Equal(t, []byte("hello"), result.Envelope.Payload)
	assert.Equal(t, uint32(9), result.Envelope.Nonce)
	assert.Equal(t, ConsistencyLevel(15), result.Envelope.ConsistencyLevel)
	assert.Equal(t, emitter, result.Envelope.Emitter)

	result, err = client.Verify(ctx, []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestNATSRelayWithoutServer(t *testing.T) {
	conn := runNATS(t)
	client := NewNATSRelayClient(conn, "relay.nobody", 1, EmitterAddress{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := client.Publish(ctx, []byte{1}, 0, 1)
	assert.Error(t, err)
}
