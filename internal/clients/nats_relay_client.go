package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// ErrRelayRefused the relay service answered with an error
var ErrRelayRefused = errors.New("relay refused request")

// request/reply bodies on <prefix>.publish and <prefix>.verify
type relayPublishRequest struct {
	EmitterChain     uint16           `json:"emitter_chain"`
	Emitter          EmitterAddress   `json:"emitter"`
	Payload          []byte           `json:"payload"`
	Nonce            uint32           `json:"nonce"`
	ConsistencyLevel ConsistencyLevel `json:"consistency_level"`
}

type relayPublishReply struct {
	Sequence uint64 `json:"sequence"`
	Error    string `json:"error,omitempty"`
}

type relayVerifyRequest struct {
	Proof []byte `json:"proof"`
}

type relayVerifyReply struct {
	Verification *Verification `json:"verification,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type relayObserveRequest struct {
	EmitterChain uint16         `json:"emitter_chain"`
	Emitter      EmitterAddress `json:"emitter"`
	Sequence     uint64         `json:"sequence"`
}

type relayObserveReply struct {
	Proof []byte `json:"proof,omitempty"`
	Error string `json:"error,omitempty"`
}

func publishSubject(prefix string) string { return prefix + ".publish" }
func verifySubject(prefix string) string  { return prefix + ".verify" }
func observeSubject(prefix string) string { return prefix + ".observe" }

// NATSRelayClient reaches the relay network over NATS request/reply
type NATSRelayClient struct {
	conn    *nats.Conn
	prefix  string
	chain   uint16
	emitter EmitterAddress
}

var _ RelayClient = (*NATSRelayClient)(nil)

// NewNATSRelayClient publishes as emitter on chain through the relay service listening on prefix
func NewNATSRelayClient(conn *nats.Conn, prefix string, chain uint16, emitter EmitterAddress) *NATSRelayClient {
	return &NATSRelayClient{conn: conn, prefix: prefix, chain: chain, emitter: emitter}
}

func (c *NATSRelayClient) request(ctx context.Context, subject string, req, reply interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal relay request: %w", err)
	}
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return context.DeadlineExceeded
		}
		return err
	}
	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("decode relay reply: %w", err)
	}
	return nil
}

func (c *NATSRelayClient) Publish(ctx context.Context, payload []byte, nonce uint32, level ConsistencyLevel) (uint64, error) {
	var reply relayPublishReply
	err := c.request(ctx, publishSubject(c.prefix), &relayPublishRequest{
		EmitterChain:     c.chain,
		Emitter:          c.emitter,
		Payload:          payload,
		Nonce:            nonce,
		ConsistencyLevel: level,
	}, &reply)
	if err != nil {
		return 0, err
	}
	if reply.Error != "" {
		return 0, fmt.Errorf("%w: %s", ErrRelayRefused, reply.Error)
	}
	return reply.Sequence, nil
}

func (c *NATSRelayClient) Verify(ctx context.Context, proof []byte) (*Verification, error) {
	var reply relayVerifyReply
	if err := c.request(ctx, verifySubject(c.prefix), &relayVerifyRequest{Proof: proof}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRelayRefused, reply.Error)
	}
	if reply.Verification == nil {
		return nil, fmt.Errorf("%w: empty verification", ErrRelayRefused)
	}
	return reply.Verification, nil
}

// Observe fetches the signed proof of a published message from a devnet relay server
func Observe(ctx context.Context, conn *nats.Conn, prefix string, chain uint16, emitter EmitterAddress, sequence uint64) ([]byte, error) {
	c := &NATSRelayClient{conn: conn, prefix: prefix}
	var reply relayObserveReply
	err := c.request(ctx, observeSubject(prefix), &relayObserveRequest{
		EmitterChain: chain,
		Emitter:      emitter,
		Sequence:     sequence,
	}, &reply)
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRelayRefused, reply.Error)
	}
	return reply.Proof, nil
}
