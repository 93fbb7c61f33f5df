package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// DevnetNetwork in-process relay network: assigns per-emitter sequences and signs
// observations with a local guardian set
type DevnetNetwork struct {
	mu        sync.Mutex
	keys      []*ecdsa.PrivateKey
	guardians *GuardianSet
	sequences map[string]uint64
	published map[string]*Envelope
	now       func() time.Time
}

// NewDevnetNetwork creates a network signed by keys, guardian set index 0
func NewDevnetNetwork(keys []*ecdsa.PrivateKey) *DevnetNetwork {
	addrs := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		addrs = append(addrs, crypto.PubkeyToAddress(k.PublicKey))
	}
	return &DevnetNetwork{
		keys:      keys,
		guardians: &GuardianSet{Index: 0, Keys: addrs},
		sequences: make(map[string]uint64),
		published: make(map[string]*Envelope),
		now:       time.Now,
	}
}

// ParseGuardianKeys decodes hex private keys
func ParseGuardianKeys(hexKeys []string) ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, 0, len(hexKeys))
	for i, h := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(h, "0x"))
		if err != nil {
			return nil, fmt.Errorf("guardian key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// GenerateGuardianKeys creates n fresh guardian keys
func GenerateGuardianKeys(n int) ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func emitterKey(chain uint16, emitter EmitterAddress) string {
	return fmt.Sprintf("%d/%s", chain, emitter)
}

func messageKey(chain uint16, emitter EmitterAddress, sequence uint64) string {
	return fmt.Sprintf("%d/%s/%d", chain, emitter, sequence)
}

// GuardianSet current signer set
func (n *DevnetNetwork) GuardianSet() *GuardianSet {
	return n.guardians
}

// Publish records a message and returns its sequence. Sequences start at 0 per emitter.
func (n *DevnetNetwork) Publish(chain uint16, emitter EmitterAddress, payload []byte, nonce uint32, level ConsistencyLevel) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := emitterKey(chain, emitter)
	seq := n.sequences[key]
	n.sequences[key] = seq + 1

	n.published[messageKey(chain, emitter, seq)] = &Envelope{
		Timestamp:        uint32(n.now().Unix()),
		Nonce:            nonce,
		EmitterChain:     chain,
		Emitter:          emitter,
		Sequence:         seq,
		ConsistencyLevel: level,
		Payload:          append([]byte(nil), payload...),
	}
	logrus.WithFields(logrus.Fields{
		"chain":    chain,
		"emitter":  emitter.String(),
		"sequence": seq,
	}).Debug("devnet relay: message published")
	return seq
}

// SetNextSequence moves an emitter's counter, used to line devnet sequences up with a live deployment
func (n *DevnetNetwork) SetNextSequence(chain uint16, emitter EmitterAddress, next uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sequences[emitterKey(chain, emitter)] = next
}

// Observe returns a signed proof for a published message
func (n *DevnetNetwork) Observe(chain uint16, emitter EmitterAddress, sequence uint64) ([]byte, error) {
	n.mu.Lock()
	env, ok := n.published[messageKey(chain, emitter, sequence)]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no message %d from %s on chain %d", sequence, emitter, chain)
	}
	return SignEnvelope(env, n.guardians.Index, n.keys)
}

// Attest signs an arbitrary envelope, as if observed on a foreign chain
func (n *DevnetNetwork) Attest(env *Envelope) ([]byte, error) {
	return SignEnvelope(env, n.guardians.Index, n.keys)
}

// Verify checks a proof against the guardian set
func (n *DevnetNetwork) Verify(proof []byte) *Verification {
	return n.guardians.VerifyProof(proof)
}

// Client returns a RelayClient publishing as emitter on chain
func (n *DevnetNetwork) Client(chain uint16, emitter EmitterAddress) *DevnetRelayClient {
	return &DevnetRelayClient{network: n, chain: chain, emitter: emitter}
}

// DevnetRelayClient RelayClient backed by a DevnetNetwork
type DevnetRelayClient struct {
	network *DevnetNetwork
	chain   uint16
	emitter EmitterAddress
}

var _ RelayClient = (*DevnetRelayClient)(nil)

func (c *DevnetRelayClient) Publish(ctx context.Context, payload []byte, nonce uint32, level ConsistencyLevel) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.network.Publish(c.chain, c.emitter, payload, nonce, level), nil
}

func (c *DevnetRelayClient) Verify(ctx context.Context, proof []byte) (*Verification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.network.Verify(proof), nil
}
