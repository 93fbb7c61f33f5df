package clients

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ConsistencyLevel finality the relay network waits for before observing a message
type ConsistencyLevel uint8

// EmitterAddress 32-byte identity of a message emitter on the relay network
type EmitterAddress [32]byte

// EmitterFromAddress left-pads a 20-byte account into an emitter address
func EmitterFromAddress(addr common.Address) EmitterAddress {
	var e EmitterAddress
	copy(e[12:], addr.Bytes())
	return e
}

// ParseEmitter accepts a 20 or 32 byte hex string
func ParseEmitter(s string) (EmitterAddress, error) {
	var e EmitterAddress
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return e, fmt.Errorf("invalid emitter %q: %w", s, err)
	}
	switch len(raw) {
	case 20:
		copy(e[12:], raw)
	case 32:
		copy(e[:], raw)
	default:
		return e, fmt.Errorf("invalid emitter %q: want 20 or 32 bytes, got %d", s, len(raw))
	}
	return e, nil
}

// String 0x-prefixed 64 hex chars
func (e EmitterAddress) String() string {
	return "0x" + hex.EncodeToString(e[:])
}

func (e EmitterAddress) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *EmitterAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseEmitter(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Envelope what the relay network attests to
type Envelope struct {
	Timestamp        uint32           `json:"timestamp"`
	Nonce            uint32           `json:"nonce"`
	EmitterChain     uint16           `json:"emitter_chain"`
	Emitter          EmitterAddress   `json:"emitter"`
	Sequence         uint64           `json:"sequence"`
	ConsistencyLevel ConsistencyLevel `json:"consistency_level"`
	Payload          []byte           `json:"payload"`
}

// Verification outcome of checking a proof. Valid=false carries the refusal reason;
// transport failures are returned as errors instead.
type Verification struct {
	Envelope *Envelope `json:"envelope,omitempty"`
	Valid    bool      `json:"valid"`
	Reason   string    `json:"reason,omitempty"`
}

// RelayClient publishes outbound payloads and verifies inbound proofs
type RelayClient interface {
	// Publish submits payload and returns the sequence number assigned to it
	Publish(ctx context.Context, payload []byte, nonce uint32, level ConsistencyLevel) (uint64, error)
	// Verify checks a proof and returns the attested envelope
	Verify(ctx context.Context, proof []byte) (*Verification, error)
}
