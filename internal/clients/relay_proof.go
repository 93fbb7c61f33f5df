package clients

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Proof layout (big-endian):
//
//	version u8 | guardian set index u32 | signature count u8 |
//	count * (guardian index u8 | signature [65]byte) | body
//
// body:
//
//	timestamp u32 | nonce u32 | emitter chain u16 | emitter [32]byte |
//	sequence u64 | consistency level u8 | payload
const (
	ProofVersion = 1

	proofHeaderLen   = 1 + 4 + 1
	signatureLen     = 65
	signatureSlotLen = 1 + signatureLen
	envelopeBodyLen  = 4 + 4 + 2 + 32 + 8 + 1
)

var ErrMalformedProof = errors.New("malformed proof")

// MarshalBody serializes the signed portion of a proof
func (e *Envelope) MarshalBody() []byte {
	buf := make([]byte, envelopeBodyLen, envelopeBodyLen+len(e.Payload))
	binary.BigEndian.PutUint32(buf[0:4], e.Timestamp)
	binary.BigEndian.PutUint32(buf[4:8], e.Nonce)
	binary.BigEndian.PutUint16(buf[8:10], e.EmitterChain)
	copy(buf[10:42], e.Emitter[:])
	binary.BigEndian.PutUint64(buf[42:50], e.Sequence)
	buf[50] = byte(e.ConsistencyLevel)
	return append(buf, e.Payload...)
}

// UnmarshalEnvelopeBody parses a body produced by MarshalBody
func UnmarshalEnvelopeBody(body []byte) (*Envelope, error) {
	if len(body) < envelopeBodyLen {
		return nil, fmt.Errorf("%w: body too short (%d bytes)", ErrMalformedProof, len(body))
	}
	e := &Envelope{
		Timestamp:        binary.BigEndian.Uint32(body[0:4]),
		Nonce:            binary.BigEndian.Uint32(body[4:8]),
		EmitterChain:     binary.BigEndian.Uint16(body[8:10]),
		Sequence:         binary.BigEndian.Uint64(body[42:50]),
		ConsistencyLevel: ConsistencyLevel(body[50]),
		Payload:          common.CopyBytes(body[envelopeBodyLen:]),
	}
	copy(e.Emitter[:], body[10:42])
	return e, nil
}

// Digest is what guardians sign: keccak256(keccak256(body))
func (e *Envelope) Digest() common.Hash {
	return crypto.Keccak256Hash(crypto.Keccak256(e.MarshalBody()))
}

// GuardianSignature one guardian's signature over an envelope digest
type GuardianSignature struct {
	Index     uint8
	Signature [signatureLen]byte
}

// SignedProof decoded proof
type SignedProof struct {
	Version          uint8
	GuardianSetIndex uint32
	Signatures       []GuardianSignature
	Envelope         *Envelope
}

// Marshal encodes the proof in wire layout
func (p *SignedProof) Marshal() []byte {
	body := p.Envelope.MarshalBody()
	out := make([]byte, 0, proofHeaderLen+len(p.Signatures)*signatureSlotLen+len(body))
	out = append(out, p.Version)
	out = binary.BigEndian.AppendUint32(out, p.GuardianSetIndex)
	out = append(out, byte(len(p.Signatures)))
	for _, sig := range p.Signatures {
		out = append(out, sig.Index)
		out = append(out, sig.Signature[:]...)
	}
	return append(out, body...)
}

// ParseProof decodes wire bytes without checking signatures
func ParseProof(data []byte) (*SignedProof, error) {
	if len(data) < proofHeaderLen {
		return nil, fmt.Errorf("%w: header too short", ErrMalformedProof)
	}
	p := &SignedProof{
		Version:          data[0],
		GuardianSetIndex: binary.BigEndian.Uint32(data[1:5]),
	}
	if p.Version != ProofVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedProof, p.Version)
	}
	count := int(data[5])
	offset := proofHeaderLen
	if len(data) < offset+count*signatureSlotLen {
		return nil, fmt.Errorf("%w: truncated signatures", ErrMalformedProof)
	}
	p.Signatures = make([]GuardianSignature, count)
	for i := 0; i < count; i++ {
		p.Signatures[i].Index = data[offset]
		copy(p.Signatures[i].Signature[:], data[offset+1:offset+signatureSlotLen])
		offset += signatureSlotLen
	}
	env, err := UnmarshalEnvelopeBody(data[offset:])
	if err != nil {
		return nil, err
	}
	p.Envelope = env
	return p, nil
}

// GuardianSet the addresses whose signatures attest envelopes
type GuardianSet struct {
	Index uint32
	Keys  []common.Address
}

// Quorum signatures needed: more than two thirds of the set
func (gs *GuardianSet) Quorum() int {
	return len(gs.Keys)*2/3 + 1
}

// SignEnvelope produces a proof signed by every key, in index order
func SignEnvelope(env *Envelope, setIndex uint32, keys []*ecdsa.PrivateKey) ([]byte, error) {
	digest := env.Digest()
	proof := &SignedProof{
		Version:          ProofVersion,
		GuardianSetIndex: setIndex,
		Envelope:         env,
		Signatures:       make([]GuardianSignature, 0, len(keys)),
	}
	for i, key := range keys {
		sig, err := crypto.Sign(digest.Bytes(), key)
		if err != nil {
			return nil, fmt.Errorf("guardian %d sign: %w", i, err)
		}
		gsig := GuardianSignature{Index: uint8(i)}
		copy(gsig.Signature[:], sig)
		proof.Signatures = append(proof.Signatures, gsig)
	}
	return proof.Marshal(), nil
}

// VerifyProof checks structure, guardian set and quorum. Refusals come back as
// Valid=false with a reason.
func (gs *GuardianSet) VerifyProof(data []byte) *Verification {
	proof, err := ParseProof(data)
	if err != nil {
		return &Verification{Reason: err.Error()}
	}
	if proof.GuardianSetIndex != gs.Index {
		return &Verification{Envelope: proof.Envelope, Reason: fmt.Sprintf("unknown guardian set %d", proof.GuardianSetIndex)}
	}

	digest := proof.Envelope.Digest()
	valid := 0
	lastIndex := -1
	for _, sig := range proof.Signatures {
		if int(sig.Index) <= lastIndex {
			return &Verification{Envelope: proof.Envelope, Reason: "guardian signatures out of order"}
		}
		lastIndex = int(sig.Index)
		if int(sig.Index) >= len(gs.Keys) {
			return &Verification{Envelope: proof.Envelope, Reason: fmt.Sprintf("guardian index %d out of range", sig.Index)}
		}
		pub, err := crypto.SigToPub(digest.Bytes(), sig.Signature[:])
		if err != nil {
			return &Verification{Envelope: proof.Envelope, Reason: fmt.Sprintf("guardian %d: bad signature", sig.Index)}
		}
		if crypto.PubkeyToAddress(*pub) != gs.Keys[sig.Index] {
			return &Verification{Envelope: proof.Envelope, Reason: fmt.Sprintf("guardian %d: signer mismatch", sig.Index)}
		}
		valid++
	}
	if valid < gs.Quorum() {
		return &Verification{Envelope: proof.Envelope, Reason: fmt.Sprintf("no quorum: %d of %d signatures", valid, gs.Quorum())}
	}
	return &Verification{Envelope: proof.Envelope, Valid: true}
}

// ProofHash identifies a proof by its envelope digest
func ProofHash(data []byte) string {
	proof, err := ParseProof(data)
	if err != nil {
		return crypto.Keccak256Hash(data).Hex()
	}
	return proof.Envelope.Digest().Hex()
}
