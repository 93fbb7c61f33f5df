package types

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Payload tags. The first byte of every relay payload selects the body layout.
const (
	PayloadTokenTransfer byte = 1
	PayloadNFTTransfer   byte = 2
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// mustNewType creates a new ABI type, panicking on error (for use in package-level variables)
func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("failed to create ABI type %s: %v", t, err))
	}
	return typ
}

// Body layouts (Solidity abi.encode of the listed fields):
//
//	TOKEN_TRANSFER: (address sender, uint256 amount, uint16 targetChain, bytes recipient)
//	NFT_TRANSFER:   (address sender, uint256 tokenId, uint16 targetChain, bytes recipient,
//	                 string name, string symbol, string uri)
var (
	tokenTransferArgs = abi.Arguments{
		{Name: "sender", Type: mustNewType("address")},
		{Name: "amount", Type: mustNewType("uint256")},
		{Name: "targetChain", Type: mustNewType("uint16")},
		{Name: "recipient", Type: mustNewType("bytes")},
	}

	nftTransferArgs = abi.Arguments{
		{Name: "sender", Type: mustNewType("address")},
		{Name: "tokenId", Type: mustNewType("uint256")},
		{Name: "targetChain", Type: mustNewType("uint16")},
		{Name: "recipient", Type: mustNewType("bytes")},
		{Name: "name", Type: mustNewType("string")},
		{Name: "symbol", Type: mustNewType("string")},
		{Name: "uri", Type: mustNewType("string")},
	}
)

// EncodeTransfer serializes an intent into a relay payload
func EncodeTransfer(intent *TransferIntent) ([]byte, error) {
	if intent == nil {
		return nil, fmt.Errorf("%w: nil intent", ErrDecodeError)
	}
	if len(intent.Recipient) == 0 {
		return nil, ErrInvalidRecipient
	}
	if intent.Amount == nil || intent.Amount.Sign() < 0 || intent.Amount.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("%w: amount out of uint256 range", ErrDecodeError)
	}

	var (
		tag  byte
		body []byte
		err  error
	)
	switch intent.Kind {
	case AssetKindFungible:
		if !intent.Metadata.IsZero() {
			return nil, fmt.Errorf("%w: metadata on fungible transfer", ErrDecodeError)
		}
		tag = PayloadTokenTransfer
		body, err = tokenTransferArgs.Pack(intent.Sender, intent.Amount, intent.TargetChain, intent.Recipient)
	case AssetKindNonFungible:
		tag = PayloadNFTTransfer
		body, err = nftTransferArgs.Pack(intent.Sender, intent.Amount, intent.TargetChain, intent.Recipient,
			intent.Metadata.Name, intent.Metadata.Symbol, intent.Metadata.URI)
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedMessageType, intent.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: abi pack: %v", ErrDecodeError, err)
	}

	out := make([]byte, 0, 1+len(body))
	out = append(out, tag)
	return append(out, body...), nil
}

// PayloadTag returns the tag byte of a payload
func PayloadTag(payload []byte) (byte, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrDecodeError)
	}
	return payload[0], nil
}

// DecodeTransfer parses a relay payload. Unknown tags fail ErrUnsupportedMessageType;
// malformed or non-canonical bodies fail ErrDecodeError.
func DecodeTransfer(payload []byte) (*TransferIntent, error) {
	tag, err := PayloadTag(payload)
	if err != nil {
		return nil, err
	}

	var args abi.Arguments
	switch tag {
	case PayloadTokenTransfer:
		args = tokenTransferArgs
	case PayloadNFTTransfer:
		args = nftTransferArgs
	default:
		return nil, fmt.Errorf("%w: tag 0x%02x", ErrUnsupportedMessageType, tag)
	}

	values, err := args.Unpack(payload[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: abi unpack: %v", ErrDecodeError, err)
	}
	if len(values) != len(args) {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrDecodeError, len(args), len(values))
	}

	sender, ok1 := values[0].(common.Address)
	amount, ok2 := values[1].(*big.Int)
	target, ok3 := values[2].(uint16)
	recipient, ok4 := values[3].([]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("%w: field type mismatch", ErrDecodeError)
	}
	if len(recipient) == 0 {
		return nil, fmt.Errorf("%w: empty recipient", ErrDecodeError)
	}

	intent := &TransferIntent{
		Kind:        AssetKindFungible,
		Sender:      sender,
		Amount:      amount,
		TargetChain: target,
		Recipient:   recipient,
	}
	if tag == PayloadNFTTransfer {
		name, ok5 := values[4].(string)
		symbol, ok6 := values[5].(string)
		uri, ok7 := values[6].(string)
		if !ok5 || !ok6 || !ok7 {
			return nil, fmt.Errorf("%w: metadata type mismatch", ErrDecodeError)
		}
		intent.Kind = AssetKindNonFungible
		intent.Metadata = TokenMetadata{Name: name, Symbol: symbol, URI: uri}
	}

	// Reject trailing bytes and other non-canonical encodings.
	canonical, err := EncodeTransfer(intent)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canonical, payload) {
		return nil, fmt.Errorf("%w: non-canonical encoding", ErrDecodeError)
	}
	return intent, nil
}
