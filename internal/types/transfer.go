package types

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind identifies which custodian handles a transfer
type AssetKind uint8

const (
	AssetKindFungible    AssetKind = 1
	AssetKindNonFungible AssetKind = 2
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindFungible:
		return "fungible"
	case AssetKindNonFungible:
		return "non_fungible"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// TokenMetadata travels with non-fungible transfers so the destination can mint a wrapped token
type TokenMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// IsZero reports whether no metadata field is set
func (m TokenMetadata) IsZero() bool {
	return m.Name == "" && m.Symbol == "" && m.URI == ""
}

// TransferIntent describes one cross-chain transfer.
// Amount holds the fungible amount or the non-fungible token id.
// TargetChain is the relay-network chain id of the destination.
type TransferIntent struct {
	Kind        AssetKind
	Sender      common.Address
	Amount      *big.Int
	Metadata    TokenMetadata
	TargetChain uint16
	Recipient   []byte
}

// NewTokenTransfer builds a fungible transfer intent
func NewTokenTransfer(sender common.Address, amount *big.Int, targetChain uint16, recipient []byte) *TransferIntent {
	return &TransferIntent{
		Kind:        AssetKindFungible,
		Sender:      sender,
		Amount:      new(big.Int).Set(amount),
		TargetChain: targetChain,
		Recipient:   common.CopyBytes(recipient),
	}
}

// NewNFTTransfer builds a non-fungible transfer intent
func NewNFTTransfer(sender common.Address, tokenID *big.Int, metadata TokenMetadata, targetChain uint16, recipient []byte) *TransferIntent {
	return &TransferIntent{
		Kind:        AssetKindNonFungible,
		Sender:      sender,
		Amount:      new(big.Int).Set(tokenID),
		Metadata:    metadata,
		TargetChain: targetChain,
		Recipient:   common.CopyBytes(recipient),
	}
}

// Equal compares two intents field by field. big.Int values are compared numerically.
func (t *TransferIntent) Equal(o *TransferIntent) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Amount == nil || o.Amount == nil {
		if t.Amount != o.Amount {
			return false
		}
	} else if t.Amount.Cmp(o.Amount) != 0 {
		return false
	}
	return t.Kind == o.Kind &&
		t.Sender == o.Sender &&
		t.Metadata == o.Metadata &&
		t.TargetChain == o.TargetChain &&
		bytes.Equal(t.Recipient, o.Recipient)
}
