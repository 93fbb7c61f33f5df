package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// IsTronAddress checks whether address is a TRON Base58 address
func IsTronAddress(address string) bool {
	return address != "" && strings.HasPrefix(address, "T") && len(address) == 34
}

// IsEvmAddress checks whether address is a 20-byte hex address
func IsEvmAddress(address string) bool {
	return common.IsHexAddress(address)
}

// IsUniversalAddress checks whether address is a 32-byte hex address
func IsUniversalAddress(address string) bool {
	h := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}

// ErrEmptyRecipient recipient carries no bytes
var ErrEmptyRecipient = errors.New("empty recipient")

// RecipientBytes converts a recipient as typed by a caller into the bytes carried in a transfer payload.
// EVM addresses become 20 bytes, universal addresses 32 bytes, TRON addresses their 20-byte account.
// Any other 0x-prefixed hex string is passed through as raw bytes for foreign chains.
func RecipientBytes(address string) ([]byte, error) {
	address = strings.TrimSpace(address)
	switch {
	case address == "":
		return nil, ErrEmptyRecipient
	case IsTronAddress(address):
		return tronAccount(address)
	case IsEvmAddress(address):
		return common.HexToAddress(address).Bytes(), nil
	case strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X"):
		raw, err := hex.DecodeString(address[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex recipient: %w", err)
		}
		if len(raw) == 0 {
			return nil, ErrEmptyRecipient
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unrecognized recipient format: %s", address)
	}
}

// LocalAccount reads payload recipient bytes as an account on this chain:
// 20 bytes, or 32 bytes whose first 12 bytes are zero.
func LocalAccount(recipient []byte) (common.Address, error) {
	switch len(recipient) {
	case common.AddressLength:
		return common.BytesToAddress(recipient), nil
	case 32:
		if !bytes.Equal(recipient[:12], make([]byte, 12)) {
			return common.Address{}, fmt.Errorf("32-byte recipient is not a padded 20-byte account")
		}
		return common.BytesToAddress(recipient[12:]), nil
	default:
		return common.Address{}, fmt.Errorf("recipient length %d is not a local account", len(recipient))
	}
}

// FormatRecipient hex form used in records and events
func FormatRecipient(recipient []byte) string {
	return "0x" + hex.EncodeToString(recipient)
}

// tronAccount decodes a TRON address and returns its 20-byte account
func tronAccount(tronAddress string) ([]byte, error) {
	decoded, err := base58.Decode(tronAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TRON address: %w", err)
	}

	// 0x41 prefix + 20-byte account + 4-byte checksum
	if len(decoded) != 25 {
		return nil, fmt.Errorf("invalid TRON address length: expected 25 bytes, got %d", len(decoded))
	}
	addressBytes := decoded[:21]
	hash1 := sha256.Sum256(addressBytes)
	hash2 := sha256.Sum256(hash1[:])
	if !bytes.Equal(decoded[21:], hash2[:4]) {
		return nil, fmt.Errorf("invalid TRON address checksum")
	}
	if addressBytes[0] != 0x41 {
		return nil, fmt.Errorf("invalid TRON address prefix: expected 0x41, got 0x%02x", addressBytes[0])
	}
	return common.CopyBytes(addressBytes[1:]), nil
}
