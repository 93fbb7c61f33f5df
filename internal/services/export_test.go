package services

import "github.com/ethereum/go-ethereum/common"

// AssetLocks exposes the bridge's keyed locks to tests
func (s *BridgeService) AssetLocks() *KeyedMutex {
	return s.locks
}

// FungibleKey lock key of a fungible asset
func FungibleKey(asset common.Address) string {
	return fungibleKey(asset)
}

// Holders number of callers holding or waiting on key
func (k *KeyedMutex) Holders(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.locks[key]; ok {
		return e.refs
	}
	return 0
}
