package dto

// LockTokensRequest lock an amount of the configured token for another chain
type LockTokensRequest struct {
	Amount      string `json:"amount" binding:"required"` // decimal
	TargetChain uint32 `json:"target_chain" binding:"required"`
	Recipient   string `json:"recipient"` // EVM, universal (32-byte hex), TRON or raw 0x hex
}

// LockNFTRequest lock one token of the configured collection for another chain
type LockNFTRequest struct {
	TokenID     string `json:"token_id" binding:"required"` // decimal
	TargetChain uint32 `json:"target_chain" binding:"required"`
	Recipient   string `json:"recipient"`
}

// LockResponse outbound transfer accepted by the relay
type LockResponse struct {
	Success    bool   `json:"success"`
	TransferID string `json:"transfer_id"`
	Sequence   uint64 `json:"sequence"`
	Nonce      uint32 `json:"nonce"`
}

// ProcessMessageRequest deliver a relay proof
type ProcessMessageRequest struct {
	Proof string `json:"proof" binding:"required"` // hex
}

// ProcessResponse inbound transfer redeemed
type ProcessResponse struct {
	Success     bool   `json:"success"`
	TransferID  string `json:"transfer_id"`
	Recipient   string `json:"recipient"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	SourceChain uint32 `json:"source_chain"`
	Sequence    uint64 `json:"sequence"`
	Minted      bool   `json:"minted"`
}

// SetContractsRequest replaces the configured contracts; empty fields clear them
type SetContractsRequest struct {
	Token string `json:"token"`
	NFT   string `json:"nft"`
	Relay string `json:"relay"`
}

// SetChainMappingRequest maps a local chain id to its relay-network id
type SetChainMappingRequest struct {
	ExternalChainID uint16 `json:"external_chain_id" binding:"required"`
}

// SetChainEmitterRequest pins the trusted emitter of a chain; empty clears the pin
type SetChainEmitterRequest struct {
	Emitter string `json:"emitter"`
}

// SetConsistencyLevelRequest finality requested for outbound messages
type SetConsistencyLevelRequest struct {
	Level *uint8 `json:"level" binding:"required"`
}

// EmergencyWithdrawRequest move fungible assets out of custody
type EmergencyWithdrawRequest struct {
	Asset  string `json:"asset" binding:"required"`
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// EmergencyWithdrawNFTRequest move one custodied token out of custody
type EmergencyWithdrawNFTRequest struct {
	TokenID string `json:"token_id" binding:"required"`
	To      string `json:"to" binding:"required"`
}

// RoleRequest grant or revoke a capability
type RoleRequest struct {
	Account string `json:"account" binding:"required"`
	Role    string `json:"role" binding:"required"` // admin | relayer
}
