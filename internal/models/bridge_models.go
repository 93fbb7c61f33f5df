package models

import (
	"time"
)

// Role capability names
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleRelayer Role = "relayer"
)

// TransferDirection outbound = lock and publish, inbound = verify and release
type TransferDirection string

const (
	TransferDirectionOutbound TransferDirection = "outbound"
	TransferDirectionInbound  TransferDirection = "inbound"
)

// TransferStatus bridge state machine states
type TransferStatus string

const (
	TransferStatusInitiated TransferStatus = "initiated"
	TransferStatusLocked    TransferStatus = "locked"
	TransferStatusPublished TransferStatus = "published" // terminal on this side; the relay network carries it from here
	TransferStatusVerified  TransferStatus = "verified"
	TransferStatusRedeemed  TransferStatus = "redeemed"

	// failure states
	TransferStatusRejected TransferStatus = "rejected" // inbound proof refused
	TransferStatusReverted TransferStatus = "reverted" // outbound lock rolled back
)

// ChainMapping local chain id <-> relay network chain id. One row serves both directions.
type ChainMapping struct {
	ID              uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	LocalChainID    uint32    `json:"local_chain_id" gorm:"uniqueIndex;not null"`
	ExternalChainID uint16    `json:"external_chain_id" gorm:"uniqueIndex;not null"`
	Emitter         string    `json:"emitter" gorm:"size:66"` // trusted bridge emitter on that chain (32-byte hex), empty = any
	UpdatedBy       string    `json:"updated_by" gorm:"size:42"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ChainMapping) TableName() string {
	return "chain_mappings"
}

// ProcessedMessage idempotency ledger entry, append-only
type ProcessedMessage struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceChain uint16    `json:"source_chain" gorm:"not null;uniqueIndex:idx_processed_message_key"`
	Emitter     string    `json:"emitter" gorm:"size:66;not null;uniqueIndex:idx_processed_message_key"`
	Sequence    uint64    `json:"sequence" gorm:"not null;uniqueIndex:idx_processed_message_key"`
	TransferID  string    `json:"transfer_id" gorm:"size:36;index"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (ProcessedMessage) TableName() string {
	return "processed_messages"
}

// AccountBalance fungible ledger row. Amount is a base-10 uint256.
type AccountBalance struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Asset     string    `json:"asset" gorm:"size:42;not null;uniqueIndex:idx_balance_asset_account"`
	Account   string    `json:"account" gorm:"size:42;not null;uniqueIndex:idx_balance_asset_account"`
	Amount    string    `json:"amount" gorm:"size:80;not null;default:'0'"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AccountBalance) TableName() string {
	return "account_balances"
}

// TokenOwnership non-fungible ledger row; one row per (asset, token id) keeps a single owner
type TokenOwnership struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Asset       string    `json:"asset" gorm:"size:42;not null;uniqueIndex:idx_token_asset_id"`
	TokenID     string    `json:"token_id" gorm:"size:80;not null;uniqueIndex:idx_token_asset_id"`
	Owner       string    `json:"owner" gorm:"size:42;not null;index"`
	Wrapped     bool      `json:"wrapped" gorm:"default:false"`
	OriginChain uint16    `json:"origin_chain"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	URI         string    `json:"uri" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TokenOwnership) TableName() string {
	return "token_ownerships"
}

// OutstandingTransfer fungible value locked towards a chain and not yet redeemed back
type OutstandingTransfer struct {
	ID              uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Asset           string    `json:"asset" gorm:"size:42;not null;uniqueIndex:idx_outstanding_asset_chain"`
	ExternalChainID uint16    `json:"external_chain_id" gorm:"not null;uniqueIndex:idx_outstanding_asset_chain"`
	Amount          string    `json:"amount" gorm:"size:80;not null;default:'0'"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (OutstandingTransfer) TableName() string {
	return "outstanding_transfers"
}

// RoleAssignment grants one capability to one account
type RoleAssignment struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Account   string    `json:"account" gorm:"size:42;not null;uniqueIndex:idx_role_account_role"`
	Role      Role      `json:"role" gorm:"size:16;not null;uniqueIndex:idx_role_account_role"`
	GrantedBy string    `json:"granted_by" gorm:"size:42"`
	CreatedAt time.Time `json:"created_at"`
}

func (RoleAssignment) TableName() string {
	return "role_assignments"
}

// BridgeSettingID the settings table holds exactly one row
const BridgeSettingID = 1

// BridgeSetting admin-managed bridge configuration
type BridgeSetting struct {
	ID               uint64    `json:"id" gorm:"primaryKey"`
	Paused           bool      `json:"paused" gorm:"not null;default:false"`
	ConsistencyLevel uint8     `json:"consistency_level" gorm:"not null"`
	TokenContract    string    `json:"token_contract" gorm:"size:42"`
	NFTContract      string    `json:"nft_contract" gorm:"size:42"`
	RelayContract    string    `json:"relay_contract" gorm:"size:42"`
	UpdatedBy        string    `json:"updated_by" gorm:"size:42"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (BridgeSetting) TableName() string {
	return "bridge_settings"
}

// BridgeEvent audit log of every emitted bridge event
type BridgeEvent struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID   string    `json:"event_id" gorm:"size:36;uniqueIndex;not null"`
	Type      string    `json:"type" gorm:"size:64;not null;index"`
	Actor     string    `json:"actor" gorm:"size:42;index"`
	Payload   string    `json:"payload" gorm:"type:text"` // JSON
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (BridgeEvent) TableName() string {
	return "bridge_events"
}

// TransferRecord lifecycle of one transfer through the bridge
type TransferRecord struct {
	ID              string            `json:"id" gorm:"primaryKey;size:36"`
	Direction       TransferDirection `json:"direction" gorm:"size:16;not null;index"`
	Status          TransferStatus    `json:"status" gorm:"size:16;not null;index"`
	Kind            string            `json:"kind" gorm:"size:16;not null"`
	Asset           string            `json:"asset" gorm:"size:42"`
	AmountOrTokenID string            `json:"amount_or_token_id" gorm:"size:80"`
	Sender          string            `json:"sender" gorm:"size:42;index"`
	Recipient       string            `json:"recipient" gorm:"type:text"` // hex
	SourceChain     uint16            `json:"source_chain"`
	TargetChain     uint16            `json:"target_chain"`
	Emitter         string            `json:"emitter" gorm:"size:66"`
	Sequence        *uint64           `json:"sequence" gorm:"index"`
	Nonce           uint32            `json:"nonce"`
	ProofHash       string            `json:"proof_hash" gorm:"size:66;index"`
	Reason          string            `json:"reason" gorm:"type:text"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (TransferRecord) TableName() string {
	return "transfer_records"
}
