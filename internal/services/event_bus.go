package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go-bridge/internal/models"
	"go-bridge/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventType bridge event names
type EventType string

const (
	EventLocked                  EventType = "Locked"
	EventPublished               EventType = "Published"
	EventReleased                EventType = "Released"
	EventChainMappingUpdated     EventType = "ChainMappingUpdated"
	EventChainEmitterUpdated     EventType = "ChainEmitterUpdated"
	EventContractsUpdated        EventType = "ContractsUpdated"
	EventPauseToggled            EventType = "PauseToggled"
	EventConsistencyLevelUpdated EventType = "ConsistencyLevelUpdated"
	EventEmergencyWithdrawal     EventType = "EmergencyWithdrawal"
	EventRoleUpdated             EventType = "RoleUpdated"
)

// Event a committed bridge event
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Actor     string      `json:"actor,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// LockedEvent asset moved into custody for an outbound transfer
type LockedEvent struct {
	TransferID      string `json:"transfer_id"`
	Kind            string `json:"kind"`
	Sender          string `json:"sender"`
	Asset           string `json:"asset"`
	AmountOrTokenID string `json:"amount_or_token_id"`
	TargetChain     uint32 `json:"target_chain"`
	TargetExternal  uint16 `json:"target_external_chain"`
	Recipient       string `json:"recipient"`
}

// PublishedEvent payload accepted by the relay network
type PublishedEvent struct {
	TransferID       string `json:"transfer_id"`
	TargetChain      uint32 `json:"target_chain"`
	Sequence         uint64 `json:"sequence"`
	Nonce            uint32 `json:"nonce"`
	ConsistencyLevel uint8  `json:"consistency_level"`
}

// ReleasedEvent asset released or minted for an inbound transfer
type ReleasedEvent struct {
	TransferID      string `json:"transfer_id"`
	Kind            string `json:"kind"`
	Recipient       string `json:"recipient"`
	Asset           string `json:"asset"`
	AmountOrTokenID string `json:"amount_or_token_id"`
	SourceChain     uint32 `json:"source_chain"`
	Emitter         string `json:"emitter"`
	Sequence        uint64 `json:"sequence"`
	Minted          bool   `json:"minted"`
}

// ChainMappingUpdatedEvent both directions before and after a remap. Zero means no entry.
type ChainMappingUpdatedEvent struct {
	LocalChainID       uint32 `json:"local_chain_id"`
	ExternalChainID    uint16 `json:"external_chain_id"`
	OldExternalChainID uint16 `json:"old_external_chain_id"`
	OldLocalChainID    uint32 `json:"old_local_chain_id"`
}

// ChainEmitterUpdatedEvent trusted emitter change for one chain
type ChainEmitterUpdatedEvent struct {
	LocalChainID uint32 `json:"local_chain_id"`
	OldEmitter   string `json:"old_emitter"`
	NewEmitter   string `json:"new_emitter"`
}

// Contracts addresses the bridge acts on
type Contracts struct {
	Token string `json:"token"`
	NFT   string `json:"nft"`
	Relay string `json:"relay"`
}

// ContractsUpdatedEvent setContracts audit record
type ContractsUpdatedEvent struct {
	Old Contracts `json:"old"`
	New Contracts `json:"new"`
}

// PauseToggledEvent pause flag change
type PauseToggledEvent struct {
	OldPaused bool `json:"old_paused"`
	Paused    bool `json:"paused"`
}

// ConsistencyLevelUpdatedEvent finality level change
type ConsistencyLevelUpdatedEvent struct {
	OldLevel uint8 `json:"old_level"`
	NewLevel uint8 `json:"new_level"`
}

// EmergencyWithdrawalEvent admin moved assets out of custody
type EmergencyWithdrawalEvent struct {
	Kind            string `json:"kind"`
	Asset           string `json:"asset"`
	To              string `json:"to"`
	AmountOrTokenID string `json:"amount_or_token_id"`
	OldCustody      string `json:"old_custody"` // custody balance, or token owner
	NewCustody      string `json:"new_custody"`
}

// RoleUpdatedEvent capability granted or revoked
type RoleUpdatedEvent struct {
	Account    string `json:"account"`
	Role       string `json:"role"`
	OldGranted bool   `json:"old_granted"`
	Granted    bool   `json:"granted"`
}

// EventHandler receives committed events
type EventHandler func(*Event)

// EventBus records events in the audit log inside a transaction and fans them out once committed
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	logger   *logrus.Logger
}

// NewEventBus creates an EventBus
func NewEventBus(logger *logrus.Logger) *EventBus {
	return &EventBus{handlers: make(map[string]EventHandler), logger: logger}
}

// Subscribe registers handler under name, replacing any previous handler with that name
func (b *EventBus) Subscribe(name string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = handler
}

// Unsubscribe removes a handler
func (b *EventBus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, name)
}

// Record appends an event to the audit log through tx and returns it for dispatch after commit
func (b *EventBus) Record(ctx context.Context, tx *gorm.DB, eventType EventType, actor string, data interface{}) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	evt := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Actor:     actor,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	err = repository.NewBridgeEventRepository(tx).Create(ctx, &models.BridgeEvent{
		EventID:   evt.ID,
		Type:      string(eventType),
		Actor:     actor,
		Payload:   string(payload),
		CreatedAt: evt.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("record %s event: %w", eventType, err)
	}
	return evt, nil
}

// Dispatch delivers committed events to every handler. A panicking handler is logged and skipped.
func (b *EventBus) Dispatch(events ...*Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, evt := range events {
		b.logger.WithFields(logrus.Fields{
			"event_id": evt.ID,
			"type":     evt.Type,
			"actor":    evt.Actor,
		}).Info("📣 Bridge event")
		for _, h := range handlers {
			b.deliver(h, evt)
		}
	}
}

func (b *EventBus) deliver(h EventHandler, evt *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("type", evt.Type).Errorf("event handler panic: %v", r)
		}
	}()
	h(evt)
}
