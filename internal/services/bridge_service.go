package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go-bridge/internal/clients"
	"go-bridge/internal/metrics"
	"go-bridge/internal/models"
	"go-bridge/internal/repository"
	"go-bridge/internal/types"
	"go-bridge/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BridgeOptions deployment parameters of one bridge instance
type BridgeOptions struct {
	LocalChainID    uint32
	ExternalChainID uint16
	Emitter         clients.EmitterAddress
	RelayTimeout    time.Duration
	// Defaults seed the settings row on first start
	Defaults models.BridgeSetting
}

// BridgeService the bridge state machine: lock -> publish outbound, verify -> release inbound
type BridgeService struct {
	db       *gorm.DB
	relay    clients.RelayClient
	registry *ChainRegistry
	custody  *CustodyService
	bus      *EventBus
	locks    *KeyedMutex
	opts     BridgeOptions
	logger   *logrus.Logger

	settingsMu sync.RWMutex
	settings   models.BridgeSetting

	adminMu sync.Mutex
}

// NewBridgeService loads the persisted settings and returns a ready bridge
func NewBridgeService(ctx context.Context, db *gorm.DB, relay clients.RelayClient, registry *ChainRegistry,
	custody *CustodyService, bus *EventBus, opts BridgeOptions, logger *logrus.Logger) (*BridgeService, error) {
	if opts.RelayTimeout <= 0 {
		opts.RelayTimeout = 10 * time.Second
	}
	setting, err := repository.NewBridgeSettingRepository(db).Get(ctx, &opts.Defaults)
	if err != nil {
		return nil, fmt.Errorf("load bridge settings: %w", err)
	}
	s := &BridgeService{
		db:       db,
		relay:    relay,
		registry: registry,
		custody:  custody,
		bus:      bus,
		locks:    NewKeyedMutex(),
		opts:     opts,
		logger:   logger,
		settings: *setting,
	}
	if setting.Paused {
		metrics.BridgePaused.Set(1)
	} else {
		metrics.BridgePaused.Set(0)
	}
	return s, nil
}

// LockResult outcome of an outbound lock
type LockResult struct {
	TransferID string `json:"transfer_id"`
	Sequence   uint64 `json:"sequence"`
	Nonce      uint32 `json:"nonce"`
}

// ProcessResult outcome of an inbound release
type ProcessResult struct {
	TransferID      string         `json:"transfer_id"`
	Recipient       common.Address `json:"recipient"`
	Asset           common.Address `json:"asset"`
	AmountOrTokenID *big.Int       `json:"amount_or_token_id"`
	SourceChain     uint32         `json:"source_chain"`
	Sequence        uint64         `json:"sequence"`
	Minted          bool           `json:"minted"`
}

func (s *BridgeService) currentSettings() models.BridgeSetting {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

func (s *BridgeService) storeSettings(setting models.BridgeSetting) {
	s.settingsMu.Lock()
	s.settings = setting
	s.settingsMu.Unlock()
}

func fungibleKey(asset common.Address) string {
	return "fungible:" + asset.Hex()
}

func nftKey(asset common.Address, tokenID *big.Int) string {
	return fmt.Sprintf("nft:%s:%s", asset.Hex(), tokenID)
}

func messageLockKey(chain uint16, emitter clients.EmitterAddress, sequence uint64) string {
	return fmt.Sprintf("msg:%d:%s:%d", chain, emitter, sequence)
}

func (s *BridgeService) assetFor(kind types.AssetKind, setting models.BridgeSetting) common.Address {
	if kind == types.AssetKindNonFungible {
		return common.HexToAddress(setting.NFTContract)
	}
	return common.HexToAddress(setting.TokenContract)
}

// relayError classifies a relay transport failure
func relayError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", types.ErrRelayTimeout, err)
	}
	return fmt.Errorf("%w: %v", types.ErrRelayUnavailable, err)
}

func (s *BridgeService) publish(ctx context.Context, payload []byte, nonce uint32, level uint8) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RelayTimeout)
	defer cancel()

	start := time.Now()
	seq, err := s.relay.Publish(ctx, payload, nonce, clients.ConsistencyLevel(level))
	metrics.RelayCallDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())
	if err != nil {
		err = relayError(err)
		metrics.RelayCallErrors.WithLabelValues("publish", types.ErrorCode(err)).Inc()
		return 0, err
	}
	return seq, nil
}

func (s *BridgeService) verify(ctx context.Context, proof []byte) (*clients.Verification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RelayTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.relay.Verify(ctx, proof)
	metrics.RelayCallDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	if err != nil {
		err = relayError(err)
		metrics.RelayCallErrors.WithLabelValues("verify", types.ErrorCode(err)).Inc()
		return nil, err
	}
	return result, nil
}

// LockTokens locks amount of the configured token and sends it to recipient on targetChain
func (s *BridgeService) LockTokens(ctx context.Context, caller common.Address, amount *big.Int, targetChain uint32, recipient []byte) (*LockResult, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: amount required", types.ErrAssetTransferFailed)
	}
	return s.lockAndSend(ctx, caller, types.AssetKindFungible, amount, targetChain, recipient)
}

// LockNFT locks tokenID of the configured collection and sends it to recipient on targetChain
func (s *BridgeService) LockNFT(ctx context.Context, caller common.Address, tokenID *big.Int, targetChain uint32, recipient []byte) (*LockResult, error) {
	if tokenID == nil {
		return nil, fmt.Errorf("%w: token id required", types.ErrAssetTransferFailed)
	}
	return s.lockAndSend(ctx, caller, types.AssetKindNonFungible, tokenID, targetChain, recipient)
}

func (s *BridgeService) lockAndSend(ctx context.Context, caller common.Address, kind types.AssetKind, amount *big.Int, targetChain uint32, recipient []byte) (*LockResult, error) {
	setting := s.currentSettings()
	if setting.Paused {
		return nil, s.fail("lock", types.ErrBridgePaused)
	}
	if len(recipient) == 0 {
		return nil, s.fail("lock", types.ErrInvalidRecipient)
	}
	targetExternal, err := s.registry.ResolveExternal(ctx, nil, targetChain)
	if err != nil {
		return nil, s.fail("lock", err)
	}
	if targetChain == s.opts.LocalChainID || targetExternal == s.opts.ExternalChainID {
		return nil, s.fail("lock", fmt.Errorf("%w: chain %d is this chain", types.ErrInvalidTarget, targetChain))
	}

	asset := s.assetFor(kind, setting)
	lockKey := fungibleKey(asset)
	if kind == types.AssetKindNonFungible {
		lockKey = nftKey(asset, amount)
	}
	unlock := s.locks.Lock(lockKey)
	defer unlock()

	// a pause committed while this call waited on the asset lock still applies
	setting = s.currentSettings()
	if setting.Paused {
		return nil, s.fail("lock", types.ErrBridgePaused)
	}

	id := uuid.New()
	record := &models.TransferRecord{
		ID:              id.String(),
		Direction:       models.TransferDirectionOutbound,
		Status:          models.TransferStatusInitiated,
		Kind:            kind.String(),
		Asset:           asset.Hex(),
		AmountOrTokenID: amount.String(),
		Sender:          caller.Hex(),
		Recipient:       utils.FormatRecipient(recipient),
		SourceChain:     s.opts.ExternalChainID,
		TargetChain:     targetExternal,
		Emitter:         s.opts.Emitter.String(),
		Nonce:           binary.BigEndian.Uint32(id[:4]),
	}

	// 1. custody moves and the transfer is booked as locked
	var payload []byte
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var intent *types.TransferIntent
		switch kind {
		case types.AssetKindFungible:
			if err := s.custody.LockFungible(ctx, tx, asset, caller, amount, targetExternal); err != nil {
				return err
			}
			intent = types.NewTokenTransfer(caller, amount, targetExternal, recipient)
		case types.AssetKindNonFungible:
			token, err := s.custody.LockNFT(ctx, tx, asset, caller, amount)
			if err != nil {
				return err
			}
			intent = types.NewNFTTransfer(caller, amount, types.TokenMetadata{
				Name:   token.Name,
				Symbol: token.Symbol,
				URI:    token.URI,
			}, targetExternal, recipient)
		}

		var err error
		if payload, err = types.EncodeTransfer(intent); err != nil {
			return err
		}
		record.Status = models.TransferStatusLocked
		return repository.NewTransferRepository(tx).Create(ctx, record)
	})
	if err != nil {
		return nil, s.fail("lock", err)
	}

	// past this point the outcome no longer depends on the caller's context
	detached := context.WithoutCancel(ctx)

	// 2. publish; a relay failure undoes the lock
	sequence, err := s.publish(detached, payload, record.Nonce, setting.ConsistencyLevel)
	if err != nil {
		s.revertLock(detached, record, kind, asset, caller, amount, err)
		return nil, s.fail("lock", err)
	}

	// 3. the message is out: record it and emit both events
	record.Sequence = &sequence
	record.Status = models.TransferStatusPublished
	var events []*Event
	err = s.db.WithContext(detached).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewTransferRepository(tx).Update(detached, record); err != nil {
			return err
		}
		locked, err := s.bus.Record(detached, tx, EventLocked, caller.Hex(), &LockedEvent{
			TransferID:      record.ID,
			Kind:            kind.String(),
			Sender:          caller.Hex(),
			Asset:           asset.Hex(),
			AmountOrTokenID: amount.String(),
			TargetChain:     targetChain,
			TargetExternal:  targetExternal,
			Recipient:       record.Recipient,
		})
		if err != nil {
			return err
		}
		published, err := s.bus.Record(detached, tx, EventPublished, caller.Hex(), &PublishedEvent{
			TransferID:       record.ID,
			TargetChain:      targetChain,
			Sequence:         sequence,
			Nonce:            record.Nonce,
			ConsistencyLevel: setting.ConsistencyLevel,
		})
		if err != nil {
			return err
		}
		events = []*Event{locked, published}
		return nil
	})
	if err != nil {
		// custody and the relay agree; only the bookkeeping is behind
		s.logger.WithError(err).WithFields(logrus.Fields{
			"transfer_id": record.ID,
			"sequence":    sequence,
		}).Error("❌ Published transfer left in locked state")
	}

	metrics.TransfersTotal.WithLabelValues(string(models.TransferDirectionOutbound), kind.String(), string(record.Status)).Inc()
	s.logger.WithFields(logrus.Fields{
		"transfer_id":  record.ID,
		"kind":         kind.String(),
		"sender":       caller.Hex(),
		"amount":       amount.String(),
		"target_chain": targetChain,
		"sequence":     sequence,
	}).Info("🔒 Asset locked and published")
	s.bus.Dispatch(events...)

	return &LockResult{TransferID: record.ID, Sequence: sequence, Nonce: record.Nonce}, nil
}

// revertLock hands a locked asset back after its message failed to publish and marks the transfer reverted
func (s *BridgeService) revertLock(ctx context.Context, record *models.TransferRecord, kind types.AssetKind,
	asset, sender common.Address, amount *big.Int, cause error) {
	record.Status = models.TransferStatusReverted
	record.Reason = cause.Error()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch kind {
		case types.AssetKindFungible:
			if err := s.custody.UnlockFungible(ctx, tx, asset, sender, amount, record.TargetChain); err != nil {
				return err
			}
		case types.AssetKindNonFungible:
			if err := s.custody.UnlockNFT(ctx, tx, asset, sender, amount); err != nil {
				return err
			}
		}
		return repository.NewTransferRepository(tx).Update(ctx, record)
	})
	if err != nil {
		s.logger.WithError(err).WithField("transfer_id", record.ID).Error("❌ Failed to revert lock, transfer stays locked")
		return
	}
	metrics.TransfersTotal.WithLabelValues(string(record.Direction), record.Kind, string(record.Status)).Inc()
}

// ProcessTokenMessage redeems a verified fungible transfer. Relayer only.
func (s *BridgeService) ProcessTokenMessage(ctx context.Context, caller common.Address, proof []byte) (*ProcessResult, error) {
	return s.processInbound(ctx, caller, proof, types.AssetKindFungible)
}

// ProcessNFTMessage redeems a verified non-fungible transfer. Relayer only.
func (s *BridgeService) ProcessNFTMessage(ctx context.Context, caller common.Address, proof []byte) (*ProcessResult, error) {
	return s.processInbound(ctx, caller, proof, types.AssetKindNonFungible)
}

func (s *BridgeService) processInbound(ctx context.Context, caller common.Address, proof []byte, kind types.AssetKind) (*ProcessResult, error) {
	isRelayer, err := repository.NewRoleRepository(s.db).HasRole(ctx, caller.Hex(), models.RoleRelayer)
	if err != nil {
		return nil, s.fail("process", err)
	}
	if !isRelayer {
		return nil, s.fail("process", fmt.Errorf("%w: %s is not a relayer", types.ErrNotAuthorized, caller.Hex()))
	}
	setting := s.currentSettings()
	if setting.Paused {
		return nil, s.fail("process", types.ErrBridgePaused)
	}

	record := &models.TransferRecord{
		ID:        uuid.NewString(),
		Direction: models.TransferDirectionInbound,
		Status:    models.TransferStatusInitiated,
		Kind:      kind.String(),
		ProofHash: clients.ProofHash(proof),
	}
	reject := func(err error) (*ProcessResult, error) {
		s.recordFailure(ctx, record, models.TransferStatusRejected, err)
		return nil, s.fail("process", err)
	}

	verification, err := s.verify(ctx, proof)
	if err != nil {
		return nil, s.fail("process", err)
	}
	if !verification.Valid || verification.Envelope == nil {
		return reject(fmt.Errorf("%w: %s", types.ErrValidationFailed, verification.Reason))
	}
	env := verification.Envelope
	record.SourceChain = env.EmitterChain
	record.Emitter = env.Emitter.String()
	record.Sequence = &env.Sequence
	record.Nonce = env.Nonce

	intent, err := types.DecodeTransfer(env.Payload)
	if err != nil {
		return reject(err)
	}
	if intent.Kind != kind {
		return reject(fmt.Errorf("%w: %s payload sent to the %s entry point", types.ErrUnsupportedMessageType, intent.Kind, kind))
	}
	asset := s.assetFor(kind, setting)
	record.Asset = asset.Hex()
	record.AmountOrTokenID = intent.Amount.String()
	record.Sender = intent.Sender.Hex()
	record.Recipient = utils.FormatRecipient(intent.Recipient)
	record.TargetChain = intent.TargetChain

	mapping, err := s.registry.ResolveLocal(ctx, nil, env.EmitterChain)
	if err != nil {
		return reject(err)
	}
	if mapping.Emitter != "" && mapping.Emitter != env.Emitter.String() {
		return reject(fmt.Errorf("%w: emitter %s is not the registered bridge on chain %d", types.ErrValidationFailed, env.Emitter, mapping.LocalChainID))
	}
	if intent.TargetChain != s.opts.ExternalChainID {
		return reject(fmt.Errorf("%w: message targets relay chain %d", types.ErrInvalidTarget, intent.TargetChain))
	}
	recipient, err := utils.LocalAccount(intent.Recipient)
	if err != nil {
		return reject(fmt.Errorf("%w: %v", types.ErrInvalidRecipient, err))
	}

	assetKey := fungibleKey(asset)
	if kind == types.AssetKindNonFungible {
		assetKey = nftKey(asset, intent.Amount)
	}
	unlock := s.locks.Lock(messageLockKey(env.EmitterChain, env.Emitter, env.Sequence), assetKey)
	defer unlock()
	if s.currentSettings().Paused {
		return nil, s.fail("process", types.ErrBridgePaused)
	}

	result := &ProcessResult{
		TransferID:      record.ID,
		Recipient:       recipient,
		Asset:           asset,
		AmountOrTokenID: intent.Amount,
		SourceChain:     mapping.LocalChainID,
		Sequence:        env.Sequence,
	}
	var events []*Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		processed := repository.NewProcessedMessageRepository(tx)
		exists, err := processed.Exists(ctx, env.EmitterChain, env.Emitter.String(), env.Sequence)
		if err != nil {
			return err
		}
		if exists {
			return types.ErrAlreadyProcessed
		}
		record.Status = models.TransferStatusVerified

		switch kind {
		case types.AssetKindFungible:
			if err := s.custody.ReleaseFungible(ctx, tx, asset, recipient, intent.Amount, env.EmitterChain); err != nil {
				return err
			}
		case types.AssetKindNonFungible:
			minted, err := s.custody.ReleaseNFT(ctx, tx, asset, recipient, intent.Amount, intent.Metadata, env.EmitterChain)
			if err != nil {
				return err
			}
			result.Minted = minted
		}

		err = processed.Create(ctx, &models.ProcessedMessage{
			SourceChain: env.EmitterChain,
			Emitter:     env.Emitter.String(),
			Sequence:    env.Sequence,
			TransferID:  record.ID,
			ProcessedAt: time.Now(),
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return types.ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}

		record.Status = models.TransferStatusRedeemed
		if err := repository.NewTransferRepository(tx).Create(ctx, record); err != nil {
			return err
		}
		released, err := s.bus.Record(ctx, tx, EventReleased, caller.Hex(), &ReleasedEvent{
			TransferID:      record.ID,
			Kind:            kind.String(),
			Recipient:       recipient.Hex(),
			Asset:           asset.Hex(),
			AmountOrTokenID: intent.Amount.String(),
			SourceChain:     mapping.LocalChainID,
			Emitter:         env.Emitter.String(),
			Sequence:        env.Sequence,
			Minted:          result.Minted,
		})
		if err != nil {
			return err
		}
		events = []*Event{released}
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrAssetTransferFailed) {
			return reject(err)
		}
		return nil, s.fail("process", err)
	}

	metrics.ProcessedMessages.Inc()
	metrics.TransfersTotal.WithLabelValues(string(models.TransferDirectionInbound), kind.String(), string(record.Status)).Inc()
	s.logger.WithFields(logrus.Fields{
		"transfer_id":  record.ID,
		"kind":         kind.String(),
		"recipient":    recipient.Hex(),
		"amount":       intent.Amount.String(),
		"source_chain": mapping.LocalChainID,
		"sequence":     env.Sequence,
		"minted":       result.Minted,
	}).Info("🔓 Asset released")
	s.bus.Dispatch(events...)

	return result, nil
}

// recordFailure persists a terminal failure record after the main transaction rolled back
func (s *BridgeService) recordFailure(ctx context.Context, record *models.TransferRecord, status models.TransferStatus, cause error) {
	record.Status = status
	record.Reason = cause.Error()
	if err := repository.NewTransferRepository(s.db).Create(ctx, record); err != nil {
		s.logger.WithError(err).WithField("transfer_id", record.ID).Error("failed to record transfer failure")
		return
	}
	metrics.TransfersTotal.WithLabelValues(string(record.Direction), record.Kind, string(status)).Inc()
}

// fail counts and logs an operation failure and returns err unchanged
func (s *BridgeService) fail(operation string, err error) error {
	code := types.ErrorCode(err)
	metrics.TransferErrors.WithLabelValues(operation, code).Inc()
	s.logger.WithFields(logrus.Fields{
		"operation": operation,
		"code":      code,
	}).WithError(err).Warn("bridge operation failed")
	return err
}

// GetTransfer returns one transfer record
func (s *BridgeService) GetTransfer(ctx context.Context, id string) (*models.TransferRecord, error) {
	return repository.NewTransferRepository(s.db).GetByID(ctx, id)
}

// ListChains every chain mapping
func (s *BridgeService) ListChains(ctx context.Context) ([]*models.ChainMapping, error) {
	return s.registry.List(ctx)
}

// ListEvents audit log page
func (s *BridgeService) ListEvents(ctx context.Context, afterID uint64, eventType string, limit int) ([]*models.BridgeEvent, error) {
	return repository.NewBridgeEventRepository(s.db).List(ctx, afterID, eventType, limit)
}

// Status snapshot of the bridge
type Status struct {
	Paused           bool      `json:"paused"`
	ConsistencyLevel uint8     `json:"consistency_level"`
	Contracts        Contracts `json:"contracts"`
	LocalChainID     uint32    `json:"local_chain_id"`
	ExternalChainID  uint16    `json:"external_chain_id"`
	Emitter          string    `json:"emitter"`
	Custody          string    `json:"custody"`
	ReleasePolicy    string    `json:"release_policy"`
	ProcessedCount   int64     `json:"processed_count"`
}

// Status reports settings and counters
func (s *BridgeService) Status(ctx context.Context) (*Status, error) {
	setting := s.currentSettings()
	count, err := repository.NewProcessedMessageRepository(s.db).Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Paused:           setting.Paused,
		ConsistencyLevel: setting.ConsistencyLevel,
		Contracts:        contractsOf(setting),
		LocalChainID:     s.opts.LocalChainID,
		ExternalChainID:  s.opts.ExternalChainID,
		Emitter:          s.opts.Emitter.String(),
		Custody:          s.custody.Account().Hex(),
		ReleasePolicy:    s.custody.Policy(),
		ProcessedCount:   count,
	}, nil
}

// BalanceOf fungible ledger balance
func (s *BridgeService) BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error) {
	return repository.NewLedgerRepository(s.db).BalanceOf(ctx, asset.Hex(), account.Hex())
}

// OwnerOf current owner of a token, zero address when it does not exist
func (s *BridgeService) OwnerOf(ctx context.Context, asset common.Address, tokenID *big.Int) (common.Address, error) {
	token, err := repository.NewLedgerRepository(s.db).GetToken(ctx, asset.Hex(), tokenID)
	if err != nil || token == nil {
		return common.Address{}, err
	}
	return common.HexToAddress(token.Owner), nil
}

// Outstanding value locked towards a relay chain and not yet redeemed back
func (s *BridgeService) Outstanding(ctx context.Context, asset common.Address, externalChain uint16) (*big.Int, error) {
	return repository.NewLedgerRepository(s.db).Outstanding(ctx, asset.Hex(), externalChain)
}

// HasRole reports whether account holds role
func (s *BridgeService) HasRole(ctx context.Context, account common.Address, role string) (bool, error) {
	r, err := parseRole(role)
	if err != nil {
		return false, err
	}
	return repository.NewRoleRepository(s.db).HasRole(ctx, account.Hex(), r)
}
