package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go-bridge/internal/metrics"
	"go-bridge/internal/models"
	"go-bridge/internal/repository"
	"go-bridge/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SystemActor actor recorded for bootstrap changes
const SystemActor = "system"

func contractsOf(setting models.BridgeSetting) Contracts {
	return Contracts{Token: setting.TokenContract, NFT: setting.NFTContract, Relay: setting.RelayContract}
}

// adminTx runs fn for an authorized admin inside one transaction, serialized with every other
// admin operation. fn may return an updated settings row to persist and cache.
func (s *BridgeService) adminTx(ctx context.Context, caller common.Address, operation string,
	fn func(tx *gorm.DB, setting *models.BridgeSetting) ([]*Event, bool, error)) error {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	isAdmin, err := repository.NewRoleRepository(s.db).HasRole(ctx, caller.Hex(), models.RoleAdmin)
	if err != nil {
		return s.fail(operation, err)
	}
	if !isAdmin {
		return s.fail(operation, fmt.Errorf("%w: %s is not an admin", types.ErrNotAuthorized, caller.Hex()))
	}
	return s.runAdmin(ctx, caller.Hex(), operation, fn)
}

func (s *BridgeService) runAdmin(ctx context.Context, actor, operation string,
	fn func(tx *gorm.DB, setting *models.BridgeSetting) ([]*Event, bool, error)) error {
	setting := s.currentSettings()
	var events []*Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			changed bool
			err     error
		)
		events, changed, err = fn(tx, &setting)
		if err != nil {
			return err
		}
		if changed {
			setting.UpdatedBy = actor
			return repository.NewBridgeSettingRepository(tx).Save(ctx, &setting)
		}
		return nil
	})
	if err != nil {
		return s.fail(operation, err)
	}
	s.storeSettings(setting)
	if setting.Paused {
		metrics.BridgePaused.Set(1)
	} else {
		metrics.BridgePaused.Set(0)
	}

	s.logger.WithFields(logrus.Fields{
		"operation": operation,
		"actor":     actor,
	}).Info("🛠️ Admin operation applied")
	s.bus.Dispatch(events...)
	return nil
}

func checkContract(field, value string) error {
	if value != "" && !common.IsHexAddress(value) {
		return fmt.Errorf("%w: %s contract %q is not an address", types.ErrInvalidTarget, field, value)
	}
	return nil
}

func normalizeContract(value string) string {
	if value == "" {
		return ""
	}
	return common.HexToAddress(value).Hex()
}

// SetContracts replaces the token, NFT and relay contract addresses
func (s *BridgeService) SetContracts(ctx context.Context, caller common.Address, contracts Contracts) error {
	for field, value := range map[string]string{"token": contracts.Token, "nft": contracts.NFT, "relay": contracts.Relay} {
		if err := checkContract(field, value); err != nil {
			return s.fail("set_contracts", err)
		}
	}
	return s.adminTx(ctx, caller, "set_contracts", func(tx *gorm.DB, setting *models.BridgeSetting) ([]*Event, bool, error) {
		old := contractsOf(*setting)
		setting.TokenContract = normalizeContract(contracts.Token)
		setting.NFTContract = normalizeContract(contracts.NFT)
		setting.RelayContract = normalizeContract(contracts.Relay)
		evt, err := s.bus.Record(ctx, tx, EventContractsUpdated, caller.Hex(), &ContractsUpdatedEvent{
			Old: old,
			New: contractsOf(*setting),
		})
		if err != nil {
			return nil, false, err
		}
		return []*Event{evt}, true, nil
	})
}

// SetChainMapping maps localID to externalID in both directions
func (s *BridgeService) SetChainMapping(ctx context.Context, caller common.Address, localID uint32, externalID uint16) error {
	return s.adminTx(ctx, caller, "set_chain_mapping", func(tx *gorm.DB, _ *models.BridgeSetting) ([]*Event, bool, error) {
		change, err := s.registry.SetMapping(ctx, tx, localID, externalID, caller.Hex())
		if err != nil {
			return nil, false, err
		}
		evt, err := s.bus.Record(ctx, tx, EventChainMappingUpdated, caller.Hex(), change)
		if err != nil {
			return nil, false, err
		}
		return []*Event{evt}, false, nil
	})
}

// SetChainEmitter pins the bridge emitter trusted for a mapped chain; empty clears it
func (s *BridgeService) SetChainEmitter(ctx context.Context, caller common.Address, localID uint32, emitter string) error {
	return s.adminTx(ctx, caller, "set_chain_emitter", func(tx *gorm.DB, _ *models.BridgeSetting) ([]*Event, bool, error) {
		change, err := s.registry.SetEmitter(ctx, tx, localID, emitter, caller.Hex())
		if err != nil {
			return nil, false, err
		}
		evt, err := s.bus.Record(ctx, tx, EventChainEmitterUpdated, caller.Hex(), change)
		if err != nil {
			return nil, false, err
		}
		return []*Event{evt}, false, nil
	})
}

// SetConsistencyLevel finality level requested on future publishes
func (s *BridgeService) SetConsistencyLevel(ctx context.Context, caller common.Address, level uint8) error {
	return s.adminTx(ctx, caller, "set_consistency_level", func(tx *gorm.DB, setting *models.BridgeSetting) ([]*Event, bool, error) {
		old := setting.ConsistencyLevel
		setting.ConsistencyLevel = level
		evt, err := s.bus.Record(ctx, tx, EventConsistencyLevelUpdated, caller.Hex(), &ConsistencyLevelUpdatedEvent{
			OldLevel: old,
			NewLevel: level,
		})
		if err != nil {
			return nil, false, err
		}
		return []*Event{evt}, true, nil
	})
}

// Pause stops every asset-moving operation
func (s *BridgeService) Pause(ctx context.Context, caller common.Address) error {
	return s.setPaused(ctx, caller, true)
}

// Unpause resumes asset-moving operations
func (s *BridgeService) Unpause(ctx context.Context, caller common.Address) error {
	return s.setPaused(ctx, caller, false)
}

func (s *BridgeService) setPaused(ctx context.Context, caller common.Address, paused bool) error {
	operation := "unpause"
	if paused {
		operation = "pause"
	}
	return s.adminTx(ctx, caller, operation, func(tx *gorm.DB, setting *models.BridgeSetting) ([]*Event, bool, error) {
		old := setting.Paused
		setting.Paused = paused
		evt, err := s.bus.Record(ctx, tx, EventPauseToggled, caller.Hex(), &PauseToggledEvent{
			OldPaused: old,
			Paused:    paused,
		})
		if err != nil {
			return nil, false, err
		}
		return []*Event{evt}, true, nil
	})
}

// EmergencyWithdraw moves amount of asset out of custody to to
func (s *BridgeService) EmergencyWithdraw(ctx context.Context, caller common.Address, asset, to common.Address, amount *big.Int) error {
	unlock := s.locks.Lock(fungibleKey(asset))
	defer unlock()

	return s.adminTx(ctx, caller, "emergency_withdraw", func(tx *gorm.DB, _ *models.BridgeSetting) ([]*Event, bool, error) {
		before, after, err := s.custody.EmergencyWithdraw(ctx, tx, asset, to, amount)
		if err != nil {
			return nil, false, err
		}
		evt, err := s.bus.Record(ctx, tx, EventEmergencyWithdrawal, caller.Hex(), &EmergencyWithdrawalEvent{
			Kind:            types.AssetKindFungible.String(),
			Asset:           asset.Hex(),
			To:              to.Hex(),
			AmountOrTokenID: amount.String(),
			OldCustody:      before.String(),
			NewCustody:      after.String(),
		})
		if err != nil {
			return nil, false, err
		}
		return []*Event{evt}, false, nil
	})
}

// EmergencyWithdrawNFT moves a custodied token of the configured collection to to
func (s *BridgeService) EmergencyWithdrawNFT(ctx context.Context, caller common.Address, tokenID *big.Int, to common.Address) error {
	if tokenID == nil {
		return s.fail("emergency_withdraw_nft", fmt.Errorf("%w: token id required", types.ErrAssetTransferFailed))
	}
	asset := common.HexToAddress(s.currentSettings().NFTContract)
	unlock := s.locks.Lock(nftKey(asset, tokenID))
	defer unlock()

	return s.adminTx(ctx, caller, "emergency_withdraw_nft", func(tx *gorm.DB, _ *models.BridgeSetting) ([]*Event, bool, error) {
		if err := s.custody.EmergencyWithdrawNFT(ctx, tx, asset, tokenID, to); err != nil {
			return nil, false, err
		}
		evt, err := s.bus.Record(ctx, tx, EventEmergencyWithdrawal, caller.Hex(), &EmergencyWithdrawalEvent{
			Kind:            types.AssetKindNonFungible.String(),
			Asset:           asset.Hex(),
			To:              to.Hex(),
			AmountOrTokenID: tokenID.String(),
			OldCustody:      s.custody.Account().Hex(),
			NewCustody:      to.Hex(),
		})
		if err != nil {
			return nil, false, err
		}
		return []*Event{evt}, false, nil
	})
}

func parseRole(role string) (models.Role, error) {
	switch models.Role(role) {
	case models.RoleAdmin, models.RoleRelayer:
		return models.Role(role), nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", types.ErrNotAuthorized, role)
	}
}

// GrantRole gives account a capability
func (s *BridgeService) GrantRole(ctx context.Context, caller, account common.Address, role string) error {
	r, err := parseRole(role)
	if err != nil {
		return s.fail("grant_role", err)
	}
	return s.adminTx(ctx, caller, "grant_role", func(tx *gorm.DB, _ *models.BridgeSetting) ([]*Event, bool, error) {
		return s.grant(ctx, tx, caller.Hex(), account, r)
	})
}

func (s *BridgeService) grant(ctx context.Context, tx *gorm.DB, actor string, account common.Address, role models.Role) ([]*Event, bool, error) {
	added, err := repository.NewRoleRepository(tx).Grant(ctx, account.Hex(), role, actor)
	if err != nil {
		return nil, false, err
	}
	if !added {
		return nil, false, nil
	}
	evt, err := s.bus.Record(ctx, tx, EventRoleUpdated, actor, &RoleUpdatedEvent{
		Account:    account.Hex(),
		Role:       string(role),
		OldGranted: false,
		Granted:    true,
	})
	if err != nil {
		return nil, false, err
	}
	return []*Event{evt}, false, nil
}

// RevokeRole removes a capability. An admin cannot revoke its own admin role.
func (s *BridgeService) RevokeRole(ctx context.Context, caller, account common.Address, role string) error {
	r, err := parseRole(role)
	if err != nil {
		return s.fail("revoke_role", err)
	}
	if r == models.RoleAdmin && account == caller {
		return s.fail("revoke_role", fmt.Errorf("%w: cannot revoke own admin role", types.ErrNotAuthorized))
	}
	return s.adminTx(ctx, caller, "revoke_role", func(tx *gorm.DB, _ *models.BridgeSetting) ([]*Event, bool, error) {
		removed, err := repository.NewRoleRepository(tx).Revoke(ctx, account.Hex(), r)
		if err != nil || !removed {
			return nil, false, err
		}
		evt, err := s.bus.Record(ctx, tx, EventRoleUpdated, caller.Hex(), &RoleUpdatedEvent{
			Account:    account.Hex(),
			Role:       string(r),
			OldGranted: true,
			Granted:    false,
		})
		if err != nil {
			return nil, false, err
		}
		return []*Event{evt}, false, nil
	})
}

// Bootstrap grants the configured roles and maps this chain to its relay id when no mapping exists yet
func (s *BridgeService) Bootstrap(ctx context.Context, admins, relayers []common.Address) error {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	return s.runAdmin(ctx, SystemActor, "bootstrap", func(tx *gorm.DB, _ *models.BridgeSetting) ([]*Event, bool, error) {
		var events []*Event
		for _, grant := range []struct {
			accounts []common.Address
			role     models.Role
		}{{admins, models.RoleAdmin}, {relayers, models.RoleRelayer}} {
			for _, account := range grant.accounts {
				evts, _, err := s.grant(ctx, tx, SystemActor, account, grant.role)
				if err != nil {
					return nil, false, err
				}
				events = append(events, evts...)
			}
		}

		_, err := s.registry.ResolveExternal(ctx, tx, s.opts.LocalChainID)
		if err == nil {
			return events, false, nil
		}
		if !errors.Is(err, types.ErrUnknownChain) {
			return nil, false, err
		}
		change, err := s.registry.SetMapping(ctx, tx, s.opts.LocalChainID, s.opts.ExternalChainID, SystemActor)
		if err != nil {
			return nil, false, err
		}
		evt, err := s.bus.Record(ctx, tx, EventChainMappingUpdated, SystemActor, change)
		if err != nil {
			return nil, false, err
		}
		return append(events, evt), false, nil
	})
}
