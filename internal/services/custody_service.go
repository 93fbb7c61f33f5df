package services

import (
	"context"
	"fmt"
	"math/big"

	"go-bridge/internal/config"
	"go-bridge/internal/models"
	"go-bridge/internal/repository"
	"go-bridge/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CustodyService moves assets between accounts and the bridge custody account on the local ledger.
// Every method runs on the caller's transaction; callers hold the asset's keyed lock.
type CustodyService struct {
	custody common.Address
	policy  string
	logger  *logrus.Logger
}

// NewCustodyService creates a CustodyService. policy is config.ReleasePolicyTransfer or config.ReleasePolicyMint.
func NewCustodyService(custody common.Address, policy string, logger *logrus.Logger) *CustodyService {
	if policy == "" {
		policy = config.ReleasePolicyTransfer
	}
	return &CustodyService{custody: custody, policy: policy, logger: logger}
}

// Account the custody account
func (s *CustodyService) Account() common.Address {
	return s.custody
}

// Policy fungible release policy in force
func (s *CustodyService) Policy() string {
	return s.policy
}

func transferFailed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", types.ErrAssetTransferFailed, fmt.Sprintf(format, args...))
}

func requireAsset(asset common.Address, what string) error {
	if asset == (common.Address{}) {
		return transferFailed("%s contract not configured", what)
	}
	return nil
}

// LockFungible debits from into custody and books the amount as outstanding towards targetChain
func (s *CustodyService) LockFungible(ctx context.Context, tx *gorm.DB, asset, from common.Address, amount *big.Int, targetChain uint16) error {
	if err := requireAsset(asset, "token"); err != nil {
		return err
	}
	ledger := repository.NewLedgerRepository(tx)
	if err := ledger.Debit(ctx, asset.Hex(), from.Hex(), amount); err != nil {
		return transferFailed("lock %s from %s: %v", amount, from.Hex(), err)
	}
	if err := ledger.Credit(ctx, asset.Hex(), s.custody.Hex(), amount); err != nil {
		return transferFailed("credit custody: %v", err)
	}
	if err := ledger.AddOutstanding(ctx, asset.Hex(), targetChain, amount); err != nil {
		return transferFailed("book outstanding: %v", err)
	}
	return nil
}

// UnlockFungible reverses LockFungible for a lock whose message never left the bridge
func (s *CustodyService) UnlockFungible(ctx context.Context, tx *gorm.DB, asset, to common.Address, amount *big.Int, targetChain uint16) error {
	ledger := repository.NewLedgerRepository(tx)
	if err := ledger.SubOutstanding(ctx, asset.Hex(), targetChain, amount); err != nil {
		return transferFailed("unbook outstanding: %v", err)
	}
	if err := ledger.Debit(ctx, asset.Hex(), s.custody.Hex(), amount); err != nil {
		return transferFailed("debit custody: %v", err)
	}
	if err := ledger.Credit(ctx, asset.Hex(), to.Hex(), amount); err != nil {
		return transferFailed("refund %s: %v", to.Hex(), err)
	}
	return nil
}

// ReleaseFungible pays to. Under the transfer policy the amount leaves custody and is drawn
// from what was locked towards sourceChain; under the mint policy it is credited directly.
func (s *CustodyService) ReleaseFungible(ctx context.Context, tx *gorm.DB, asset, to common.Address, amount *big.Int, sourceChain uint16) error {
	if err := requireAsset(asset, "token"); err != nil {
		return err
	}
	ledger := repository.NewLedgerRepository(tx)

	if s.policy == config.ReleasePolicyMint {
		if err := ledger.Credit(ctx, asset.Hex(), to.Hex(), amount); err != nil {
			return transferFailed("mint %s to %s: %v", amount, to.Hex(), err)
		}
		return nil
	}

	if err := ledger.SubOutstanding(ctx, asset.Hex(), sourceChain, amount); err != nil {
		return transferFailed("release %s for chain %d: %v", amount, sourceChain, err)
	}
	if err := ledger.Debit(ctx, asset.Hex(), s.custody.Hex(), amount); err != nil {
		return transferFailed("debit custody: %v", err)
	}
	if err := ledger.Credit(ctx, asset.Hex(), to.Hex(), amount); err != nil {
		return transferFailed("credit %s: %v", to.Hex(), err)
	}
	return nil
}

// LockNFT moves tokenID from its owner into custody and returns the token row for its metadata
func (s *CustodyService) LockNFT(ctx context.Context, tx *gorm.DB, asset, from common.Address, tokenID *big.Int) (*models.TokenOwnership, error) {
	if err := requireAsset(asset, "nft"); err != nil {
		return nil, err
	}
	ledger := repository.NewLedgerRepository(tx)
	token, err := ledger.GetToken(ctx, asset.Hex(), tokenID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, transferFailed("token %s does not exist", tokenID)
	}
	if token.Owner == s.custody.Hex() {
		return nil, transferFailed("token %s already in bridge custody", tokenID)
	}
	if token.Owner != from.Hex() {
		return nil, transferFailed("token %s not owned by %s", tokenID, from.Hex())
	}
	if err := ledger.SetTokenOwner(ctx, asset.Hex(), tokenID, s.custody.Hex()); err != nil {
		return nil, transferFailed("move token %s into custody: %v", tokenID, err)
	}
	token.Owner = s.custody.Hex()
	return token, nil
}

// UnlockNFT hands a token locked by LockNFT back to its previous owner
func (s *CustodyService) UnlockNFT(ctx context.Context, tx *gorm.DB, asset, to common.Address, tokenID *big.Int) error {
	ledger := repository.NewLedgerRepository(tx)
	token, err := ledger.GetToken(ctx, asset.Hex(), tokenID)
	if err != nil {
		return err
	}
	if token == nil || token.Owner != s.custody.Hex() {
		return transferFailed("token %s not in custody", tokenID)
	}
	if err := ledger.SetTokenOwner(ctx, asset.Hex(), tokenID, to.Hex()); err != nil {
		return transferFailed("return token %s: %v", tokenID, err)
	}
	return nil
}

// ReleaseNFT hands tokenID to to. A token held in custody goes back out; an unknown
// identifier is minted as a wrapped token carrying metadata. Anything else fails.
func (s *CustodyService) ReleaseNFT(ctx context.Context, tx *gorm.DB, asset, to common.Address, tokenID *big.Int, metadata types.TokenMetadata, sourceChain uint16) (minted bool, err error) {
	if err := requireAsset(asset, "nft"); err != nil {
		return false, err
	}
	ledger := repository.NewLedgerRepository(tx)
	token, err := ledger.GetToken(ctx, asset.Hex(), tokenID)
	if err != nil {
		return false, err
	}

	if token == nil {
		err := ledger.CreateToken(ctx, &models.TokenOwnership{
			Asset:       asset.Hex(),
			TokenID:     tokenID.String(),
			Owner:       to.Hex(),
			Wrapped:     true,
			OriginChain: sourceChain,
			Name:        metadata.Name,
			Symbol:      metadata.Symbol,
			URI:         metadata.URI,
		})
		if err != nil {
			return false, transferFailed("mint wrapped token %s: %v", tokenID, err)
		}
		s.logger.WithFields(logrus.Fields{
			"asset":        asset.Hex(),
			"token_id":     tokenID.String(),
			"origin_chain": sourceChain,
		}).Debug("minted wrapped token")
		return true, nil
	}

	if token.Owner != s.custody.Hex() {
		return false, transferFailed("token %s held by %s, not in custody", tokenID, token.Owner)
	}
	if err := ledger.SetTokenOwner(ctx, asset.Hex(), tokenID, to.Hex()); err != nil {
		return false, transferFailed("release token %s: %v", tokenID, err)
	}
	return false, nil
}

// EmergencyWithdraw moves amount out of custody to to, bypassing outstanding accounting.
// Returns the custody balance before and after.
func (s *CustodyService) EmergencyWithdraw(ctx context.Context, tx *gorm.DB, asset, to common.Address, amount *big.Int) (before, after *big.Int, err error) {
	if asset == (common.Address{}) {
		return nil, nil, transferFailed("asset required")
	}
	ledger := repository.NewLedgerRepository(tx)
	before, err = ledger.BalanceOf(ctx, asset.Hex(), s.custody.Hex())
	if err != nil {
		return nil, nil, err
	}
	if err := ledger.Debit(ctx, asset.Hex(), s.custody.Hex(), amount); err != nil {
		return nil, nil, transferFailed("withdraw %s from custody: %v", amount, err)
	}
	if err := ledger.Credit(ctx, asset.Hex(), to.Hex(), amount); err != nil {
		return nil, nil, transferFailed("credit %s: %v", to.Hex(), err)
	}
	return before, new(big.Int).Sub(before, amount), nil
}

// EmergencyWithdrawNFT moves a custodied token to to
func (s *CustodyService) EmergencyWithdrawNFT(ctx context.Context, tx *gorm.DB, asset common.Address, tokenID *big.Int, to common.Address) error {
	if err := requireAsset(asset, "nft"); err != nil {
		return err
	}
	ledger := repository.NewLedgerRepository(tx)
	token, err := ledger.GetToken(ctx, asset.Hex(), tokenID)
	if err != nil {
		return err
	}
	if token == nil || token.Owner != s.custody.Hex() {
		return transferFailed("token %s not in custody", tokenID)
	}
	if err := ledger.SetTokenOwner(ctx, asset.Hex(), tokenID, to.Hex()); err != nil {
		return transferFailed("withdraw token %s: %v", tokenID, err)
	}
	return nil
}
