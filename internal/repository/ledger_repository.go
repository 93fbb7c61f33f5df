package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go-bridge/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientOutstanding = errors.New("insufficient outstanding amount")
	ErrInvalidAmount           = errors.New("invalid amount")
)

// LedgerRepository is the local asset ledger the custodians move value on
type LedgerRepository interface {
	// fungible
	BalanceOf(ctx context.Context, asset, account string) (*big.Int, error)
	Credit(ctx context.Context, asset, account string, amount *big.Int) error
	Debit(ctx context.Context, asset, account string, amount *big.Int) error

	// non-fungible
	GetToken(ctx context.Context, asset string, tokenID *big.Int) (*models.TokenOwnership, error)
	CreateToken(ctx context.Context, token *models.TokenOwnership) error
	SetTokenOwner(ctx context.Context, asset string, tokenID *big.Int, owner string) error

	// per-chain accounting of locked value
	Outstanding(ctx context.Context, asset string, chain uint16) (*big.Int, error)
	AddOutstanding(ctx context.Context, asset string, chain uint16, amount *big.Int) error
	SubOutstanding(ctx context.Context, asset string, chain uint16, amount *big.Int) error
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new LedgerRepository instance
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt stored amount %q", s)
	}
	return v, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r *ledgerRepository) loadBalance(ctx context.Context, asset, account string) (*models.AccountBalance, error) {
	var row models.AccountBalance
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ? AND account = ?", asset, account).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ledgerRepository) BalanceOf(ctx context.Context, asset, account string) (*big.Int, error) {
	row, err := r.loadBalance(ctx, asset, account)
	if IsNotFound(err) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(row.Amount)
}

func (r *ledgerRepository) Credit(ctx context.Context, asset, account string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	row, err := r.loadBalance(ctx, asset, account)
	if IsNotFound(err) {
		return r.db.WithContext(ctx).Create(&models.AccountBalance{
			Asset:   asset,
			Account: account,
			Amount:  amount.String(),
		}).Error
	}
	if err != nil {
		return err
	}
	current, err := parseAmount(row.Amount)
	if err != nil {
		return err
	}
	return r.saveBalance(ctx, row, current.Add(current, amount))
}

func (r *ledgerRepository) Debit(ctx context.Context, asset, account string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	row, err := r.loadBalance(ctx, asset, account)
	if IsNotFound(err) {
		return ErrInsufficientBalance
	}
	if err != nil {
		return err
	}
	current, err := parseAmount(row.Amount)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return r.saveBalance(ctx, row, current.Sub(current, amount))
}

func (r *ledgerRepository) saveBalance(ctx context.Context, row *models.AccountBalance, amount *big.Int) error {
	return r.db.WithContext(ctx).Model(row).Updates(map[string]interface{}{
		"amount":     amount.String(),
		"updated_at": time.Now(),
	}).Error
}

func (r *ledgerRepository) GetToken(ctx context.Context, asset string, tokenID *big.Int) (*models.TokenOwnership, error) {
	var token models.TokenOwnership
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ? AND token_id = ?", asset, tokenID.String()).
		First(&token).Error
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *ledgerRepository) CreateToken(ctx context.Context, token *models.TokenOwnership) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *ledgerRepository) SetTokenOwner(ctx context.Context, asset string, tokenID *big.Int, owner string) error {
	result := r.db.WithContext(ctx).Model(&models.TokenOwnership{}).
		Where("asset = ? AND token_id = ?", asset, tokenID.String()).
		Updates(map[string]interface{}{"owner": owner, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ledgerRepository) loadOutstanding(ctx context.Context, asset string, chain uint16) (*models.OutstandingTransfer, error) {
	var row models.OutstandingTransfer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ? AND external_chain_id = ?", asset, chain).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ledgerRepository) Outstanding(ctx context.Context, asset string, chain uint16) (*big.Int, error) {
	row, err := r.loadOutstanding(ctx, asset, chain)
	if IsNotFound(err) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(row.Amount)
}

func (r *ledgerRepository) AddOutstanding(ctx context.Context, asset string, chain uint16, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	row, err := r.loadOutstanding(ctx, asset, chain)
	if IsNotFound(err) {
		return r.db.WithContext(ctx).Create(&models.OutstandingTransfer{
			Asset:           asset,
			ExternalChainID: chain,
			Amount:          amount.String(),
		}).Error
	}
	if err != nil {
		return err
	}
	current, err := parseAmount(row.Amount)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(row).Updates(map[string]interface{}{
		"amount":     current.Add(current, amount).String(),
		"updated_at": time.Now(),
	}).Error
}

func (r *ledgerRepository) SubOutstanding(ctx context.Context, asset string, chain uint16, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	row, err := r.loadOutstanding(ctx, asset, chain)
	if IsNotFound(err) {
		return ErrInsufficientOutstanding
	}
	if err != nil {
		return err
	}
	current, err := parseAmount(row.Amount)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientOutstanding
	}
	return r.db.WithContext(ctx).Model(row).Updates(map[string]interface{}{
		"amount":     current.Sub(current, amount).String(),
		"updated_at": time.Now(),
	}).Error
}
