package services

import (
	"context"
	"fmt"

	"go-bridge/internal/clients"
	"go-bridge/internal/models"
	"go-bridge/internal/repository"
	"go-bridge/internal/types"

	"gorm.io/gorm"
)

// ChainRegistry maps local chain ids to relay-network chain ids and back.
// Methods taking a *gorm.DB run on that handle so callers can join an open transaction.
type ChainRegistry struct {
	db *gorm.DB
}

// NewChainRegistry creates a ChainRegistry
func NewChainRegistry(db *gorm.DB) *ChainRegistry {
	return &ChainRegistry{db: db}
}

func (r *ChainRegistry) repo(tx *gorm.DB) repository.ChainMappingRepository {
	if tx == nil {
		tx = r.db
	}
	return repository.NewChainMappingRepository(tx)
}

// ResolveExternal local id -> relay id
func (r *ChainRegistry) ResolveExternal(ctx context.Context, tx *gorm.DB, localID uint32) (uint16, error) {
	mapping, err := r.repo(tx).GetByLocal(ctx, localID)
	if repository.IsNotFound(err) {
		return 0, fmt.Errorf("%w: local chain %d", types.ErrUnknownChain, localID)
	}
	if err != nil {
		return 0, err
	}
	return mapping.ExternalChainID, nil
}

// ResolveLocal relay id -> mapping row (local id and trusted emitter)
func (r *ChainRegistry) ResolveLocal(ctx context.Context, tx *gorm.DB, externalID uint16) (*models.ChainMapping, error) {
	mapping, err := r.repo(tx).GetByExternal(ctx, externalID)
	if repository.IsNotFound(err) {
		return nil, fmt.Errorf("%w: relay chain %d", types.ErrUnknownChain, externalID)
	}
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// SetMapping installs localID <-> externalID. Entries that pointed either id elsewhere are
// dropped so the mapping stays one-to-one; the returned event lists what was replaced.
func (r *ChainRegistry) SetMapping(ctx context.Context, tx *gorm.DB, localID uint32, externalID uint16, actor string) (*ChainMappingUpdatedEvent, error) {
	if externalID == 0 {
		return nil, fmt.Errorf("%w: relay chain id 0", types.ErrInvalidTarget)
	}
	if localID == 0 {
		return nil, fmt.Errorf("%w: local chain id 0", types.ErrInvalidTarget)
	}

	repo := r.repo(tx)
	change := &ChainMappingUpdatedEvent{LocalChainID: localID, ExternalChainID: externalID}

	var emitter string
	byLocal, err := repo.GetByLocal(ctx, localID)
	switch {
	case err == nil:
		change.OldExternalChainID = byLocal.ExternalChainID
		emitter = byLocal.Emitter
	case !repository.IsNotFound(err):
		return nil, err
	}
	byExternal, err := repo.GetByExternal(ctx, externalID)
	switch {
	case err == nil:
		change.OldLocalChainID = byExternal.LocalChainID
	case !repository.IsNotFound(err):
		return nil, err
	}

	err = repo.Replace(ctx, &models.ChainMapping{
		LocalChainID:    localID,
		ExternalChainID: externalID,
		Emitter:         emitter,
		UpdatedBy:       actor,
	})
	if err != nil {
		return nil, fmt.Errorf("replace chain mapping: %w", err)
	}
	return change, nil
}

// SetEmitter pins the trusted emitter for a mapped chain; empty clears the pin
func (r *ChainRegistry) SetEmitter(ctx context.Context, tx *gorm.DB, localID uint32, emitter string, actor string) (*ChainEmitterUpdatedEvent, error) {
	normalized := ""
	if emitter != "" {
		parsed, err := clients.ParseEmitter(emitter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidTarget, err)
		}
		normalized = parsed.String()
	}

	repo := r.repo(tx)
	current, err := repo.GetByLocal(ctx, localID)
	if repository.IsNotFound(err) {
		return nil, fmt.Errorf("%w: local chain %d", types.ErrUnknownChain, localID)
	}
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateEmitter(ctx, localID, normalized, actor); err != nil {
		return nil, err
	}
	return &ChainEmitterUpdatedEvent{
		LocalChainID: localID,
		OldEmitter:   current.Emitter,
		NewEmitter:   normalized,
	}, nil
}

// List every mapping ordered by local id
func (r *ChainRegistry) List(ctx context.Context) ([]*models.ChainMapping, error) {
	return r.repo(nil).List(ctx)
}
