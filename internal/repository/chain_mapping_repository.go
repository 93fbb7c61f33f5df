package repository

import (
	"context"
	"errors"

	"go-bridge/internal/models"

	"gorm.io/gorm"
)

// ChainMappingRepository defines the interface for ChainMapping data access
type ChainMappingRepository interface {
	GetByLocal(ctx context.Context, localID uint32) (*models.ChainMapping, error)
	GetByExternal(ctx context.Context, externalID uint16) (*models.ChainMapping, error)
	// Replace drops every row that uses either id of mapping, then inserts mapping
	Replace(ctx context.Context, mapping *models.ChainMapping) error
	UpdateEmitter(ctx context.Context, localID uint32, emitter, updatedBy string) error
	List(ctx context.Context) ([]*models.ChainMapping, error)
}

// chainMappingRepository implements ChainMappingRepository
type chainMappingRepository struct {
	db *gorm.DB
}

// NewChainMappingRepository creates a new ChainMappingRepository instance
func NewChainMappingRepository(db *gorm.DB) ChainMappingRepository {
	return &chainMappingRepository{db: db}
}

func (r *chainMappingRepository) GetByLocal(ctx context.Context, localID uint32) (*models.ChainMapping, error) {
	var mapping models.ChainMapping
	err := r.db.WithContext(ctx).Where("local_chain_id = ?", localID).First(&mapping).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *chainMappingRepository) GetByExternal(ctx context.Context, externalID uint16) (*models.ChainMapping, error) {
	var mapping models.ChainMapping
	err := r.db.WithContext(ctx).Where("external_chain_id = ?", externalID).First(&mapping).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *chainMappingRepository) Replace(ctx context.Context, mapping *models.ChainMapping) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("local_chain_id = ? OR external_chain_id = ?", mapping.LocalChainID, mapping.ExternalChainID).
		Delete(&models.ChainMapping{}).Error; err != nil {
		return err
	}
	mapping.ID = 0
	return db.Create(mapping).Error
}

func (r *chainMappingRepository) UpdateEmitter(ctx context.Context, localID uint32, emitter, updatedBy string) error {
	result := r.db.WithContext(ctx).Model(&models.ChainMapping{}).
		Where("local_chain_id = ?", localID).
		Updates(map[string]interface{}{"emitter": emitter, "updated_by": updatedBy})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chainMappingRepository) List(ctx context.Context) ([]*models.ChainMapping, error) {
	var mappings []*models.ChainMapping
	if err := r.db.WithContext(ctx).Order("local_chain_id ASC").Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

// IsNotFound reports whether err is gorm's record-not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
