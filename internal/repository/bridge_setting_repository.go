package repository

import (
	"context"

	"go-bridge/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BridgeSettingRepository reads and writes the single bridge settings row
type BridgeSettingRepository interface {
	// Get returns the settings row, creating it from defaults when missing
	Get(ctx context.Context, defaults *models.BridgeSetting) (*models.BridgeSetting, error)
	Save(ctx context.Context, setting *models.BridgeSetting) error
}

type bridgeSettingRepository struct {
	db *gorm.DB
}

// NewBridgeSettingRepository creates a new BridgeSettingRepository instance
func NewBridgeSettingRepository(db *gorm.DB) BridgeSettingRepository {
	return &bridgeSettingRepository{db: db}
}

func (r *bridgeSettingRepository) Get(ctx context.Context, defaults *models.BridgeSetting) (*models.BridgeSetting, error) {
	var setting models.BridgeSetting
	err := r.db.WithContext(ctx).Where("id = ?", models.BridgeSettingID).First(&setting).Error
	if err == nil {
		return &setting, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	setting = models.BridgeSetting{ID: models.BridgeSettingID}
	if defaults != nil {
		setting = *defaults
		setting.ID = models.BridgeSettingID
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error; err != nil {
		return nil, err
	}
	return r.Get(ctx, nil)
}

func (r *bridgeSettingRepository) Save(ctx context.Context, setting *models.BridgeSetting) error {
	setting.ID = models.BridgeSettingID
	return r.db.WithContext(ctx).Save(setting).Error
}
