package repository

import (
	"context"

	"go-bridge/internal/models"

	"gorm.io/gorm"
)

// BridgeEventRepository is the append-only event log
type BridgeEventRepository interface {
	Create(ctx context.Context, event *models.BridgeEvent) error
	// List returns events with id > afterID, oldest first; eventType "" matches all
	List(ctx context.Context, afterID uint64, eventType string, limit int) ([]*models.BridgeEvent, error)
	CountByType(ctx context.Context, eventType string) (int64, error)
}

type bridgeEventRepository struct {
	db *gorm.DB
}

// NewBridgeEventRepository creates a new BridgeEventRepository instance
func NewBridgeEventRepository(db *gorm.DB) BridgeEventRepository {
	return &bridgeEventRepository{db: db}
}

func (r *bridgeEventRepository) Create(ctx context.Context, event *models.BridgeEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *bridgeEventRepository) List(ctx context.Context, afterID uint64, eventType string, limit int) ([]*models.BridgeEvent, error) {
	var events []*models.BridgeEvent
	query := r.db.WithContext(ctx).Where("id > ?", afterID)
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if err := query.Order("id ASC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *bridgeEventRepository) CountByType(ctx context.Context, eventType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BridgeEvent{}).Where("type = ?", eventType).Count(&count).Error
	return count, err
}
