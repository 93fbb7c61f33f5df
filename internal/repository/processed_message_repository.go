package repository

import (
	"context"

	"go-bridge/internal/models"

	"gorm.io/gorm"
)

// ProcessedMessageRepository is the inbound idempotency ledger. Entries are never removed.
type ProcessedMessageRepository interface {
	Exists(ctx context.Context, sourceChain uint16, emitter string, sequence uint64) (bool, error)
	Create(ctx context.Context, msg *models.ProcessedMessage) error
	Count(ctx context.Context) (int64, error)
}

type processedMessageRepository struct {
	db *gorm.DB
}

// NewProcessedMessageRepository creates a new ProcessedMessageRepository instance
func NewProcessedMessageRepository(db *gorm.DB) ProcessedMessageRepository {
	return &processedMessageRepository{db: db}
}

func (r *processedMessageRepository) Exists(ctx context.Context, sourceChain uint16, emitter string, sequence uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedMessage{}).
		Where("source_chain = ? AND emitter = ? AND sequence = ?", sourceChain, emitter, sequence).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *processedMessageRepository) Create(ctx context.Context, msg *models.ProcessedMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *processedMessageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProcessedMessage{}).Count(&count).Error
	return count, err
}
