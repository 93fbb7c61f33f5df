package repository

import (
	"context"

	"go-bridge/internal/models"

	"gorm.io/gorm"
)

// TransferRepository defines the interface for TransferRecord data access
type TransferRepository interface {
	Create(ctx context.Context, record *models.TransferRecord) error
	Update(ctx context.Context, record *models.TransferRecord) error
	GetByID(ctx context.Context, id string) (*models.TransferRecord, error)
	FindByStatus(ctx context.Context, status models.TransferStatus, page, pageSize int) ([]*models.TransferRecord, int64, error)
}

type transferRepository struct {
	db *gorm.DB
}

// NewTransferRepository creates a new TransferRepository instance
func NewTransferRepository(db *gorm.DB) TransferRepository {
	return &transferRepository{db: db}
}

func (r *transferRepository) Create(ctx context.Context, record *models.TransferRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *transferRepository) Update(ctx context.Context, record *models.TransferRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *transferRepository) GetByID(ctx context.Context, id string) (*models.TransferRecord, error) {
	var record models.TransferRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *transferRepository) FindByStatus(ctx context.Context, status models.TransferStatus, page, pageSize int) ([]*models.TransferRecord, int64, error) {
	var records []*models.TransferRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&models.TransferRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
