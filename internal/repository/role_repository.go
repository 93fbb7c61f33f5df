package repository

import (
	"context"

	"go-bridge/internal/models"

	"gorm.io/gorm"
)

// RoleRepository stores the capability set of each account
type RoleRepository interface {
	HasRole(ctx context.Context, account string, role models.Role) (bool, error)
	// Grant returns false when the account already held the role
	Grant(ctx context.Context, account string, role models.Role, grantedBy string) (bool, error)
	// Revoke returns false when the account did not hold the role
	Revoke(ctx context.Context, account string, role models.Role) (bool, error)
	List(ctx context.Context) ([]*models.RoleAssignment, error)
}

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new RoleRepository instance
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) HasRole(ctx context.Context, account string, role models.Role) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("account = ? AND role = ?", account, role).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *roleRepository) Grant(ctx context.Context, account string, role models.Role, grantedBy string) (bool, error) {
	has, err := r.HasRole(ctx, account, role)
	if err != nil || has {
		return false, err
	}
	err = r.db.WithContext(ctx).Create(&models.RoleAssignment{
		Account:   account,
		Role:      role,
		GrantedBy: grantedBy,
	}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *roleRepository) Revoke(ctx context.Context, account string, role models.Role) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("account = ? AND role = ?", account, role).
		Delete(&models.RoleAssignment{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *roleRepository) List(ctx context.Context) ([]*models.RoleAssignment, error) {
	var roles []*models.RoleAssignment
	if err := r.db.WithContext(ctx).Order("account ASC, role ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}
