package db

import (
	"errors"
	"fmt"
	"time"

	"go-bridge/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SchemaMigration records applied data migrations
type SchemaMigration struct {
	Version     string    `gorm:"primaryKey;size:50"`
	Description string    `gorm:"type:text"`
	ExecutedAt  time.Time `gorm:"autoCreateTime"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations_log"
}

// DataMigration represents a data migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*gorm.DB) error
}

// GetDataMigrations return all data migrations
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Checksum-normalize account addresses in role_assignments",
			Up:          checksumRoleAccounts,
		},
		{
			Version:     "data_002",
			Description: "Checksum-normalize account addresses in account_balances",
			Up:          checksumBalanceAccounts,
		},
	}
}

// checksumRoleAccounts rewrites lower-case rows written by early tooling
func checksumRoleAccounts(tx *gorm.DB) error {
	var rows []models.RoleAssignment
	if err := tx.Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		if !common.IsHexAddress(row.Account) {
			continue
		}
		normalized := common.HexToAddress(row.Account).Hex()
		if normalized == row.Account {
			continue
		}
		if err := tx.Model(&models.RoleAssignment{}).Where("id = ?", row.ID).
			Update("account", normalized).Error; err != nil {
			return err
		}
	}
	return nil
}

func checksumBalanceAccounts(tx *gorm.DB) error {
	var rows []models.AccountBalance
	if err := tx.Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		if !common.IsHexAddress(row.Account) || !common.IsHexAddress(row.Asset) {
			continue
		}
		account := common.HexToAddress(row.Account).Hex()
		asset := common.HexToAddress(row.Asset).Hex()
		if account == row.Account && asset == row.Asset {
			continue
		}
		if err := tx.Model(&models.AccountBalance{}).Where("id = ?", row.ID).
			Updates(map[string]interface{}{"account": account, "asset": asset}).Error; err != nil {
			return err
		}
	}
	return nil
}

// RunDataMigrations applies every migration not yet in schema_migrations_log
func RunDataMigrations(database *gorm.DB) error {
	for _, migration := range GetDataMigrations() {
		var applied SchemaMigration
		err := database.Where("version = ?", migration.Version).First(&applied).Error
		if err == nil {
			logrus.Debugf("📋 Data migration %s already applied", migration.Version)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		logrus.Infof("🚀 Running data migration: %s", migration.Description)
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("%s: %w", migration.Version, err)
			}
			return tx.Create(&SchemaMigration{
				Version:     migration.Version,
				Description: migration.Description,
			}).Error
		})
		if err != nil {
			return err
		}
		logrus.Infof("✅ Data migration %s completed", migration.Version)
	}
	return nil
}
