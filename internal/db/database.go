package db

import (
	"fmt"
	"time"

	"go-bridge/internal/config"
	"go-bridge/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB opens the configured database, migrates the schema and stores the handle in DB
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	database, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	logrus.WithField("driver", cfg.Driver).Info("✅ Database connected successfully")

	if err := Migrate(database); err != nil {
		return nil, err
	}
	if err := RunDataMigrations(database); err != nil {
		return nil, fmt.Errorf("data migrations failed: %w", err)
	}
	logrus.Info("✅ Database schema migrated successfully")

	DB = database
	return database, nil
}

// Open connects without migrating
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		CreateBatchSize:                          1000,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// sqlite serializes writers; one connection keeps in-memory databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return database, nil
}

// Migrate runs AutoMigrate for every bridge table
func Migrate(database *gorm.DB) error {
	logrus.Info("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := database.AutoMigrate(
		&models.ChainMapping{},
		&models.ProcessedMessage{},
		&models.AccountBalance{},
		&models.TokenOwnership{},
		&models.OutstandingTransfer{},
		&models.RoleAssignment{},
		&models.BridgeSetting{},
		&models.BridgeEvent{},
		&models.TransferRecord{},
		&SchemaMigration{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	return nil
}
