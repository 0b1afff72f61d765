package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/civicledger/civic-ledger/internal/config"
	"github.com/civicledger/civic-ledger/internal/models"
)

var DB *gorm.DB

const connectMaxElapsed = 30 * time.Second

func newConnectBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectMaxElapsed
	return bo
}

// Connect opens the read-model database, retrying while Postgres comes up.
func Connect(ctx context.Context, cfg *config.Config) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			slog.Warn("database not ready", "attempt", attempt, "error", err)
			return err
		}
		DB = db
		return nil
	}, backoff.WithContext(newConnectBackoff(), ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	slog.Info("database connected", "attempts", attempt)
	return nil
}

// MigrateShared runs AutoMigrate for models owned by the server itself.
func MigrateShared() error {
	return DB.AutoMigrate(&models.SystemLog{})
}

// MigrateModels runs AutoMigrate for component models such as the indexer's.
func MigrateModels(modelList []interface{}) error {
	if len(modelList) == 0 {
		return nil
	}
	return DB.AutoMigrate(modelList...)
}

func Ping() error {
	if DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
