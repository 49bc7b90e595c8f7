package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/mediasysindex/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// InitGormDB opens the database for the given driver and returns a GORM instance.
// SQL statements are logged through log at debug level.
func InitGormDB(driver, dataSourceName string, log zerolog.Logger) (*gorm.DB, error) {
	// gorm filters by its own LogLevel; zerolog's Printf writes at debug
	gormLog := log.With().Str("component", "gorm").Logger().Level(zerolog.DebugLevel)
	gormLogger := logger.New(
		&gormLog,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(log.GetLevel()),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dataSourceName)
	case DriverPostgres:
		dialector = postgres.Open(dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	if driver == DriverSQLite {
		// sqlite has a single writer; one connection keeps per-album
		// transactions from failing with SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			log.Warn().Err(err).Msg("failed to set WAL mode")
		}
		if err := db.Exec("PRAGMA busy_timeout=5000;").Error; err != nil {
			log.Warn().Err(err).Msg("failed to set busy timeout")
		}
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info().Str("driver", driver).Msg("GORM database initialized")
	return db, nil
}

// AutoMigrateModels creates or updates the albums and photos tables.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Album{},
		&models.Photo{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return nil
}

func gormLogLevel(level zerolog.Level) logger.LogLevel {
	switch {
	case level <= zerolog.DebugLevel:
		return logger.Info
	case level <= zerolog.WarnLevel:
		return logger.Warn
	case level <= zerolog.ErrorLevel:
		return logger.Error
	default:
		return logger.Silent
	}
}
