package database

import (
	"fmt"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// InitDB initializes the database connection and migrates the schema.
// A DATABASE_URL selects postgres; otherwise a sqlite file is used.
func InitDB(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if cfg.URL != "" {
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.URL,
			PreferSimpleProtocol: true,
		})
	} else {
		dialector = sqlite.Open(cfg.Path)
	}

	db, err := Open(dialector, log)
	if err != nil {
		return nil, err
	}
	log.Info("database ready", zap.String("dialect", db.Dialector.Name()))
	return db, nil
}

// Open connects with dialector and runs AutoMigrate.
func Open(dialector gorm.Dialector, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:    false,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger: gormlogger.New(zap.NewStdLog(log), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.AutoMigrate(All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return db, nil
}

// ForUpdate adds a row lock on dialects that support one. sqlite already
// serialises writers, so it is left untouched there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
