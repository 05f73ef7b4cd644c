package database

import (
	"fmt"
	"strings"

	"whatsapp-inbox/internal/config"
	"whatsapp-inbox/internal/logger"
	"whatsapp-inbox/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// openConversationIndex keeps at most one open conversation per contact.
// Both sqlite and postgres accept this partial index syntax.
const openConversationIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_open
	ON conversations (account_id, contact_id) WHERE status = 'open'`

// accountPhoneNumberIndex routes each provider sender id to exactly one
// account. Demo accounts without an id may coexist.
const accountPhoneNumberIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_accounts_phone_number_id
	ON accounts (whatsapp_phone_number_id) WHERE whatsapp_phone_number_id <> ''`

// Open connects to the database selected by cfg.DBDriver.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.NewGorm(), TranslateError: true}

	switch cfg.DBDriver {
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("connected to PostgreSQL")
		return db, nil
	default:
		db, err := OpenSQLite(cfg.DBPath, gcfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.DBPath).Msg("connected to SQLite")
		return db, nil
	}
}

// sqlitePragmas are passed as DSN parameters so every pooled connection gets them.
const sqlitePragmas = "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"

// OpenSQLite opens a SQLite file with the PRAGMAs the inbox relies on.
func OpenSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + sqlitePragmas
	if gcfg == nil {
		gcfg = &gorm.Config{}
	}
	gcfg.TranslateError = true

	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY storms
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates or updates every table plus the indexes GORM tags cannot
// express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if err := db.Exec(openConversationIndex).Error; err != nil {
		return fmt.Errorf("create open conversation index: %w", err)
	}
	if err := db.Exec(accountPhoneNumberIndex).Error; err != nil {
		return fmt.Errorf("create account phone number index: %w", err)
	}
	log.Info().Msg("database migration completed")
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
