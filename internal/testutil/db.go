// Package testutil provides a migrated SQLite database and fixtures for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a fresh, fully migrated SQLite file under t.TempDir().
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "inbox_test.db")
	db, err := database.OpenSQLite(path, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedAccount inserts an account. Empty token and phone id give a demo account.
func SeedAccount(t testing.TB, db *gorm.DB, phoneNumberID, token string) *models.Account {
	t.Helper()
	acc := &models.Account{
		Name:                  "Bakkerij de Vries",
		WhatsAppPhoneNumberID: phoneNumberID,
		WhatsAppAccessToken:   token,
	}
	if err := db.Create(acc).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

// SeedAutomation inserts an active send_message automation. createdAt orders
// rules deterministically.
func SeedAutomation(t testing.TB, db *gorm.DB, accountID, kind, value, reply string, createdAt time.Time) *models.Automation {
	t.Helper()
	a := &models.Automation{
		AccountID:   accountID,
		Name:        kind + " " + value,
		TriggerKind: kind,
		ActionKind:  models.ActionSendMessage,
		Active:      true,
	}
	a.CreatedAt = createdAt
	if value != "" {
		a.TriggerValue = &value
	}
	if reply != "" {
		a.ActionMessage = &reply
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed automation: %v", err)
	}
	return a
}

// Fixed is a stable reference time for ordering fixtures.
func Fixed() time.Time {
	return time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)
}

// Count returns the number of rows for model.
func Count(t testing.TB, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
