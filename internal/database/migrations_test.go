package database

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/memopad-app/memopad-api/internal/notes"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:database_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&notes.Note{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedNote(t *testing.T, db *gorm.DB, id, userID string, position, createdAt int64) {
	t.Helper()
	note := notes.Note{
		ID:               id,
		UserID:           userID,
		Content:          "seed",
		Position:         position,
		CreatedAtSeconds: createdAt,
		UpdatedAtSeconds: createdAt,
	}
	if err := db.Create(&note).Error; err != nil {
		t.Fatalf("failed to seed note: %v", err)
	}
}

func positionOf(t *testing.T, db *gorm.DB, id string) int64 {
	t.Helper()
	var note notes.Note
	if err := db.Where("id = ?", id).Take(&note).Error; err != nil {
		t.Fatalf("failed to load note: %v", err)
	}
	return note.Position
}

func TestBackfillAssignsPositionsFromCreationOrder(t *testing.T) {
	db := openTestDB(t)

	// All-zero positions mark a database predating the position column.
	seedNote(t, db, "note-b", "user-1", 0, 1700000200)
	seedNote(t, db, "note-a", "user-1", 0, 1700000100)
	seedNote(t, db, "note-c", "user-1", 0, 1700000300)

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}

	if got := positionOf(t, db, "note-a"); got != 0 {
		t.Fatalf("oldest note should take position 0, got %d", got)
	}
	if got := positionOf(t, db, "note-b"); got != 1 {
		t.Fatalf("middle note should take position 1, got %d", got)
	}
	if got := positionOf(t, db, "note-c"); got != 2 {
		t.Fatalf("newest note should take position 2, got %d", got)
	}
}

func TestBackfillLeavesCuratedOwnersAlone(t *testing.T) {
	db := openTestDB(t)

	// user-1 already curated their order; user-2 has not.
	seedNote(t, db, "note-a", "user-1", 7, 1700000100)
	seedNote(t, db, "note-b", "user-1", 0, 1700000200)
	seedNote(t, db, "note-c", "user-2", 0, 1700000100)
	seedNote(t, db, "note-d", "user-2", 0, 1700000200)

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}

	if got := positionOf(t, db, "note-a"); got != 7 {
		t.Fatalf("curated position should survive, got %d", got)
	}
	if got := positionOf(t, db, "note-b"); got != 0 {
		t.Fatalf("curated owner must not be rewritten, got %d", got)
	}
	if got := positionOf(t, db, "note-d"); got != 1 {
		t.Fatalf("uncurated owner should be backfilled, got %d", got)
	}
}

func TestMigrationsRunOnce(t *testing.T) {
	db := openTestDB(t)
	seedNote(t, db, "note-a", "user-1", 0, 1700000100)
	seedNote(t, db, "note-b", "user-1", 0, 1700000200)

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}

	// A later manual reset back to zero must not be "repaired" again.
	if err := db.Model(&notes.Note{}).Where("id = ?", "note-b").Update("position", 0).Error; err != nil {
		t.Fatalf("failed to reset position: %v", err)
	}
	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}
	if got := positionOf(t, db, "note-b"); got != 0 {
		t.Fatalf("recorded migration must not rerun, got %d", got)
	}
}
