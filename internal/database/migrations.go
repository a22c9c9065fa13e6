package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillNotePositions = "2026-05-12_backfill_note_positions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillNotePositions, apply: backfillNotePositions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillNotePositions derives positions from creation order for databases
// written before the position column existed. Owners who already carry any
// non-zero position are left alone.
func backfillNotePositions(db *gorm.DB) error {
	const statement = `
UPDATE notes SET position = (
	SELECT COUNT(*) FROM notes prior
	WHERE prior.user_id = notes.user_id
	  AND (prior.created_at_s < notes.created_at_s
	       OR (prior.created_at_s = notes.created_at_s AND prior.id < notes.id))
)
WHERE NOT EXISTS (
	SELECT 1 FROM notes sibling
	WHERE sibling.user_id = notes.user_id AND sibling.position <> 0
)`
	return db.Exec(statement).Error
}
