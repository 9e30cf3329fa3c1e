package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/slab-engine/internal/repository"
	"gorm.io/gorm"
)

func createSlabTransitionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_slab_transitions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TransitionModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_slab_transitions_slab_created ON slab_transitions (slab_id, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TransitionModel{})
		},
	}
}
