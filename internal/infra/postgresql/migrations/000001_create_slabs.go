package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/slab-engine/internal/repository"
	"gorm.io/gorm"
)

func createSlabsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_slabs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SlabModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_slabs_status_created ON slabs (status, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_slabs_material ON slabs (lower(material))`,
				`CREATE INDEX IF NOT EXISTS idx_slabs_job_reference ON slabs (job_reference) WHERE job_reference IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SlabModel{})
		},
	}
}
