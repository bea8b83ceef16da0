package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/xtarr/internal/models"
)

// All returns the schema history of xtarr, oldest first.
func All() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "xtream detail cache",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.XtreamDetail{})
			},
			Down: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&models.XtreamDetail{})
			},
		},
	}
}
