package maintenance

import (
	"github.com/pysugar/commshub/internal/db"
	"gorm.io/gorm"
)

// VerifyTables reports every expected table and returns the names of the
// missing ones.
func VerifyTables(database *gorm.DB) ([]db.TableStatus, []string) {
	statuses := db.VerifyTables(database)
	var missing []string
	for _, s := range statuses {
		if !s.Exists {
			missing = append(missing, s.Table)
		}
	}
	return statuses, missing
}
