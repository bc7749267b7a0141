package db

import (
	"github.com/glebarez/sqlite"
	"github.com/pysugar/commshub/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AllModels lists every table commshub owns, in migration order.
func AllModels() []any {
	return []any{
		&models.Company{},
		&models.Employee{},
		&models.CommunicationLog{},
		&models.MessagingConfig{},
		&models.Credential{},
		&models.OAuthState{},
	}
}

// InitDB initializes the SQLite database connection and runs migrations.
func InitDB(dbPath string, logQueries bool) (*gorm.DB, error) {
	level := logger.Silent
	if logQueries {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:                                   logger.Default.LogMode(level),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, err
	}
	return db, nil
}

// TableStatus reports whether a model's table exists.
type TableStatus struct {
	Table  string `json:"table"`
	Exists bool   `json:"exists"`
}

// VerifyTables checks every expected table without migrating.
func VerifyTables(db *gorm.DB) []TableStatus {
	migrator := db.Migrator()
	stmt := &gorm.Statement{DB: db}

	result := make([]TableStatus, 0, len(AllModels()))
	for _, m := range AllModels() {
		name := ""
		if err := stmt.Parse(m); err == nil {
			name = stmt.Schema.Table
		}
		result = append(result, TableStatus{Table: name, Exists: migrator.HasTable(m)})
	}
	return result
}
