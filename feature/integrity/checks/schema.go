package checks

import (
	"fmt"

	"idm-reconciler/core/database"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SchemaReport strictly types the result of a schema integrity check.
type SchemaReport struct {
	Matched bool                  `json:"matched"`
	Tables  []database.TableDrift `json:"tables"`
}

// CheckSchema compares the live schema with the persistent entities.
func CheckSchema(db *gorm.DB) (*SchemaReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	drifts, err := database.Inspect(db)
	if err != nil {
		return nil, err
	}
	if drifts == nil {
		drifts = []database.TableDrift{}
	}
	return &SchemaReport{Matched: len(drifts) == 0, Tables: drifts}, nil
}

// FixSchema migrates the tables listed in report.
func FixSchema(db *gorm.DB, logger *zap.Logger, report *SchemaReport) error {
	if report.Matched {
		return nil
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to migrate schema", zap.Error(err))
		return err
	}
	for _, t := range report.Tables {
		logger.Info("Migrated table", zap.String("table", t.Table), zap.Strings("columns", t.MissingColumns))
	}
	return nil
}
