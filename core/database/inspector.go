package database

import (
	"fmt"
	"sort"
	"strings"

	"idm-reconciler/core/model"

	"gorm.io/gorm"
)

// TableDrift describes how a table differs from its model.
type TableDrift struct {
	Table          string   `json:"table"`
	Missing        bool     `json:"missing"`
	MissingColumns []string `json:"missingColumns,omitempty"`
}

// Inspect compares the live schema against every persistent entity and returns the
// tables that are absent or lack columns. An empty result means the schema is current.
func Inspect(db *gorm.DB) ([]TableDrift, error) {
	var drifts []TableDrift
	for _, m := range model.All() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, fmt.Errorf("failed to parse model %T: %w", m, err)
		}
		table := stmt.Schema.Table

		if !db.Migrator().HasTable(m) {
			drifts = append(drifts, TableDrift{Table: table, Missing: true})
			continue
		}

		columns, err := GetTableColumns(db, m)
		if err != nil {
			return nil, err
		}
		var missing []string
		for _, name := range stmt.Schema.DBNames {
			if !columns[strings.ToLower(name)] {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			drifts = append(drifts, TableDrift{Table: table, MissingColumns: missing})
		}
	}
	return drifts, nil
}

// GetTableColumns returns the lower-cased column names of the table backing m.
func GetTableColumns(db *gorm.DB, m any) (map[string]bool, error) {
	types, err := db.Migrator().ColumnTypes(m)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for %T: %w", m, err)
	}
	columns := make(map[string]bool, len(types))
	for _, ct := range types {
		columns[strings.ToLower(ct.Name())] = true
	}
	return columns, nil
}
