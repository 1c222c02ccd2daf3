// Package database opens the gorm connection backing the identity store.
//
// MySQL, PostgreSQL (pgx) and SQLite are supported. SQLite is meant for tests and
// single-node demos: the pool is pinned to one connection so ":memory:" databases
// stay shared.
//
// # Schema
//
// Migrate runs gorm AutoMigrate over model.All. Inspect reports tables or columns the
// live schema lacks, which backs the `migrate --check` command.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	if err := database.Migrate(db); err != nil {
//	    return err
//	}
package database
