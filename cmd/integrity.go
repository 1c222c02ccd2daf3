package cmd

import (
	"context"
	"fmt"

	"idm-reconciler/feature/connector"
	"idm-reconciler/feature/integrity"
	"idm-reconciler/feature/integrity/checks"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fixFlag bool

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Perform integrity checks on the database, storage and connectors",
	Long:  `Checks that the database schema is current, that the stream bucket exists and that every connector can reach its target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd, true, true, true)
	},
}

// schemaCmd represents the integrity schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Check and fix the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd, true, false, false)
	},
}

// storageCmd represents the integrity storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Check and fix the stream bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd, false, true, false)
	},
}

// connectorsCmd represents the integrity connectors command
var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "Check that every connector can reach its target",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd, false, false, true)
	},
}

func init() {
	RootCmd.AddCommand(integrityCmd)
	integrityCmd.AddCommand(schemaCmd, storageCmd, connectorsCmd)

	schemaCmd.Flags().BoolVar(&fixFlag, "fix", false, "Migrate drifted tables")
	storageCmd.Flags().BoolVar(&fixFlag, "fix", false, "Create the missing bucket")
}

func runIntegrityChecks(cmd *cobra.Command, runSchema, runStorage, runConnectors bool) error {
	return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
		logg := rt.logger
		svc := integrity.NewService(rt.core, rt.db)
		onlyOne := !(runSchema && runStorage && runConnectors)

		if runSchema {
			if err := checkSchema(ctx, logg, svc, onlyOne); err != nil {
				return err
			}
		}
		if runStorage {
			if err := checkStorage(ctx, logg, svc, onlyOne); err != nil {
				return err
			}
		}
		if runConnectors {
			logg.Info("Checking connectors...")
			results, err := svc.CheckConnectors(ctx)
			if err != nil {
				return fmt.Errorf("connector check failed: %w", err)
			}
			for _, r := range results {
				if r.Status == connector.Reachable {
					logg.Info("Connector reachable", zap.String("connector", r.Key))
					continue
				}
				logg.Warn("Connector not reachable",
					zap.String("connector", r.Key), zap.String("status", r.Status), zap.String("message", r.Message))
			}
		}
		return nil
	})
}

func checkSchema(ctx context.Context, logg *zap.Logger, svc *integrity.Service, onlyOne bool) error {
	logg.Info("Checking database schema...")
	report, err := svc.CheckSchema(ctx)
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	if report.Matched {
		logg.Info("Schema is current.")
		return nil
	}

	for _, t := range report.Tables {
		if t.Missing {
			logg.Warn("Missing table", zap.String("table", t.Table))
			continue
		}
		logg.Warn("Missing columns", zap.String("table", t.Table), zap.Strings("columns", t.MissingColumns))
	}
	switch {
	case onlyOne && fixFlag:
		logg.Info("Migrating schema...")
		if _, err := svc.FixSchema(ctx); err != nil {
			return fmt.Errorf("failed to fix schema: %w", err)
		}
		logg.Info("Schema fixed successfully.")
	case onlyOne:
		logg.Info("Run with --fix to migrate the schema.")
	}
	return nil
}

func checkStorage(ctx context.Context, logg *zap.Logger, svc *integrity.Service, onlyOne bool) error {
	logg.Info("Checking stream bucket...")
	report, err := svc.CheckStorage(ctx)
	if err != nil {
		return fmt.Errorf("storage check failed: %w", err)
	}

	switch report.Status {
	case checks.StorageDisabled:
		logg.Info("Object storage is not configured.")
	case checks.StorageOK:
		logg.Info("Bucket is present.", zap.String("bucket", report.Bucket), zap.Int("objects", report.Objects))
	case checks.StorageMissing:
		logg.Warn("Bucket is missing", zap.String("bucket", report.Bucket))
		switch {
		case onlyOne && fixFlag:
			if err := svc.FixStorage(ctx); err != nil {
				return fmt.Errorf("failed to fix storage: %w", err)
			}
			logg.Info("Bucket created successfully.")
		case onlyOne:
			logg.Info("Run with --fix to create the bucket.")
		}
	}
	return nil
}
