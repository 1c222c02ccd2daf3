package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/provisioning"
	"idm-reconciler/core/reconcile"
	"idm-reconciler/feature/reconciliation"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags shared by the reconcile subcommands
	reconResource    string
	reconAnyType     string
	reconAnyKey      string
	reconKeyValue    string
	reconRealm       string
	reconDryRun      bool
	reconRemediation bool
	reconJSON        bool
	pullMode         string
	pullFilter       string

	// Flags for reconcile report
	reportPush  bool
	reportPull  bool
	reportPurge bool
	yesConfirm  bool
)

// reconcileCmd is the parent command for all reconcile operations.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile entities with the objects of an external resource",
	Long: `Compute reconciliation status, push or pull single entities and reconcile
whole provisions between the internal store and an external resource.`,
}

var reconStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the reconciliation status of one entity or remote object",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			status, err := reconciliation.NewService(rt.core).Status(ctx, reconQuery())
			if err != nil {
				return fmt.Errorf("failed to compute status: %w", err)
			}

			fmt.Println("\n=== Reconciliation Status ===")
			fmt.Printf("Any Key: %s\n", status.AnyKey)
			fmt.Printf("Match Type: %s\n", status.MatchType)
			fmt.Printf("On Syncope: %t\n", status.OnSyncope != nil)
			fmt.Printf("On Resource: %t\n", status.OnResource != nil)

			if reconJSON {
				if _, err := saveJSON(rt.logger, "reconcile_status", status); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var reconPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push one entity to a resource",
	Long: `Push one entity to a resource using the default push task:
UPDATE when a remote object matches, PROVISION otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			task := provisioning.DefaultPushTask()
			task.DryRun = reconDryRun
			reports, err := reconciliation.NewService(rt.core).Push(ctx, reconQuery(), task)
			return printReports(rt.logger, "push", reports, err)
		})
	},
}

var reconPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull one remote object from a resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			reports, err := reconciliation.NewService(rt.core).Pull(ctx, reconQuery(), pullTask())
			return printReports(rt.logger, "pull", reports, err)
		})
	},
}

var reconPullAllCmd = &cobra.Command{
	Use:   "pull-all",
	Short: "Pull the changes of a resource since its last sync token",
	Long: `Pull the remote objects of a resource.

Modes:
  incremental  objects changed since the stored sync token (all when none is stored),
               then advance the token
  full         every object, then store the latest token
  filtered     objects matching --filter attr=value; the token is left alone

Dry runs never advance the token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := pullAllTask()
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			reports, err := reconciliation.NewService(rt.core).PullAll(ctx, reconResource, reconAnyType, task)
			return printReports(rt.logger, "pull_all", reports, err)
		})
	},
}

// reconReportCmd reconciles a whole provision with optional push, pull or purge.
var reconReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Reconcile a whole provision (report + optionally push/pull/purge)",
	Long: `Reconcile every entity bound to a resource with every remote object.

Reports objects missing on either side and attribute mismatches.
Optionally push entities, pull orphan objects or purge them from the resource.

Examples:
  # Report only
  reconcile report --resource ws-target --any-type USER

  # Push missing and mismatched entities (with interactive confirmation)
  reconcile report --resource ws-target --any-type USER --push

  # Purge orphan remote objects with auto-confirm (non-interactive)
  reconcile report --resource ws-target --any-type USER --purge --yes

  # Pull orphans into a realm
  reconcile report --resource ws-target --any-type USER --pull --realm /even --yes`,
	RunE: runReconcileReport,
}

func init() {
	for _, c := range []*cobra.Command{reconStatusCmd, reconPushCmd, reconPullCmd, reconPullAllCmd, reconReportCmd} {
		c.Flags().StringVar(&reconResource, "resource", "", "External resource key")
		c.Flags().StringVar(&reconAnyType, "any-type", "USER", "Any type key")
		c.Flags().BoolVar(&reconJSON, "json", false, "Save detailed JSON output")
		_ = c.MarkFlagRequired("resource")
		reconcileCmd.AddCommand(c)
	}

	reconStatusCmd.Flags().StringVar(&reconAnyKey, "any", "", "Entity key")
	reconStatusCmd.Flags().StringVar(&reconKeyValue, "key", "", "ConnObjectKey value of the remote object")
	reconPushCmd.Flags().StringVar(&reconAnyKey, "any", "", "Entity key")
	reconPushCmd.Flags().StringVar(&reconKeyValue, "key", "", "ConnObjectKey value of the remote object")
	reconPushCmd.Flags().BoolVar(&reconDryRun, "dry-run", false, "Report without changing the resource")
	reconPullCmd.Flags().StringVar(&reconAnyKey, "any", "", "Entity key")
	reconPullCmd.Flags().StringVar(&reconKeyValue, "key", "", "ConnObjectKey value of the remote object")

	for _, c := range []*cobra.Command{reconPullCmd, reconPullAllCmd} {
		c.Flags().StringVar(&reconRealm, "realm", "/", "Destination realm of created entities")
		c.Flags().BoolVar(&reconDryRun, "dry-run", false, "Report without changing entities")
		c.Flags().BoolVar(&reconRemediation, "remediation", false, "Store failures as remediations")
	}

	reconPullAllCmd.Flags().StringVar(&pullMode, "mode", "incremental", "Pull mode: incremental, full or filtered")
	reconPullAllCmd.Flags().StringVar(&pullFilter, "filter", "", "attr=value filter of a filtered pull")

	reconReportCmd.Flags().StringVar(&reconRealm, "realm", "/", "Destination realm of pulled entities")
	reconReportCmd.Flags().BoolVar(&reportPush, "push", false, "Enable push (create and update remote objects)")
	reconReportCmd.Flags().BoolVar(&reportPull, "pull", false, "Enable pull (create entities from orphan objects)")
	reconReportCmd.Flags().BoolVar(&reportPurge, "purge", false, "Enable purge (delete orphan remote objects)")
	reconReportCmd.Flags().BoolVar(&reconDryRun, "dry-run", false, "Force dry-run (no mutations even with --yes)")
	reconReportCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")

	RootCmd.AddCommand(reconcileCmd)
}

func reconQuery() reconcile.ReconQuery {
	return reconcile.ReconQuery{
		AnyTypeKey:         reconAnyType,
		ResourceKey:        reconResource,
		AnyKey:             reconAnyKey,
		ConnObjectKeyValue: reconKeyValue,
	}
}

func pullTask() provisioning.PullTask {
	task := provisioning.DefaultPullTask(reconRealm)
	task.DryRun = reconDryRun
	task.Remediation = reconRemediation
	return task
}

func pullAllTask() (provisioning.PullTask, error) {
	task := pullTask()
	mode, err := provisioning.ParsePullMode(pullMode)
	if err != nil {
		return task, err
	}
	task.PullMode = mode
	if pullFilter != "" {
		attr, value, ok := strings.Cut(pullFilter, "=")
		if !ok || attr == "" {
			return task, fmt.Errorf("invalid filter %q, expected attr=value", pullFilter)
		}
		task.Filter = connid.Equals(attr, value)
	}
	return task, nil
}

func runReconcileReport(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
		l := rt.logger
		svc := reconciliation.NewService(rt.core)
		req := reconciliation.PlanRequest{
			ResourceKey: reconResource,
			AnyType:     reconAnyType,
			Realm:       reconRealm,
			Push:        reportPush,
			Pull:        reportPull,
			Purge:       reportPurge,
			DryRun:      reconDryRun,
		}

		// Step 1: Plan (always runs)
		l.Info("Planning reconciliation...", zap.String("resource", reconResource), zap.String("any_type", reconAnyType))
		run, err := svc.Plan(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to plan reconciliation: %w", err)
		}

		// Step 2: Print report
		printReconcileReport(l, run.Plan)
		if reconJSON {
			if _, err := saveJSON(l, "reconcile_"+reconResource, run.Plan); err != nil {
				return err
			}
		}

		// Step 3: Check if actions are requested
		if !reportPush && !reportPull && !reportPurge {
			l.Info("No actions requested. Use --push, --pull or --purge to act on the differences.")
			return nil
		}

		if reconDryRun {
			l.Info("Dry-run mode: No changes were made.")
			return nil
		}

		// Step 4: Apply (if confirmed)
		if len(run.Plan.Actions) == 0 {
			l.Info("No actions required based on current flags.")
			return nil
		}
		if !confirmDestructiveAction() {
			l.Warn("Operation cancelled by user. No changes were made.")
			return nil
		}

		l.Info("Applying actions...")
		executed, err := svc.Apply(ctx, run, req.Options(true))
		if err != nil {
			return fmt.Errorf("failed to apply plan after %d actions: %w", executed, err)
		}
		l.Info("Successfully executed actions", zap.Int("count", executed))
		return nil
	})
}

// printReconcileReport prints a formatted reconciliation report using logger.
func printReconcileReport(l *zap.Logger, plan *reconcile.ReconcilePlan) {
	s := plan.Summary

	l.Info("Reconciliation report",
		zap.Int("total_items", s.TotalItems),
		zap.Int("missing_external", s.MissingExternal),
		zap.Int("missing_internal", s.MissingInternal),
		zap.Int("mismatches", s.Mismatches),
	)

	if len(plan.Actions) == 0 {
		return
	}
	l.Info("Planned actions",
		zap.Int("push_actions", s.PushActions),
		zap.Int("pull_actions", s.PullActions),
		zap.Int("purge_actions", s.PurgeActions),
		zap.Int("total_actions", len(plan.Actions)),
	)

	// Show sample of actions (max 5 for logger)
	maxShow := min(5, len(plan.Actions))
	for _, action := range plan.Actions[:maxShow] {
		l.Info("Sample action",
			zap.String("type", string(action.Type)),
			zap.String("key", action.Key),
			zap.String("reason", action.Reason),
		)
	}
	if len(plan.Actions) > maxShow {
		l.Info("Additional actions not shown", zap.Int("count", len(plan.Actions)-maxShow))
	}
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm destructive actions: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(response) == "yes"
}

// printReports prints a per-status summary of reports. Reports returned with a
// reconciliation error are still printed before the error is returned.
func printReports(l *zap.Logger, name string, reports []provisioning.ProvisioningReport, err error) error {
	if err != nil && reports == nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}

	counts := map[provisioning.Status]int{}
	for _, r := range reports {
		counts[r.Status]++
		fields := []zap.Field{
			zap.String("key", r.Key),
			zap.String("name", r.Name),
			zap.String("operation", string(r.Operation)),
			zap.String("status", string(r.Status)),
		}
		if r.Message != "" {
			fields = append(fields, zap.String("message", r.Message))
		}
		l.Info("Provisioning report", fields...)
	}

	fmt.Printf("\n=== %s ===\n", strings.ToUpper(strings.ReplaceAll(name, "_", " ")))
	fmt.Printf("Reports: %d\n", len(reports))
	fmt.Printf("Success: %d\n", counts[provisioning.StatusSuccess])
	fmt.Printf("Failure: %d\n", counts[provisioning.StatusFailure])
	fmt.Printf("Ignore: %d\n", counts[provisioning.StatusIgnore])

	if reconJSON {
		if _, jerr := saveJSON(l, name+"_reports", reports); jerr != nil {
			return jerr
		}
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}
