package cmd

import (
	"context"
	"fmt"
	"time"

	"idm-reconciler/feature/connector"
	"idm-reconciler/feature/remediation"
	"idm-reconciler/feature/resource"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	remediationPage int
	remediationSize int
)

var connectorCmd = &cobra.Command{
	Use:   "connector",
	Short: "Inspect and check connector instances",
}

var connectorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connector instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			list, err := connector.NewService(rt.core).List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list connectors: %w", err)
			}
			fmt.Println("\n=== Connectors ===")
			for _, ci := range list {
				fmt.Printf("%s\t%s\t%s %s\t%s\n", ci.Key, ci.DisplayName, ci.BundleName, ci.Version, ci.AdminRealm)
			}
			fmt.Printf("Total: %d\n", len(list))
			return nil
		})
	},
}

var connectorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that every connector can reach its target",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			results, err := connector.NewService(rt.core).CheckAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to check connectors: %w", err)
			}

			failed := 0
			fmt.Println("\n=== Connector Checks ===")
			for _, r := range results {
				fmt.Printf("%s (%s): %s", r.Key, r.DisplayName, r.Status)
				if r.Message != "" {
					fmt.Printf(" - %s", r.Message)
				}
				fmt.Println()
				if r.Status != connector.Reachable {
					failed++
				}
			}
			rt.logger.Info("Connector checks completed", zap.Int("total", len(results)), zap.Int("failed", failed))

			if reconJSON {
				if _, err := saveJSON(rt.logger, "connector_checks", results); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var connectorReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Drop every cached connector",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			n, err := connector.NewService(rt.core).Reload(ctx)
			if err != nil {
				return fmt.Errorf("failed to reload connectors: %w", err)
			}
			rt.logger.Info("Connectors reloaded", zap.Int("dropped", n))
			return nil
		})
	},
}

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Inspect external resources and their sync tokens",
}

var resourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List external resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			list, err := resource.NewService(rt.core).List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list resources: %w", err)
			}
			fmt.Println("\n=== Resources ===")
			for _, res := range list {
				fmt.Printf("%s\tconnector=%s\tprovisions=%d\n", res.Key, res.ConnectorKey, len(res.Provisions))
			}
			fmt.Printf("Total: %d\n", len(list))
			return nil
		})
	},
}

var resourceCheckCmd = &cobra.Command{
	Use:   "check <key>",
	Short: "Check that a resource can reach its target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			svc := resource.NewService(rt.core)
			res, err := svc.Read(ctx, args[0])
			if err != nil {
				return err
			}
			if err := svc.Check(ctx, res); err != nil {
				return fmt.Errorf("resource %s check failed: %w", res.Key, err)
			}
			fmt.Printf("✓ Resource %s is reachable\n", res.Key)
			return nil
		})
	},
}

var resourceSyncTokenCmd = &cobra.Command{
	Use:   "sync-token <key>",
	Short: "Set the sync token of a provision to the latest, or remove it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remove, _ := cmd.Flags().GetBool("remove")
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			svc := resource.NewService(rt.core)
			if remove {
				if err := svc.RemoveSyncToken(ctx, args[0], reconAnyType); err != nil {
					return fmt.Errorf("failed to remove sync token: %w", err)
				}
				rt.logger.Info("Sync token removed", zap.String("resource", args[0]), zap.String("any_type", reconAnyType))
				return nil
			}
			token, err := svc.SetLatestSyncToken(ctx, args[0], reconAnyType)
			if err != nil {
				return fmt.Errorf("failed to set sync token: %w", err)
			}
			fmt.Printf("Sync token: %s\n", token)
			return nil
		})
	},
}

var remediationCmd = &cobra.Command{
	Use:   "remediation",
	Short: "List, replay or drop pull failures",
}

var remediationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remediations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			page, err := remediation.NewService(rt.core).List(ctx, remediationPage, remediationSize)
			if err != nil {
				return fmt.Errorf("failed to list remediations: %w", err)
			}
			fmt.Println("\n=== Remediations ===")
			for _, r := range page.Items {
				fmt.Printf("%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Key, r.Instant.Format(time.RFC3339), r.ResourceKey, r.Operation, r.RemoteName, r.Error)
			}
			fmt.Printf("Page %d (%d per page), total %d\n", page.Page, page.Size, page.Total)
			return nil
		})
	},
}

var remediationRemedyCmd = &cobra.Command{
	Use:   "remedy <key>",
	Short: "Replay a remediation and drop it on success",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			entity, err := remediation.NewService(rt.core).Remedy(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to remedy %s: %w", args[0], err)
			}
			fmt.Printf("✓ Remedied %s: %s %s (%s)\n", args[0], entity.Type, entity.Name, entity.Key)
			return nil
		})
	},
}

var remediationDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Drop a remediation without replaying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, rt *runtime) error {
			if _, err := remediation.NewService(rt.core).Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}
			rt.logger.Info("Remediation deleted", zap.String("remediation", args[0]))
			return nil
		})
	},
}

func init() {
	connectorCmd.AddCommand(connectorListCmd, connectorCheckCmd, connectorReloadCmd)
	connectorCheckCmd.Flags().BoolVar(&reconJSON, "json", false, "Save detailed JSON output")

	resourceCmd.AddCommand(resourceListCmd, resourceCheckCmd, resourceSyncTokenCmd)
	resourceSyncTokenCmd.Flags().StringVar(&reconAnyType, "any-type", "USER", "Any type key")
	resourceSyncTokenCmd.Flags().Bool("remove", false, "Remove the token instead of setting it")

	remediationCmd.AddCommand(remediationListCmd, remediationRemedyCmd, remediationDeleteCmd)
	remediationListCmd.Flags().IntVar(&remediationPage, "page", 1, "Page number, starting at 1")
	remediationListCmd.Flags().IntVar(&remediationSize, "size", 25, "Page size")

	RootCmd.AddCommand(connectorCmd, resourceCmd, remediationCmd)
}
