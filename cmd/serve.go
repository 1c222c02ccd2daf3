package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"idm-reconciler/core/loader"
	"idm-reconciler/core/logger"
	"idm-reconciler/core/middleware/auth"
	"idm-reconciler/core/middleware/metrics"
	"idm-reconciler/core/middleware/rayid"
	"idm-reconciler/core/server"

	"idm-reconciler/feature/connector"
	"idm-reconciler/feature/integrity"
	"idm-reconciler/feature/reconciliation"
	"idm-reconciler/feature/remediation"
	"idm-reconciler/feature/resource"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation server",
	Long:  `Starts the HTTP server and loads every enabled feature.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()
		logg := rt.logger
		zap.ReplaceGlobals(logg)
		cfg := rt.cfg

		app := server.NewApp(cfg.Server, logg)

		mgr := loader.NewManager(logg)
		mgr.Register(connector.NewFeature(rt.core))
		mgr.Register(resource.NewFeature(rt.core))
		mgr.Register(reconciliation.NewFeature(rt.core))
		mgr.Register(remediation.NewFeature(rt.core))
		mgr.Register(integrity.NewFeature(rt.core, rt.db))

		// RayID first so every log line below carries it.
		app.Use(rayid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRequest(logg, c, cfg.Server.Domain, cfg.Server.AdminUser)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		app.Use(metrics.New())
		app.Get("/metrics", metrics.Handler())

		app.Use(auth.New(auth.Config{
			ApiKey:   cfg.Server.ApiKey,
			Domain:   cfg.Server.Domain,
			Username: cfg.Server.AdminUser,
			Public:   []string{"/metrics"},
		}))

		if err := mgr.LoadAll(app); err != nil {
			return fmt.Errorf("failed to load features: %w", err)
		}

		errs := make(chan error, 1)
		go func() {
			logg.Info("Starting server", zap.String("address", cfg.Server.Address()))
			errs <- app.Listen(cfg.Server.Address())
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-errs:
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
		}

		logg.Info("Shutting down server...")
		return app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
