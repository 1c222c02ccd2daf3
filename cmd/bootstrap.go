package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"idm-reconciler/core/config"
	"idm-reconciler/core/database"
	"idm-reconciler/core/engine"
	"idm-reconciler/core/logger"
	"idm-reconciler/core/reqctx"
	"idm-reconciler/core/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime is what every command needs: configuration, logger and the wired core.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	core   *engine.Core
}

// bootstrap loads the configuration, connects the database and wires the core.
// Object storage is optional: an empty endpoint leaves it disabled.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	}

	objects, err := openObjects(ctx, cfg.Storage, logg)
	if err != nil {
		return nil, err
	}

	core, err := engine.New(db, engine.Options{
		Database:     cfg.Database,
		Provisioning: cfg.Provisioning,
		Connector:    cfg.Connector,
	}, objects, logg)
	if err != nil {
		return nil, fmt.Errorf("failed to build core: %w", err)
	}

	return &runtime{cfg: cfg, logger: logg, db: db, core: core}, nil
}

func openObjects(ctx context.Context, cfg storage.Config, logg *zap.Logger) (*storage.Objects, error) {
	if cfg.Endpoint == "" {
		logg.Info("Object storage disabled")
		return nil, nil
	}
	client, err := storage.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	objects := storage.NewObjects(client, cfg.Bucket)
	if err := objects.EnsureBucket(ctx); err != nil {
		// The bucket is only needed by stream commands; report and keep going.
		logg.Warn("Object storage unavailable", zap.String("bucket", cfg.Bucket), zap.Error(err))
	}
	return objects, nil
}

// admin binds the configured admin caller to ctx.
func (r *runtime) admin(ctx context.Context) (context.Context, context.CancelFunc) {
	rc := reqctx.New(r.cfg.Server.Domain, r.cfg.Server.AdminUser, reqctx.ParseLocale("")).
		Grant(reqctx.AnyEntitlement, reqctx.RootRealm)
	return reqctx.Acquire(ctx, rc)
}

func (r *runtime) close() {
	_ = r.logger.Sync()
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// withAdmin bootstraps the runtime and runs fn as the configured admin.
func withAdmin(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, release := rt.admin(cmd.Context())
	defer release()
	return fn(ctx, rt)
}

// saveJSON writes v to a timestamped file named after prefix.
func saveJSON(l *zap.Logger, prefix string, v any) (string, error) {
	filename := fmt.Sprintf("%s_%d.json", prefix, time.Now().Unix())
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save JSON file: %w", err)
	}
	l.Info("Detailed JSON report saved", zap.String("file", filename))
	return filename, nil
}
