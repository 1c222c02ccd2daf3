package integrity

import (
	"context"

	"idm-reconciler/core/engine"
	"idm-reconciler/core/reqctx"
	"idm-reconciler/feature/connector"
	"idm-reconciler/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service handles integrity checks.
type Service struct {
	core       *engine.Core
	db         *gorm.DB
	connectors *connector.Service
	logger     *zap.Logger
}

// NewService creates a new integrity service.
func NewService(core *engine.Core, db *gorm.DB) *Service {
	return &Service{
		core:       core,
		db:         db,
		connectors: connector.NewService(core),
		logger:     core.Logger,
	}
}

// CheckSchema reports tables and columns missing from the database.
func (s *Service) CheckSchema(ctx context.Context) (*checks.SchemaReport, error) {
	if err := reqctx.Authorize(ctx, reqctx.IntegrityCheck, reqctx.RootRealm); err != nil {
		return nil, err
	}
	return checks.CheckSchema(s.db.WithContext(ctx))
}

// FixSchema migrates the drifted tables and returns what was fixed.
func (s *Service) FixSchema(ctx context.Context) (*checks.SchemaReport, error) {
	if err := reqctx.Authorize(ctx, reqctx.IntegrityFix, reqctx.RootRealm); err != nil {
		return nil, err
	}
	report, err := checks.CheckSchema(s.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if err := checks.FixSchema(s.db.WithContext(ctx), s.logger, report); err != nil {
		return nil, err
	}
	return report, nil
}

// CheckStorage reports the state of the stream bucket.
func (s *Service) CheckStorage(ctx context.Context) (*checks.StorageReport, error) {
	if err := reqctx.Authorize(ctx, reqctx.IntegrityCheck, reqctx.RootRealm); err != nil {
		return nil, err
	}
	return checks.CheckStorage(ctx, s.core.Objects)
}

// FixStorage creates the stream bucket when missing.
func (s *Service) FixStorage(ctx context.Context) error {
	if err := reqctx.Authorize(ctx, reqctx.IntegrityFix, reqctx.RootRealm); err != nil {
		return err
	}
	return checks.FixStorage(ctx, s.core.Objects, s.logger)
}

// CheckConnectors tests every connector instance the caller can read.
func (s *Service) CheckConnectors(ctx context.Context) ([]connector.CheckResult, error) {
	return s.connectors.CheckAll(ctx)
}
