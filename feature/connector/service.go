package connector

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/engine"
	"idm-reconciler/core/metrics"
	"idm-reconciler/core/model"
	"idm-reconciler/core/reqctx"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Check outcomes.
const (
	Reachable   = "REACHABLE"
	Unreachable = "UNREACHABLE"
	Failure     = "FAILURE"
)

// CheckResult is the outcome of checking one connector.
type CheckResult struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

// Service manages connector instances.
type Service struct {
	core   *engine.Core
	logger *zap.Logger
}

// NewService creates a new connector service.
func NewService(core *engine.Core) *Service {
	return &Service{core: core, logger: core.Logger}
}

// Bundles lists the available connector bundles.
func (s *Service) Bundles(ctx context.Context) ([]connid.BundleInfo, error) {
	rc, err := reqctx.From(ctx)
	if err != nil {
		return nil, err
	}
	if len(rc.EffectiveRealms(reqctx.ConnectorRead)) == 0 {
		return nil, clienterr.Newf(clienterr.DelegatedAdministration, "%s not owned by %s", reqctx.ConnectorRead, rc.Username)
	}
	return s.core.Connectors.Registry().Bundles(), nil
}

// Create stores a new connector. An empty key is generated.
func (s *Service) Create(ctx context.Context, ci *model.ConnInstance) (*model.ConnInstance, error) {
	if err := reqctx.Authorize(ctx, reqctx.ConnectorCreate, ci.AdminRealm); err != nil {
		return nil, err
	}
	if ci.Key == "" {
		ci.Key = uuid.NewString()
	}

	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		existing, err := s.core.Store.FindConnInstance(ctx, ci.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			return clienterr.Newf(clienterr.InvalidValues, "Connector %s already exists", ci.Key)
		}
		if err := s.validate(ctx, ci); err != nil {
			return err
		}
		return s.core.Store.SaveConnInstance(ctx, ci)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Connector created", zap.String("connector", ci.Key), zap.String("bundle", ci.BundleName))
	return ci, nil
}

// Read loads a connector.
func (s *Service) Read(ctx context.Context, key string) (*model.ConnInstance, error) {
	var ci *model.ConnInstance
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		var err error
		ci, err = s.find(ctx, key)
		if err != nil {
			return err
		}
		return reqctx.Authorize(ctx, reqctx.ConnectorRead, ci.AdminRealm)
	})
	if err != nil {
		return nil, err
	}
	return ci, nil
}

// ReadByResource loads the connector bound to a resource.
func (s *Service) ReadByResource(ctx context.Context, resourceKey string) (*model.ConnInstance, error) {
	var ci *model.ConnInstance
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		res, err := s.core.Store.FindResource(ctx, resourceKey)
		if err != nil {
			return err
		}
		if res == nil {
			return clienterr.Newf(clienterr.NotFound, "Resource %s", resourceKey)
		}
		if ci, err = s.find(ctx, res.ConnectorKey); err != nil {
			return err
		}
		return reqctx.Authorize(ctx, reqctx.ConnectorRead, ci.AdminRealm)
	})
	if err != nil {
		return nil, err
	}
	return ci, nil
}

// List returns the connectors visible to the caller.
func (s *Service) List(ctx context.Context) ([]model.ConnInstance, error) {
	rc, err := reqctx.From(ctx)
	if err != nil {
		return nil, err
	}
	var list []model.ConnInstance
	err = s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		list, err = s.core.Store.ListConnInstances(ctx, rc.EffectiveRealms(reqctx.ConnectorRead))
		return err
	})
	return list, err
}

// Update replaces a connector. The caller needs the entitlement on both the current
// and the new admin realm.
func (s *Service) Update(ctx context.Context, ci *model.ConnInstance) (*model.ConnInstance, error) {
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		existing, err := s.find(ctx, ci.Key)
		if err != nil {
			return err
		}
		if err := reqctx.Authorize(ctx, reqctx.ConnectorUpdate, existing.AdminRealm); err != nil {
			return err
		}
		if err := reqctx.Authorize(ctx, reqctx.ConnectorUpdate, ci.AdminRealm); err != nil {
			return err
		}
		if err := s.validate(ctx, ci); err != nil {
			return err
		}
		return s.core.Store.SaveConnInstance(ctx, ci)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Connector updated", zap.String("connector", ci.Key))
	return ci, nil
}

// Delete removes a connector no resource is bound to.
func (s *Service) Delete(ctx context.Context, key string) (*model.ConnInstance, error) {
	var ci *model.ConnInstance
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		var err error
		if ci, err = s.find(ctx, key); err != nil {
			return err
		}
		if err := reqctx.Authorize(ctx, reqctx.ConnectorDelete, ci.AdminRealm); err != nil {
			return err
		}

		resources, err := s.core.Store.ResourceKeysByConnector(ctx, key)
		if err != nil {
			return err
		}
		if len(resources) > 0 {
			return clienterr.New(clienterr.AssociatedResources, resources...)
		}
		return s.core.Store.DeleteConnInstance(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Connector deleted", zap.String("connector", key))
	return ci, nil
}

// Check builds ci without storing it and tests the connection. Failures propagate.
func (s *Service) Check(ctx context.Context, ci *model.ConnInstance) error {
	if err := reqctx.Authorize(ctx, reqctx.ConnectorRead, ci.AdminRealm); err != nil {
		return err
	}
	conn, err := s.core.Connectors.NewConnector(ci, nil)
	if err != nil {
		return connid.Classify(err)
	}
	return connid.Classify(conn.Test(ctx))
}

// CheckAll tests every visible connector with bounded parallelism. Each check is
// time-boxed: a timeout reports UNREACHABLE, any other error FAILURE.
func (s *Service) CheckAll(ctx context.Context) ([]CheckResult, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, len(list))
	g, gctx := errgroup.WithContext(ctx)
	if pool := s.core.Connector.CheckPoolSize; pool > 0 {
		g.SetLimit(pool)
	}
	for i := range list {
		i := i
		ci := list[i]
		g.Go(func() error {
			results[i] = s.checkOne(gctx, &ci)
			metrics.ObserveConnectorCheck(results[i].Status)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Service) checkOne(ctx context.Context, ci *model.ConnInstance) CheckResult {
	result := CheckResult{Key: ci.Key, DisplayName: ci.DisplayName, Status: Reachable}

	if timeout := s.core.Connector.CheckTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := s.test(ctx, ci)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Status = Unreachable
		result.Message = err.Error()
	default:
		result.Status = Failure
		result.Message = err.Error()
	}
	if err != nil {
		s.logger.Warn("Connector check failed",
			zap.String("connector", ci.Key), zap.String("status", result.Status), zap.Error(err))
	}
	return result
}

func (s *Service) test(ctx context.Context, ci *model.ConnInstance) error {
	conn, err := s.core.Connectors.NewConnector(ci, nil)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- conn.Test(ctx) }()

	// a bundle ignoring ctx must not hold the pool slot past the deadline
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload drops every cached connector so that the next use rebuilds it.
func (s *Service) Reload(ctx context.Context) (int, error) {
	if err := reqctx.Authorize(ctx, reqctx.ConnectorReload, reqctx.RootRealm); err != nil {
		return 0, err
	}
	return s.core.Connectors.Reload(), nil
}

// Schema lists the object classes the connector exposes.
func (s *Service) Schema(ctx context.Context, key string) ([]connid.ObjectClassInfo, error) {
	ci, err := s.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	conn, err := s.core.Connectors.NewConnector(ci, nil)
	if err != nil {
		return nil, connid.Classify(err)
	}
	sp, ok := conn.(connid.SchemaProvider)
	if !ok {
		return nil, clienterr.Newf(clienterr.Connector, "connector %s cannot describe its schema", key)
	}
	infos, err := sp.Schema(ctx)
	if err != nil {
		return nil, connid.Classify(err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos, nil
}

func (s *Service) find(ctx context.Context, key string) (*model.ConnInstance, error) {
	ci, err := s.core.Store.FindConnInstance(ctx, key)
	if err != nil {
		return nil, err
	}
	if ci == nil {
		return nil, clienterr.Newf(clienterr.NotFound, "Connector %s", key)
	}
	return ci, nil
}

func (s *Service) validate(ctx context.Context, ci *model.ConnInstance) error {
	if strings.TrimSpace(ci.DisplayName) == "" {
		return clienterr.New(clienterr.InvalidValues, "displayName is required")
	}
	if !strings.HasPrefix(ci.AdminRealm, "/") {
		return clienterr.Newf(clienterr.InvalidRealm, "invalid admin realm %q", ci.AdminRealm)
	}
	if ci.AdminRealm != reqctx.RootRealm {
		realm, err := s.core.Store.FindRealm(ctx, ci.AdminRealm)
		if err != nil {
			return err
		}
		if realm == nil {
			return clienterr.Newf(clienterr.InvalidRealm, "admin realm %s does not exist", ci.AdminRealm)
		}
	}

	known := false
	for _, b := range s.core.Connectors.Registry().Bundles() {
		if b.Name == ci.BundleName {
			known = true
			if ci.ConnectorName == "" {
				ci.ConnectorName = b.ConnectorName
			}
			if ci.Version == "" {
				ci.Version = b.Version
			}
		}
	}
	if !known {
		return clienterr.Newf(clienterr.NotFound, "Bundle %s", ci.BundleName)
	}
	if ci.ConnRequestTimeout < 0 {
		return clienterr.New(clienterr.InvalidValues, "connRequestTimeout must not be negative")
	}
	ci.LastChange = time.Now()
	return nil
}
