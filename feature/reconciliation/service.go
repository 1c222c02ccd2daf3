package reconciliation

import (
	"bytes"
	"context"
	"io"
	"slices"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/connid/csvstream"
	"idm-reconciler/core/engine"
	"idm-reconciler/core/model"
	"idm-reconciler/core/provisioning"
	"idm-reconciler/core/reconcile"
	"idm-reconciler/core/reqctx"
	"idm-reconciler/core/storage"
	"idm-reconciler/core/store"

	"go.uber.org/zap"
)

// StreamPushRequest selects the entities written to a CSV stream.
type StreamPushRequest struct {
	AnyType string `json:"anyType"`
	// Realm restricts the entities to a subtree; empty means /.
	Realm string `json:"realm,omitempty"`
	// Keys restricts the entities to the given keys; empty means all.
	Keys []string              `json:"keys,omitempty"`
	Spec csvstream.Spec        `json:"spec"`
	Task provisioning.PushTask `json:"task"`
}

// StreamPullRequest describes a CSV stream to import.
type StreamPullRequest struct {
	AnyType string                `json:"anyType"`
	Spec    csvstream.Spec        `json:"spec"`
	Task    provisioning.PullTask `json:"task"`
}

// PlanRequest selects the provision to reconcile as a whole.
type PlanRequest struct {
	ResourceKey string `json:"resource"`
	AnyType     string `json:"anyType"`
	// Realm receives entities pulled from orphan objects; empty means /.
	Realm  string `json:"realm,omitempty"`
	Push   bool   `json:"push"`
	Pull   bool   `json:"pull"`
	Purge  bool   `json:"purge"`
	DryRun bool   `json:"dryRun"`
}

// Options returns the reconcile options of req.
func (r PlanRequest) Options(confirmed bool) reconcile.ReconcileOptions {
	return reconcile.ReconcileOptions{
		DoPush:    r.Push,
		DoPull:    r.Pull,
		DoPurge:   r.Purge,
		DryRun:    r.DryRun,
		Confirmed: confirmed,
	}
}

// Run is a planned full reconciliation, ready to be applied.
type Run struct {
	spec *reconcile.Spec
	Plan *reconcile.ReconcilePlan
}

// Service computes reconciliation status and runs push and pull.
type Service struct {
	core   *engine.Core
	logger *zap.Logger
}

// NewService creates a new reconciliation service.
func NewService(core *engine.Core) *Service {
	return &Service{core: core, logger: core.Logger}
}

// Status computes the three-way status of query.
func (s *Service) Status(ctx context.Context, query reconcile.ReconQuery) (*model.ReconStatus, error) {
	var status *model.ReconStatus
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		if err := s.authorize(ctx, reqctx.ResourceGetConnObject, query.ResourceKey); err != nil {
			return err
		}
		var err error
		status, err = s.core.Status.Status(ctx, query)
		return err
	})
	if err != nil {
		return nil, connid.Classify(err)
	}
	return status, nil
}

// Push propagates the entity or linked account query resolves to. FAILURE reports are
// also returned combined as a Reconciliation error.
func (s *Service) Push(ctx context.Context, query reconcile.ReconQuery, task provisioning.PushTask) ([]provisioning.ProvisioningReport, error) {
	var reports []provisioning.ProvisioningReport
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		b, conn, err := s.resolve(ctx, reqctx.TaskExecute, query.ResourceKey, query.AnyTypeKey)
		if err != nil {
			return err
		}
		status, err := s.core.Status.Status(ctx, query)
		if err != nil {
			return err
		}
		target, err := s.target(ctx, b, query, status)
		if err != nil {
			return err
		}
		reports = append(reports, s.core.Pusher.Push(ctx, b, conn, target, task))
		return nil
	})
	if err != nil {
		return nil, connid.Classify(err)
	}

	s.logger.Info("Push by query completed",
		zap.String("resource", query.ResourceKey),
		zap.String("anyType", query.AnyTypeKey),
		zap.String("status", string(reports[0].Status)))
	return reports, provisioning.Failures(reports)
}

func (s *Service) target(ctx context.Context, b *store.Binding, query reconcile.ReconQuery, status *model.ReconStatus) (provisioning.Target, error) {
	if status.AnyKey == "" {
		return provisioning.Target{}, clienterr.Newf(clienterr.NotFound,
			"no %s matching %s on Resource %s", b.AnyType.Key, query.ConnObjectKeyValue, b.Resource.Key)
	}
	owner, err := s.core.Store.FindAny(ctx, status.AnyKey)
	if err != nil {
		return provisioning.Target{}, err
	}
	if owner == nil {
		return provisioning.Target{}, clienterr.Newf(clienterr.NotFound, "%s %s", b.AnyType.Key, status.AnyKey)
	}
	if status.MatchType != model.MatchLinkedAccount {
		return provisioning.Target{Any: owner}, nil
	}

	accounts, err := s.core.Store.FindLinkedAccounts(ctx, b.Resource.Key, query.ConnObjectKeyValue, b.Provision.IgnoreCaseMatch)
	if err != nil {
		return provisioning.Target{}, err
	}
	if len(accounts) == 0 {
		return provisioning.Target{}, clienterr.Newf(clienterr.NotFound,
			"linked account %s on Resource %s", query.ConnObjectKeyValue, b.Resource.Key)
	}
	return provisioning.Target{Any: owner, Account: &accounts[0]}, nil
}

// Pull imports the objects query resolves to. Without connObjectKeyValue the value is
// read from the remote object of the entity anyKey.
func (s *Service) Pull(ctx context.Context, query reconcile.ReconQuery, task provisioning.PullTask) ([]provisioning.ProvisioningReport, error) {
	var reports []provisioning.ProvisioningReport
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		b, conn, err := s.resolve(ctx, reqctx.TaskExecute, query.ResourceKey, query.AnyTypeKey)
		if err != nil {
			return err
		}
		if err := reqctx.Authorize(ctx, reqctx.TaskExecute, destination(task.DestinationRealm)); err != nil {
			return err
		}

		keyAttrName := b.KeyItem.ExtAttrName
		keyValue := query.ConnObjectKeyValue
		if keyValue == "" {
			status, err := s.core.Status.Status(ctx, reconcile.ReconQuery{
				AnyTypeKey:  query.AnyTypeKey,
				ResourceKey: query.ResourceKey,
				AnyKey:      query.AnyKey,
			})
			if err != nil {
				return err
			}
			values, _ := status.OnResource.Attr(keyAttrName)
			if len(values) == 0 {
				return clienterr.Newf(clienterr.NotFound,
					"object of %s %s on Resource %s", query.AnyTypeKey, query.AnyKey, query.ResourceKey)
			}
			keyValue = values[0]
		}

		reports, err = s.core.Puller.Pull(ctx, b, conn, keyAttrName, keyValue, "", task)
		return err
	})
	if err != nil {
		return nil, connid.Classify(err)
	}
	return reports, provisioning.Failures(reports)
}

// PullAll runs a full, filtered or incremental pull of the provision of anyType.
// Each change commits on its own.
func (s *Service) PullAll(ctx context.Context, resourceKey, anyType string, task provisioning.PullTask) ([]provisioning.ProvisioningReport, error) {
	var (
		b    *store.Binding
		conn connid.Connector
	)
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		var err error
		b, conn, err = s.resolve(ctx, reqctx.TaskExecute, resourceKey, anyType)
		if err != nil {
			return err
		}
		return reqctx.Authorize(ctx, reqctx.TaskExecute, destination(task.DestinationRealm))
	})
	if err != nil {
		return nil, connid.Classify(err)
	}

	reports, err := s.core.Puller.PullAll(ctx, b, conn, task)
	if err != nil {
		return reports, connid.Classify(err)
	}
	return reports, provisioning.Failures(reports)
}

// PushStream writes the selected entities as CSV to w.
func (s *Service) PushStream(ctx context.Context, req StreamPushRequest, w io.Writer) ([]provisioning.ProvisioningReport, error) {
	realm := destination(req.Realm)
	if err := reqctx.Authorize(ctx, reqctx.TaskExecute, realm); err != nil {
		return nil, err
	}
	rc, err := reqctx.From(ctx)
	if err != nil {
		return nil, err
	}

	var (
		anyType *model.AnyType
		anys    []*model.Any
	)
	err = s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		var err error
		if anyType, err = s.anyType(ctx, req.AnyType); err != nil {
			return err
		}
		list, err := s.core.Store.ListAnys(ctx, anyType.Key, rc.EffectiveRealms(reqctx.AnyTypeEntitlement(anyType.Key, "READ")))
		if err != nil {
			return err
		}
		for i := range list {
			if !reqctx.RealmContains(realm, list[i].RealmPath) {
				continue
			}
			if len(req.Keys) > 0 && !slices.Contains(req.Keys, list[i].Key) {
				continue
			}
			anys = append(anys, &list[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.core.Streamer.PushStream(ctx, anyType, anys, req.Spec, req.Task, w)
}

// PushStreamToObject writes the CSV to object in the configured bucket.
func (s *Service) PushStreamToObject(ctx context.Context, req StreamPushRequest, object string) ([]provisioning.ProvisioningReport, error) {
	objects, err := s.objects()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	reports, err := s.PushStream(ctx, req, &buf)
	if err != nil {
		return reports, err
	}
	info, err := objects.Save(ctx, object, buf.Bytes())
	if err != nil {
		return reports, err
	}

	s.logger.Info("CSV stream stored",
		zap.String("bucket", objects.Bucket()), zap.String("object", object), zap.Int64("size", info.Size))
	return reports, nil
}

// PullStream imports the CSV rows of r.
func (s *Service) PullStream(ctx context.Context, req StreamPullRequest, r io.Reader) ([]provisioning.ProvisioningReport, error) {
	if err := reqctx.Authorize(ctx, reqctx.TaskExecute, destination(req.Task.DestinationRealm)); err != nil {
		return nil, err
	}

	var reports []provisioning.ProvisioningReport
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		anyType, err := s.anyType(ctx, req.AnyType)
		if err != nil {
			return err
		}
		reports, err = s.core.Streamer.PullStream(ctx, anyType, r, req.Spec, req.Task)
		return err
	})
	return reports, err
}

// PullStreamFromObject imports the CSV stored as object in the configured bucket.
func (s *Service) PullStreamFromObject(ctx context.Context, req StreamPullRequest, object string) ([]provisioning.ProvisioningReport, error) {
	objects, err := s.objects()
	if err != nil {
		return nil, err
	}
	r, err := objects.Open(ctx, object)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return s.PullStream(ctx, req, r)
}

// Plan reconciles a whole provision and plans the actions req.Options allow.
func (s *Service) Plan(ctx context.Context, req PlanRequest) (*Run, error) {
	var (
		b    *store.Binding
		conn connid.Connector
	)
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		var err error
		b, conn, err = s.resolve(ctx, reqctx.TaskExecute, req.ResourceKey, req.AnyType)
		return err
	})
	if err != nil {
		return nil, connid.Classify(err)
	}

	spec := &reconcile.Spec{
		Adapter:  NewProvisionAdapter(s.core, b, conn, req.Realm),
		CacheTTL: s.core.Provisioning.IndexCacheTTL(),
	}
	plan, err := reconcile.ReconcileWithPlan(ctx, spec, req.Options(false))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reconciliation planned",
		zap.String("provision", spec.Adapter.Name()),
		zap.Int("items", plan.Summary.TotalItems),
		zap.Int("actions", len(plan.Actions)))
	return &Run{spec: spec, Plan: plan}, nil
}

// Apply executes the actions of run when opts is confirmed and not a dry run.
func (s *Service) Apply(ctx context.Context, run *Run, opts reconcile.ReconcileOptions) (int, error) {
	executed, err := reconcile.ApplyPlan(ctx, run.spec, run.Plan, opts)
	if err != nil {
		s.logger.Warn("Reconciliation actions failed",
			zap.String("provision", run.spec.Adapter.Name()), zap.Int("executed", executed), zap.Error(err))
		return executed, clienterr.Wrap(clienterr.Reconciliation, err)
	}
	return executed, nil
}

// resolve checks entitlement on the connector realm of resourceKey and returns the
// binding of anyType with its connector.
func (s *Service) resolve(ctx context.Context, entitlement, resourceKey, anyType string) (*store.Binding, connid.Connector, error) {
	if err := s.authorize(ctx, entitlement, resourceKey); err != nil {
		return nil, nil, err
	}
	return s.core.Status.Binding(ctx, anyType, resourceKey)
}

func (s *Service) authorize(ctx context.Context, entitlement, resourceKey string) error {
	res, err := s.core.Store.FindResource(ctx, resourceKey)
	if err != nil {
		return err
	}
	if res == nil {
		return clienterr.Newf(clienterr.NotFound, "Resource %s", resourceKey)
	}
	ci, err := s.core.Store.FindConnInstance(ctx, res.ConnectorKey)
	if err != nil {
		return err
	}
	if ci == nil {
		return clienterr.Newf(clienterr.NotFound, "Connector %s", res.ConnectorKey)
	}
	return reqctx.Authorize(ctx, entitlement, ci.AdminRealm)
}

func (s *Service) anyType(ctx context.Context, key string) (*model.AnyType, error) {
	anyType, err := s.core.Store.FindAnyType(ctx, key)
	if err != nil {
		return nil, err
	}
	if anyType == nil {
		return nil, clienterr.Newf(clienterr.NotFound, "AnyType %s", key)
	}
	return anyType, nil
}

func (s *Service) objects() (*storage.Objects, error) {
	if s.core.Objects == nil {
		return nil, clienterr.New(clienterr.Configuration, "object storage is not configured")
	}
	return s.core.Objects, nil
}

func destination(realm string) string {
	if realm == "" {
		return reqctx.RootRealm
	}
	return realm
}
