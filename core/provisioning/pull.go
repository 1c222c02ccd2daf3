package provisioning

import (
	"context"
	"encoding/json"
	"time"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/mapping"
	"idm-reconciler/core/match"
	"idm-reconciler/core/metrics"
	"idm-reconciler/core/model"
	"idm-reconciler/core/store"
	"idm-reconciler/core/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PullStore is the persistence used by the pull executor.
type PullStore interface {
	LogicStore
	SaveLinkedAccount(ctx context.Context, la *model.LinkedAccount) error
	DeleteLinkedAccount(ctx context.Context, key string) error
	SaveRemediation(ctx context.Context, r *model.Remediation) error
	UpdateSyncToken(ctx context.Context, resourceKey, anyType, token string) error
}

// Puller imports external objects as internal entities.
type Puller struct {
	store   PullStore
	mapping *mapping.Engine
	inbound *match.Inbound
	logic   LogicTable
	actions *Actions
	logger  *zap.Logger
}

// NewPuller creates a pull executor.
func NewPuller(st PullStore, engine *mapping.Engine, inbound *match.Inbound, logic LogicTable, actions *Actions, logger *zap.Logger) *Puller {
	return &Puller{store: st, mapping: engine, inbound: inbound, logic: logic, actions: actions, logger: logger}
}

// Pull reads the objects whose keyAttrName equals keyValue and processes each one as a
// CREATE_OR_UPDATE delta. A non-empty realm overrides the task destination realm.
func (p *Puller) Pull(
	ctx context.Context,
	b *store.Binding,
	conn connid.Connector,
	keyAttrName, keyValue, realm string,
	task PullTask,
) ([]ProvisioningReport, error) {
	if realm != "" {
		task.DestinationRealm = realm
	}

	filter := connid.Equals(keyAttrName, keyValue)
	if b.Provision.IgnoreCaseMatch {
		filter = connid.EqualsIgnoreCase(keyAttrName, keyValue)
	}
	objs, err := p.search(ctx, b, conn, filter)
	if err != nil {
		return nil, err
	}

	var reports []ProvisioningReport
	for _, obj := range objs {
		reports = append(reports, p.HandleDelta(ctx, b, objectDelta(obj), task)...)
	}
	return reports, nil
}

// PullAll runs a full, filtered or incremental pull of the object class of b.
// Full pulls store the latest sync token when the connector can sync; incremental pulls
// store the token of the last processed delta. Dry runs never move the stored token.
func (p *Puller) PullAll(ctx context.Context, b *store.Binding, conn connid.Connector, task PullTask) ([]ProvisioningReport, error) {
	start := time.Now()
	oc := connid.ObjectClass(b.Provision.ObjectClass)

	var reports []ProvisioningReport
	switch task.PullMode {
	case PullIncremental:
		var deltas []*connid.SyncDelta
		token, err := conn.Sync(ctx, oc, connid.SyncToken(b.Provision.SyncToken), func(d *connid.SyncDelta) bool {
			deltas = append(deltas, d)
			return true
		}, connid.OperationOptions{AttributesToGet: match.AttrsToGet(b.Provision, connid.AttrEnable)})
		if err != nil {
			return nil, err
		}
		for _, d := range deltas {
			reports = append(reports, p.HandleDelta(ctx, b, d, task)...)
		}
		if !task.DryRun {
			if err := p.saveToken(ctx, b, token); err != nil {
				return reports, err
			}
		}

	case PullFullReconciliation, PullFiltered, "":
		var filter *connid.Filter
		if task.PullMode == PullFiltered {
			if task.Filter == nil {
				return nil, clienterr.New(clienterr.InvalidValues, "filtered pull requires a filter")
			}
			filter = task.Filter
		}
		objs, err := p.search(ctx, b, conn, filter)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			reports = append(reports, p.HandleDelta(ctx, b, objectDelta(obj), task)...)
		}
		if task.PullMode != PullFiltered && conn.Capabilities()[connid.CapSync] && !task.DryRun {
			token, err := conn.LatestSyncToken(ctx, oc)
			if err != nil {
				return reports, err
			}
			if err := p.saveToken(ctx, b, token); err != nil {
				return reports, err
			}
		}

	default:
		return nil, clienterr.Newf(clienterr.InvalidValues, "unknown pull mode %s", task.PullMode)
	}

	metrics.ObserveReconciliation(b.Resource.Key, time.Since(start))
	p.logger.Info("Pull completed",
		zap.String("resource", b.Resource.Key),
		zap.String("anyType", b.AnyType.Key),
		zap.String("mode", string(task.PullMode)),
		zap.Int("reports", len(reports)))
	return reports, nil
}

func (p *Puller) saveToken(ctx context.Context, b *store.Binding, token connid.SyncToken) error {
	if err := p.store.UpdateSyncToken(ctx, b.Resource.Key, b.AnyType.Key, string(token)); err != nil {
		return err
	}
	b.Provision.SyncToken = string(token)
	return nil
}

func (p *Puller) search(ctx context.Context, b *store.Binding, conn connid.Connector, filter *connid.Filter) ([]*connid.ConnectorObject, error) {
	var objs []*connid.ConnectorObject
	_, err := conn.Search(ctx, connid.ObjectClass(b.Provision.ObjectClass), filter, connid.Collector(&objs, 0),
		connid.OperationOptions{AttributesToGet: match.AttrsToGet(b.Provision, connid.AttrEnable)})
	if err != nil {
		return nil, err
	}
	return objs, nil
}

func objectDelta(obj *connid.ConnectorObject) *connid.SyncDelta {
	return &connid.SyncDelta{Type: connid.DeltaCreateOrUpdate, UID: obj.UID, Object: obj}
}

type pullRun struct {
	*Puller
	b       *store.Binding
	task    PullTask
	delta   *connid.SyncDelta
	actions []PullAction
}

// HandleDelta processes one delta and returns its report. With more than one candidate
// only the first is used; the inbound matcher logs the ambiguity.
func (p *Puller) HandleDelta(ctx context.Context, b *store.Binding, delta *connid.SyncDelta, task PullTask) []ProvisioningReport {
	run := &pullRun{Puller: p, b: b, task: task, delta: delta}

	actions, err := p.actions.Pull(task.Actions)
	if err != nil {
		report := run.newReport()
		report.fail(err)
		return []ProvisioningReport{*report}
	}
	run.actions = actions

	matches, err := p.inbound.Match(ctx, delta, b.AnyType.Kind, b.Provision)
	if err != nil {
		report := run.newReport()
		report.fail(err)
		run.observe(report, time.Now())
		return []ProvisioningReport{*report}
	}

	if len(matches) == 0 {
		return []ProvisioningReport{run.process(ctx, nil)}
	}
	return []ProvisioningReport{run.process(ctx, &matches[0])}
}

func (r *pullRun) newReport() *ProvisioningReport {
	report := &ProvisioningReport{
		AnyType:   r.b.AnyType.Key,
		UIDValue:  r.delta.UID,
		Operation: OperationNone,
	}
	if r.delta.Object != nil {
		report.Name = r.delta.Object.Name
	}
	return report
}

func (r *pullRun) observe(report *ProvisioningReport, start time.Time) {
	metrics.ObserveReport(metrics.DirectionPull, string(report.Operation), r.b.Resource.Key, string(report.Status), time.Since(start))
}

func (r *pullRun) process(ctx context.Context, m *match.Match) ProvisioningReport {
	start := time.Now()
	report := r.newReport()
	pc := &PullContext{Binding: r.b, Delta: r.delta}
	if m != nil {
		pc.Any, pc.Account = m.Any, m.Account
		if m.Any != nil {
			report.Key, report.Name = m.Any.Key, m.Any.Name
		} else {
			report.Key = m.Account.Key
		}
	}

	var err error
	switch {
	case r.delta.Type == connid.DeltaDelete:
		err = r.deleted(ctx, pc, report)
	case m == nil:
		err = r.unmatched(ctx, pc, report)
	default:
		err = r.matched(ctx, pc, report)
	}

	if err != nil {
		for _, action := range r.actions {
			action.OnError(ctx, pc, err)
		}
		report.fail(err)
		r.logger.Warn("Pull failed",
			zap.String("resource", r.b.Resource.Key),
			zap.String("anyType", r.b.AnyType.Key),
			zap.String("uid", r.delta.UID),
			zap.Error(err))
		if r.task.Remediation {
			r.remediate(ctx, pc, report, err)
		}
	}
	for _, action := range r.actions {
		action.After(ctx, pc, report)
	}
	r.observe(report, start)
	return *report
}

func (r *pullRun) kindLogic() (AnyLogic, error) {
	return r.logic.For(r.b.AnyType.Kind)
}

func (r *pullRun) deleted(ctx context.Context, pc *PullContext, report *ProvisioningReport) error {
	if pc.Any == nil && pc.Account == nil {
		report.ignore(OperationNone, "no internal counterpart to delete")
		return nil
	}
	if !r.task.PerformDelete {
		report.ignore(OperationDelete, "delete not allowed")
		return nil
	}
	for _, action := range r.actions {
		if err := action.BeforeDelete(ctx, pc); err != nil {
			return err
		}
	}
	if r.task.DryRun {
		report.ignore(OperationDelete, "dry run")
		return nil
	}

	if pc.Account != nil {
		if err := r.store.DeleteLinkedAccount(ctx, pc.Account.Key); err != nil {
			return err
		}
	} else {
		logic, err := r.kindLogic()
		if err != nil {
			return err
		}
		if err := logic.Delete(ctx, pc.Any); err != nil {
			return err
		}
	}
	report.success(OperationDelete)
	return nil
}

func (r *pullRun) unmatched(ctx context.Context, pc *PullContext, report *ProvisioningReport) error {
	switch r.task.UnmatchingRule {
	case UnmatchingIgnore, "":
		report.ignore(OperationNone, "no internal counterpart, unmatching rule %s", UnmatchingIgnore)
		return nil
	case UnmatchingAssign, UnmatchingProvision, UnmatchingUnlink:
	default:
		return clienterr.Newf(clienterr.InvalidValues, "unknown unmatching rule %s", r.task.UnmatchingRule)
	}

	if !r.task.PerformCreate {
		report.ignore(OperationCreate, "create not allowed")
		return nil
	}
	if r.delta.Object == nil {
		return clienterr.Newf(clienterr.InvalidValues, "delta %s carries no object", r.delta.UID)
	}

	pulled, err := r.mapping.ApplyPull(ctx, r.delta.Object, r.b.Provision)
	if err != nil {
		return err
	}
	a := &model.Any{
		Kind:       r.b.AnyType.Kind,
		Type:       r.b.AnyType.Key,
		Name:       pulled.Name,
		RealmPath:  r.task.DestinationRealm,
		Password:   pulled.Password,
		Status:     pulled.Status,
		PlainAttrs: pulled.Attrs,
	}
	if a.Name == "" {
		a.Name = r.delta.Object.Name
	}
	if r.task.UnmatchingRule == UnmatchingAssign {
		a.AssignResource(r.b.Resource.Key)
	}
	pc.Any = a

	for _, action := range r.actions {
		if err := action.BeforeCreate(ctx, pc); err != nil {
			return err
		}
	}
	report.Name = a.Name
	if r.task.DryRun {
		report.ignore(OperationCreate, "dry run")
		return nil
	}

	logic, err := r.kindLogic()
	if err != nil {
		return err
	}
	if err := logic.Create(ctx, a); err != nil {
		return err
	}
	report.Key = a.Key
	if err := r.mapping.RefreshVirAttrs(ctx, a, r.delta.Object, r.b.Provision); err != nil {
		return err
	}
	report.success(OperationCreate)
	return nil
}

func (r *pullRun) matched(ctx context.Context, pc *PullContext, report *ProvisioningReport) error {
	switch r.task.MatchingRule {
	case MatchingIgnore, "":
		report.ignore(OperationNone, "internal counterpart exists, matching rule %s", MatchingIgnore)
		return nil

	case MatchingUpdate:
		if !r.task.PerformUpdate {
			report.ignore(OperationUpdate, "update not allowed")
			return nil
		}
		return r.update(ctx, pc, report)

	case MatchingDeprovision, MatchingUnassign:
		if !r.task.PerformDelete {
			report.ignore(OperationDelete, "delete not allowed")
			return nil
		}
		for _, action := range r.actions {
			if err := action.BeforeDelete(ctx, pc); err != nil {
				return err
			}
		}
		if r.task.DryRun {
			report.ignore(OperationDelete, "dry run")
			return nil
		}
		if pc.Account != nil {
			if err := r.store.DeleteLinkedAccount(ctx, pc.Account.Key); err != nil {
				return err
			}
			report.success(OperationDelete)
			return nil
		}
		logic, err := r.kindLogic()
		if err != nil {
			return err
		}
		if err := logic.Unassign(ctx, pc.Any, r.b.Resource.Key); err != nil {
			return err
		}
		report.success(OperationDelete)
		return nil

	case MatchingLink, MatchingUnlink:
		if !r.task.PerformUpdate {
			report.ignore(OperationNone, "update not allowed")
			return nil
		}
		if pc.Account != nil {
			report.ignore(OperationNone, "linked accounts are always linked")
			return nil
		}
		if r.task.DryRun {
			report.ignore(OperationNone, "dry run")
			return nil
		}
		logic, err := r.kindLogic()
		if err != nil {
			return err
		}
		if r.task.MatchingRule == MatchingLink {
			err = logic.Link(ctx, pc.Any, r.b.Resource.Key)
		} else {
			err = logic.Unlink(ctx, pc.Any, r.b.Resource.Key)
		}
		if err != nil {
			return err
		}
		report.success(OperationNone)
		return nil
	}
	return clienterr.Newf(clienterr.InvalidValues, "unknown matching rule %s", r.task.MatchingRule)
}

func (r *pullRun) update(ctx context.Context, pc *PullContext, report *ProvisioningReport) error {
	if r.delta.Object == nil {
		return clienterr.Newf(clienterr.InvalidValues, "delta %s carries no object", r.delta.UID)
	}
	pulled, err := r.mapping.ApplyPull(ctx, r.delta.Object, r.b.Provision)
	if err != nil {
		return err
	}

	if pc.Account != nil {
		return r.updateAccount(ctx, pc, pulled, report)
	}

	updated := *pc.Any
	updated.PlainAttrs = pc.Any.PlainAttrs.Clone()
	if !applyPulled(&updated, pulled) {
		report.ignore(OperationNone, "unchanged")
		return r.mapping.RefreshVirAttrs(ctx, pc.Any, r.delta.Object, r.b.Provision)
	}
	pc.Any = &updated

	for _, action := range r.actions {
		if err := action.BeforeUpdate(ctx, pc); err != nil {
			return err
		}
	}
	if r.task.DryRun {
		report.ignore(OperationUpdate, "dry run")
		return nil
	}

	logic, err := r.kindLogic()
	if err != nil {
		return err
	}
	if err := logic.Update(ctx, pc.Any); err != nil {
		return err
	}
	if err := r.mapping.RefreshVirAttrs(ctx, pc.Any, r.delta.Object, r.b.Provision); err != nil {
		return err
	}
	report.Name = pc.Any.Name
	report.success(OperationUpdate)
	return nil
}

func (r *pullRun) updateAccount(ctx context.Context, pc *PullContext, pulled *mapping.Pulled, report *ProvisioningReport) error {
	account := *pc.Account
	account.PlainAttrs = pc.Account.PlainAttrs.Clone()
	if account.PlainAttrs == nil {
		account.PlainAttrs = model.Attrs{}
	}

	changed := false
	for name, values := range pulled.Attrs {
		if !utils.EqualStrings(account.PlainAttrs[name], values) {
			account.PlainAttrs[name] = values
			changed = true
		}
	}
	if pulled.Password != "" && pulled.Password != account.Password {
		account.Password = pulled.Password
		changed = true
	}
	if pulled.Status != "" {
		suspended := pulled.Status == model.StatusSuspended
		if suspended != account.Suspended {
			account.Suspended = suspended
			changed = true
		}
	}
	if !changed {
		report.ignore(OperationNone, "unchanged")
		return nil
	}
	pc.Account = &account

	for _, action := range r.actions {
		if err := action.BeforeUpdate(ctx, pc); err != nil {
			return err
		}
	}
	if r.task.DryRun {
		report.ignore(OperationUpdate, "dry run")
		return nil
	}
	if err := r.store.SaveLinkedAccount(ctx, pc.Account); err != nil {
		return err
	}
	report.success(OperationUpdate)
	return nil
}

// applyPulled overlays pulled onto a and reports whether anything changed.
func applyPulled(a *model.Any, pulled *mapping.Pulled) bool {
	changed := false
	if pulled.Name != "" && pulled.Name != a.Name {
		a.Name = pulled.Name
		changed = true
	}
	if pulled.Password != "" && pulled.Password != a.Password {
		a.Password = pulled.Password
		changed = true
	}
	if pulled.Status != "" && a.Kind == model.KindUser && pulled.Status != a.Status {
		a.Status = pulled.Status
		changed = true
	}
	if len(pulled.Attrs) > 0 && a.PlainAttrs == nil {
		a.PlainAttrs = model.Attrs{}
	}
	for name, values := range pulled.Attrs {
		if !utils.EqualStrings(a.PlainAttrs[name], values) {
			if len(values) == 0 {
				delete(a.PlainAttrs, name)
			} else {
				a.PlainAttrs[name] = values
			}
			changed = true
		}
	}
	return changed
}

// remediate stores the failed change for later replay; the payload is the entity the
// pull meant to write.
func (r *pullRun) remediate(ctx context.Context, pc *PullContext, report *ProvisioningReport, cause error) {
	op := report.Operation
	if op == OperationNone {
		switch {
		case r.delta.Type == connid.DeltaDelete:
			op = OperationDelete
		case pc.Any == nil || pc.Any.Key == "":
			op = OperationCreate
		default:
			op = OperationUpdate
		}
	}

	var payload []byte
	if pc.Any != nil {
		var err error
		if payload, err = json.Marshal(pc.Any); err != nil {
			r.logger.Error("Could not encode remediation payload", zap.Error(err))
			return
		}
	}

	remediation := &model.Remediation{
		Key:         uuid.NewString(),
		AnyType:     r.b.AnyType.Key,
		Operation:   string(op),
		Payload:     string(payload),
		Error:       cause.Error(),
		Instant:     time.Now().UTC(),
		ResourceKey: r.b.Resource.Key,
		RemoteName:  r.delta.UID,
	}
	if r.delta.Object != nil && r.delta.Object.Name != "" {
		remediation.RemoteName = r.delta.Object.Name
	}
	if err := r.store.SaveRemediation(ctx, remediation); err != nil {
		r.logger.Error("Could not save remediation",
			zap.String("resource", r.b.Resource.Key),
			zap.String("uid", r.delta.UID),
			zap.Error(err))
		return
	}
	report.Message = report.Message + " (remediation " + remediation.Key + ")"
}
