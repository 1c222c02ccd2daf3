package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/mapping"
	"idm-reconciler/core/match"
	"idm-reconciler/core/metrics"
	"idm-reconciler/core/model"
	"idm-reconciler/core/store"
	"idm-reconciler/core/utils"

	"go.uber.org/zap"
)

// PushStore is the persistence used by the push executor.
type PushStore interface {
	LogicStore
	DeleteLinkedAccount(ctx context.Context, key string) error
}

// Target is what gets pushed: an entity, or a linked account of its owner.
type Target struct {
	Any     *model.Any
	Account *model.LinkedAccount
	// Password overrides the stored one.
	Password string
}

// Pusher propagates internal entities to resources.
type Pusher struct {
	store    PushStore
	mapping  *mapping.Engine
	outbound *match.Outbound
	logic    LogicTable
	actions  *Actions
	logger   *zap.Logger
}

// NewPusher creates a push executor.
func NewPusher(st PushStore, engine *mapping.Engine, outbound *match.Outbound, logic LogicTable, actions *Actions, logger *zap.Logger) *Pusher {
	return &Pusher{store: st, mapping: engine, outbound: outbound, logic: logic, actions: actions, logger: logger}
}

type pushRun struct {
	*Pusher
	b       *store.Binding
	conn    connid.Connector
	task    PushTask
	target  Target
	actions []PushAction
	report  *ProvisioningReport
}

// Push propagates target to the resource of b. Failures are reported, never returned.
func (p *Pusher) Push(ctx context.Context, b *store.Binding, conn connid.Connector, target Target, task PushTask) ProvisioningReport {
	start := time.Now()
	report := &ProvisioningReport{
		AnyType:   b.AnyType.Key,
		Operation: OperationNone,
	}
	if target.Any != nil {
		report.Key = target.Any.Key
		report.Name = target.Any.Name
	}
	if target.Account != nil {
		report.Key = target.Account.Key
		report.Name = target.Account.ConnObjectKeyValue
	}

	run := &pushRun{Pusher: p, b: b, conn: conn, task: task, target: target, report: report}
	pc := &PushContext{Binding: b, Any: target.Any, Account: target.Account, Password: target.Password}
	if err := run.execute(ctx, pc); err != nil {
		for _, action := range run.actions {
			action.OnError(ctx, pc, err)
		}
		report.fail(err)
		p.logger.Warn("Push failed",
			zap.String("resource", b.Resource.Key),
			zap.String("anyType", b.AnyType.Key),
			zap.String("key", report.Key),
			zap.Error(err))
	}
	for _, action := range run.actions {
		action.After(ctx, pc, report)
	}

	metrics.ObserveReport(metrics.DirectionPush, string(report.Operation), b.Resource.Key, string(report.Status), time.Since(start))
	return *report
}

func (r *pushRun) execute(ctx context.Context, pc *PushContext) error {
	if r.target.Any == nil {
		return clienterr.New(clienterr.InvalidValues, "nothing to push")
	}
	if r.target.Account != nil && r.b.AnyType.Kind != model.KindUser {
		return clienterr.New(clienterr.InvalidValues, "linked accounts belong to users")
	}

	actions, err := r.Pusher.actions.Push(r.task.Actions)
	if err != nil {
		return err
	}
	r.actions = actions

	var more []string
	if r.task.SyncStatus {
		more = append(more, connid.AttrEnable)
	}

	var objs []*connid.ConnectorObject
	if r.target.Account != nil {
		objs, err = r.outbound.MatchLinkedAccount(ctx, r.conn, r.target.Account, r.b.Provision, more...)
	} else {
		objs, err = r.outbound.Match(ctx, r.conn, r.target.Any, r.b.Provision, more...)
	}
	if err != nil {
		return err
	}

	if len(objs) == 0 {
		return r.unmatched(ctx, pc)
	}
	pc.Remote = objs[0]
	r.report.UIDValue = objs[0].UID
	return r.matched(ctx, pc)
}

func (r *pushRun) kindLogic() (AnyLogic, error) {
	return r.logic.For(r.target.Any.Kind)
}

func (r *pushRun) unmatched(ctx context.Context, pc *PushContext) error {
	switch r.task.UnmatchingRule {
	case UnmatchingIgnore, "":
		r.report.ignore(OperationNone, "no remote object, unmatching rule %s", UnmatchingIgnore)
		return nil

	case UnmatchingUnlink:
		if r.target.Account != nil {
			r.report.ignore(OperationNone, "linked accounts cannot be unlinked")
			return nil
		}
		if r.task.DryRun {
			r.report.ignore(OperationNone, "dry run")
			return nil
		}
		logic, err := r.kindLogic()
		if err != nil {
			return err
		}
		if err := logic.Unlink(ctx, r.target.Any, r.b.Resource.Key); err != nil {
			return err
		}
		r.report.success(OperationNone)
		return nil

	case UnmatchingAssign, UnmatchingProvision:
		if !r.task.PerformCreate {
			r.report.ignore(OperationCreate, "create not allowed")
			return nil
		}
		if err := r.create(ctx, pc); err != nil {
			return err
		}
		if r.task.UnmatchingRule == UnmatchingAssign && r.target.Account == nil && !r.task.DryRun {
			logic, err := r.kindLogic()
			if err != nil {
				return err
			}
			return logic.Assign(ctx, r.target.Any, r.b.Resource.Key)
		}
		return nil
	}
	return clienterr.Newf(clienterr.InvalidValues, "unknown unmatching rule %s", r.task.UnmatchingRule)
}

func (r *pushRun) matched(ctx context.Context, pc *PushContext) error {
	switch r.task.MatchingRule {
	case MatchingIgnore, "":
		r.report.ignore(OperationNone, "remote object exists, matching rule %s", MatchingIgnore)
		return nil

	case MatchingUpdate:
		if !r.task.PerformUpdate {
			r.report.ignore(OperationUpdate, "update not allowed")
			return nil
		}
		return r.update(ctx, pc)

	case MatchingDeprovision, MatchingUnassign:
		if !r.task.PerformDelete {
			r.report.ignore(OperationDelete, "delete not allowed")
			return nil
		}
		if err := r.delete(ctx, pc); err != nil {
			return err
		}
		if r.task.MatchingRule == MatchingDeprovision || r.task.DryRun {
			return nil
		}
		if r.target.Account != nil {
			return r.store.DeleteLinkedAccount(ctx, r.target.Account.Key)
		}
		logic, err := r.kindLogic()
		if err != nil {
			return err
		}
		return logic.Unassign(ctx, r.target.Any, r.b.Resource.Key)

	case MatchingLink, MatchingUnlink:
		if r.target.Account != nil {
			r.report.ignore(OperationNone, "linked accounts are always linked")
			return nil
		}
		if r.task.DryRun {
			r.report.ignore(OperationNone, "dry run")
			return nil
		}
		logic, err := r.kindLogic()
		if err != nil {
			return err
		}
		if r.task.MatchingRule == MatchingLink {
			err = logic.Link(ctx, r.target.Any, r.b.Resource.Key)
		} else {
			err = logic.Unlink(ctx, r.target.Any, r.b.Resource.Key)
		}
		if err != nil {
			return err
		}
		r.report.success(OperationNone)
		return nil
	}
	return clienterr.Newf(clienterr.InvalidValues, "unknown matching rule %s", r.task.MatchingRule)
}

// prepare computes the attributes of the target; the password is sent on create or
// when given explicitly.
func (r *pushRun) prepare(ctx context.Context, pc *PushContext, includePassword bool) (*mapping.Prepared, error) {
	var (
		prepared *mapping.Prepared
		err      error
	)
	if r.target.Account != nil {
		prepared, err = r.mapping.PrepareAttrsFromLinkedAccount(ctx, r.target.Any, r.target.Account, pc.Password, includePassword, r.b.Provision)
	} else {
		prepared, err = r.mapping.PrepareAttrsFromAny(ctx, r.target.Any, pc.Password, includePassword, false, r.b.Provision)
	}
	if err != nil {
		return nil, err
	}
	if len(prepared.MandatoryMissing) > 0 {
		return nil, clienterr.Newf(clienterr.InvalidValues, "mandatory attributes missing: %s",
			strings.Join(prepared.MandatoryMissing, ", "))
	}
	if r.task.SyncStatus && prepared.Enable != nil {
		prepared.Attrs = prepared.Attrs.Set(connid.AttrEnable, *prepared.Enable)
	}
	return prepared, nil
}

func (r *pushRun) create(ctx context.Context, pc *PushContext) error {
	prepared, err := r.prepare(ctx, pc, true)
	if err != nil {
		return err
	}
	pc.Attrs = prepared.Attrs

	if r.b.Resource.RandomPwdIfNotProvided && r.target.Any.Kind == model.KindUser {
		if _, ok := pc.Attrs.Find(connid.AttrPassword); !ok {
			pc.Password = RandomPassword()
			pc.Attrs = pc.Attrs.Set(connid.AttrPassword, pc.Password)
		}
	}

	for _, action := range r.actions {
		if err := action.BeforeCreate(ctx, pc); err != nil {
			return err
		}
	}

	if r.task.DryRun {
		r.report.ignore(OperationCreate, "dry run")
		return nil
	}

	uid, err := r.conn.Create(ctx, connid.ObjectClass(r.b.Provision.ObjectClass), pc.Attrs, connid.OperationOptions{})
	if err != nil {
		return err
	}
	r.report.UIDValue = uid
	r.report.success(OperationCreate)

	if r.b.Provision.UidOnCreate != "" && r.target.Account == nil {
		if r.target.Any.PlainAttrs == nil {
			r.target.Any.PlainAttrs = model.Attrs{}
		}
		r.target.Any.PlainAttrs[r.b.Provision.UidOnCreate] = []string{uid}
		if err := r.store.SaveAny(ctx, r.target.Any); err != nil {
			return fmt.Errorf("remote object %s created, saving uid failed: %w", uid, err)
		}
	}
	return nil
}

func (r *pushRun) update(ctx context.Context, pc *PushContext) error {
	prepared, err := r.prepare(ctx, pc, pc.Password != "")
	if err != nil {
		return err
	}
	pc.Attrs = prepared.Attrs

	if !Changed(pc.Attrs, pc.Remote) {
		r.report.ignore(OperationNone, "unchanged")
		return nil
	}

	for _, action := range r.actions {
		if err := action.BeforeUpdate(ctx, pc); err != nil {
			return err
		}
	}

	if r.task.DryRun {
		r.report.ignore(OperationUpdate, "dry run")
		return nil
	}

	uid, err := r.conn.Update(ctx, connid.ObjectClass(r.b.Provision.ObjectClass), pc.Remote.UID, pc.Attrs, connid.OperationOptions{})
	if err != nil {
		return err
	}
	r.report.UIDValue = uid
	r.report.success(OperationUpdate)
	return nil
}

func (r *pushRun) delete(ctx context.Context, pc *PushContext) error {
	for _, action := range r.actions {
		if err := action.BeforeDelete(ctx, pc); err != nil {
			return err
		}
	}

	if r.task.DryRun {
		r.report.ignore(OperationDelete, "dry run")
		return nil
	}

	if err := r.conn.Delete(ctx, connid.ObjectClass(r.b.Provision.ObjectClass), pc.Remote.UID, connid.OperationOptions{}); err != nil {
		return err
	}
	r.report.success(OperationDelete)
	return nil
}

// Changed reports whether attrs differ from remote. Passwords always count as a change
// since they are never read back.
func Changed(attrs connid.AttributeSet, remote *connid.ConnectorObject) bool {
	for _, a := range attrs {
		switch {
		case strings.EqualFold(a.Name, connid.AttrPassword):
			return true
		case strings.EqualFold(a.Name, mapping.MandatoryMissingAttr):
			continue
		}
		if !utils.EqualStrings(a.Strings(), remote.Value(a.Name)) {
			return true
		}
	}
	return false
}
