package reconciliation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/engine"
	"idm-reconciler/core/match"
	"idm-reconciler/core/model"
	"idm-reconciler/core/provisioning"
	"idm-reconciler/core/reconcile"
	"idm-reconciler/core/store"
	"idm-reconciler/core/utils"
)

// ProvisionAdapter reconciles the entities assigned to one provision with the objects
// of its object class.
type ProvisionAdapter struct {
	core *engine.Core
	b    *store.Binding
	conn connid.Connector

	// realm receives the entities created from orphan objects.
	realm string
}

var (
	_ reconcile.Adapter = (*ProvisionAdapter)(nil)
	_ reconcile.Mutator = (*ProvisionAdapter)(nil)
)

// NewProvisionAdapter binds an adapter to b and conn.
func NewProvisionAdapter(core *engine.Core, b *store.Binding, conn connid.Connector, realm string) *ProvisionAdapter {
	if realm == "" {
		realm = "/"
	}
	return &ProvisionAdapter{core: core, b: b, conn: conn, realm: realm}
}

// Name returns resource/anyType.
func (a *ProvisionAdapter) Name() string {
	return a.b.Resource.Key + "/" + a.b.AnyType.Key
}

// LoadInternalIndex indexes the entities assigned to the resource by connObjectKey value.
// Entities without a value are skipped.
func (a *ProvisionAdapter) LoadInternalIndex(ctx context.Context) (map[string]*model.Any, error) {
	list, err := a.core.Store.ListAnysByResource(ctx, a.b.AnyType.Key, a.b.Resource.Key)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*model.Any, len(list))
	for i := range list {
		value, ok, err := a.core.Mapping.ConnObjectKeyValue(ctx, &list[i], a.b.Provision)
		if err != nil {
			return nil, fmt.Errorf("failed to compute connObjectKey of %s: %w", list[i].Key, err)
		}
		if ok {
			index[value] = &list[i]
		}
	}
	return index, nil
}

// LoadExternalIndex indexes every object of the object class by connObjectKey value.
func (a *ProvisionAdapter) LoadExternalIndex(ctx context.Context) (map[string]*connid.ConnectorObject, error) {
	var objs []*connid.ConnectorObject
	_, err := a.conn.Search(ctx, connid.ObjectClass(a.b.Provision.ObjectClass), nil, connid.Collector(&objs, 0),
		connid.OperationOptions{AttributesToGet: match.AttrsToGet(a.b.Provision)})
	if err != nil {
		return nil, connid.Classify(err)
	}
	index := make(map[string]*connid.ConnectorObject, len(objs))
	for _, obj := range objs {
		if values := obj.Value(a.b.KeyItem.ExtAttrName); len(values) > 0 && values[0] != "" {
			index[values[0]] = obj
		}
	}
	return index, nil
}

// ResolveName prefers the entity name.
func (a *ProvisionAdapter) ResolveName(entity *model.Any, obj *connid.ConnectorObject) string {
	if entity != nil {
		return entity.Name
	}
	if obj != nil {
		return obj.Name
	}
	return ""
}

// CompareFields compares the outbound view of the entity with the remote object.
// Passwords are never read back and are not compared.
func (a *ProvisionAdapter) CompareFields(ctx context.Context, entity *model.Any, obj *connid.ConnectorObject) ([]string, error) {
	prepared, err := a.core.Mapping.PrepareAttrsFromAny(ctx, entity, "", false, false, a.b.Provision)
	if err != nil {
		return nil, err
	}
	var diffs []string
	for _, attr := range prepared.Attrs {
		if strings.EqualFold(attr.Name, connid.AttrPassword) {
			continue
		}
		internal := attr.Strings()
		external := obj.Value(attr.Name)
		if !utils.EqualStrings(internal, external) {
			slices.Sort(internal)
			slices.Sort(external)
			diffs = append(diffs, fmt.Sprintf("%s: internal=%v external=%v", attr.Name, internal, external))
		}
	}
	return diffs, nil
}

// GetMetadata returns the entity key and realm and the remote uid.
func (a *ProvisionAdapter) GetMetadata(entity *model.Any, obj *connid.ConnectorObject) map[string]string {
	meta := make(map[string]string, 3)
	if entity != nil {
		meta["anyKey"] = entity.Key
		meta["realm"] = entity.RealmPath
	}
	if obj != nil {
		meta["uid"] = obj.UID
	}
	return meta
}

// PushCreate provisions the missing remote object of an entity.
func (a *ProvisionAdapter) PushCreate(ctx context.Context, entity *model.Any) error {
	task := provisioning.DefaultPushTask()
	task.UnmatchingRule = provisioning.UnmatchingProvision
	return a.push(ctx, entity, task)
}

// PushUpdate overwrites the remote object with the outbound view of the entity.
func (a *ProvisionAdapter) PushUpdate(ctx context.Context, entity *model.Any) error {
	task := provisioning.DefaultPushTask()
	task.UnmatchingRule = provisioning.UnmatchingIgnore
	return a.push(ctx, entity, task)
}

func (a *ProvisionAdapter) push(ctx context.Context, entity *model.Any, task provisioning.PushTask) error {
	if entity == nil {
		return fmt.Errorf("no entity to push")
	}
	return a.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		report := a.core.Pusher.Push(ctx, a.b, a.conn, provisioning.Target{Any: entity}, task)
		return provisioning.Failures([]provisioning.ProvisioningReport{report})
	})
}

// PushDelete removes an object no entity owns.
func (a *ProvisionAdapter) PushDelete(ctx context.Context, obj *connid.ConnectorObject) error {
	if obj == nil {
		return fmt.Errorf("no object to delete")
	}
	return connid.Classify(a.conn.Delete(ctx, connid.ObjectClass(a.b.Provision.ObjectClass), obj.UID, connid.OperationOptions{}))
}

// PullCreate creates the entity of an orphan object and assigns the resource to it.
func (a *ProvisionAdapter) PullCreate(ctx context.Context, obj *connid.ConnectorObject) error {
	if obj == nil {
		return fmt.Errorf("no object to pull")
	}
	task := provisioning.DefaultPullTask(a.realm)
	task.UnmatchingRule = provisioning.UnmatchingAssign
	task.MatchingRule = provisioning.MatchingIgnore

	return a.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		delta := &connid.SyncDelta{Type: connid.DeltaCreateOrUpdate, UID: obj.UID, Object: obj}
		return provisioning.Failures(a.core.Puller.HandleDelta(ctx, a.b, delta, task))
	})
}
