package mapping

import (
	"context"
	"slices"
	"sort"
	"strings"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/model"
	"idm-reconciler/core/utils"
)

// MandatoryMissingAttr lists, in prepared attributes, the external names of mandatory
// items left without value.
const MandatoryMissingAttr = "__MANDATORY_MISSING__"

// Internal attribute names resolved from entity fields.
const (
	IntKey      = "key"
	IntUsername = "username"
	IntName     = "name"
	IntRealm    = "realm"
	IntStatus   = "status"
	IntPassword = "password"
)

// SchemaSource resolves derived and virtual schemas.
type SchemaSource interface {
	FindDerSchema(ctx context.Context, key string) (*model.DerSchema, error)
	FindVirSchema(ctx context.Context, key string) (*model.VirSchema, error)
	VirSchemasFor(ctx context.Context, resourceKey, anyType string) ([]model.VirSchema, error)
}

// Engine applies provision mappings in both directions.
type Engine struct {
	schemas SchemaSource
	eval    *Evaluator
	vir     *VirAttrCache
}

// NewEngine creates an engine.
func NewEngine(schemas SchemaSource, eval *Evaluator, vir *VirAttrCache) *Engine {
	return &Engine{schemas: schemas, eval: eval, vir: vir}
}

// Evaluator returns the expression evaluator.
func (e *Engine) Evaluator() *Evaluator {
	return e.eval
}

// Prepared is the outbound view of an entity on one provision.
type Prepared struct {
	ConnObjectKeyValue string
	Attrs              connid.AttributeSet
	MandatoryMissing   []string
	// Enable is set for users: false when suspended.
	Enable *bool
}

// Env builds the expression environment of an entity.
func Env(a *model.Any) map[string]any {
	env := make(map[string]any, len(a.PlainAttrs)+8)
	for name, values := range a.PlainAttrs {
		if len(values) == 1 {
			env[name] = values[0]
		} else {
			env[name] = slices.Clone(values)
		}
	}
	env[IntKey] = a.Key
	env[IntName] = a.Name
	env[IntUsername] = a.Name
	env[IntRealm] = a.RealmPath
	env[IntStatus] = a.Status
	env["type"] = a.Type
	env["kind"] = string(a.Kind)
	env["attrs"] = map[string][]string(a.PlainAttrs.Clone())
	return env
}

func single(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// values resolves an internal attribute of a.
func (e *Engine) values(ctx context.Context, a *model.Any, env map[string]any, intAttrName string) ([]string, error) {
	switch intAttrName {
	case IntKey:
		return single(a.Key), nil
	case IntUsername, IntName:
		return single(a.Name), nil
	case IntRealm:
		return single(a.RealmPath), nil
	case IntStatus:
		return single(a.Status), nil
	}

	if values, ok := a.PlainAttrs[intAttrName]; ok {
		return nonEmpty(values), nil
	}

	der, err := e.schemas.FindDerSchema(ctx, intAttrName)
	if err != nil {
		return nil, err
	}
	if der != nil {
		return e.eval.Strings(der.Expression, env)
	}

	vir, err := e.schemas.FindVirSchema(ctx, intAttrName)
	if err != nil {
		return nil, err
	}
	if vir != nil && e.vir != nil {
		values, _ := e.vir.Get(a.Key, vir.Key)
		return values, nil
	}
	return nil, nil
}

func (e *Engine) transform(src string, env map[string]any, values []string) ([]string, error) {
	if strings.TrimSpace(src) == "" {
		return values, nil
	}
	tenv := make(map[string]any, len(env)+2)
	for k, v := range env {
		tenv[k] = v
	}
	tenv["values"] = slices.Clone(values)
	tenv["value"] = ""
	if len(values) > 0 {
		tenv["value"] = values[0]
	}
	return e.eval.Strings(src, tenv)
}

// itemValues resolves, transforms and collapses the values of one item.
func (e *Engine) itemValues(ctx context.Context, a *model.Any, env map[string]any, item model.Item) ([]string, error) {
	values, err := e.values(ctx, a, env, item.IntAttrName)
	if err != nil {
		return nil, err
	}
	values, err = e.transform(item.PropagationTransformer, env, values)
	if err != nil {
		return nil, err
	}
	if !item.Multivalue && len(values) > 1 {
		values = values[:1]
	}
	return values, nil
}

// ConnObjectKeyValue computes the connObjectKey value of a on provision.
func (e *Engine) ConnObjectKeyValue(ctx context.Context, a *model.Any, provision *model.Provision) (string, bool, error) {
	keyItem, ok := provision.Mapping.ConnObjectKeyItem()
	if !ok {
		return "", false, nil
	}
	values, err := e.itemValues(ctx, a, Env(a), keyItem)
	if err != nil || len(values) == 0 {
		return "", false, err
	}
	return values[0], true, nil
}

// PrepareAttrsFromAny builds the outbound attributes of a on provision.
// The password, explicit or stored, is included only with includePassword.
func (e *Engine) PrepareAttrsFromAny(
	ctx context.Context,
	a *model.Any,
	password string,
	includePassword bool,
	includeMandatoryMissing bool,
	provision *model.Provision,
) (*Prepared, error) {
	env := Env(a)
	p := &Prepared{}

	if provision.Mapping == nil {
		return p, nil
	}

	for _, item := range provision.Mapping.Items {
		if !item.Purpose.Outbound() {
			continue
		}

		if item.Password || item.IntAttrName == IntPassword {
			if a.Kind != model.KindUser {
				continue
			}
			pwd := password
			if pwd == "" {
				pwd = a.Password
			}
			mandatory, err := e.eval.Bool(item.MandatoryCondition, env)
			if err != nil {
				return nil, err
			}
			if mandatory && pwd == "" {
				p.MandatoryMissing = append(p.MandatoryMissing, item.ExtAttrName)
			}
			if includePassword && pwd != "" {
				p.Attrs = p.Attrs.Set(connid.AttrPassword, pwd)
			}
			continue
		}

		values, err := e.itemValues(ctx, a, env, item)
		if err != nil {
			return nil, err
		}

		mandatory, err := e.eval.Bool(item.MandatoryCondition, env)
		if err != nil {
			return nil, err
		}
		if mandatory && len(values) == 0 {
			p.MandatoryMissing = append(p.MandatoryMissing, item.ExtAttrName)
		}

		if item.ConnObjectKey && len(values) > 0 {
			p.ConnObjectKeyValue = values[0]
		}
		p.Attrs = p.Attrs.Merge(item.ExtAttrName, utils.ToAnys(values)...)
	}

	name, err := e.connObjectName(provision.Mapping, env, p.ConnObjectKeyValue)
	if err != nil {
		return nil, err
	}
	if name != "" {
		p.Attrs = p.Attrs.Set(connid.AttrName, name)
	}

	if a.Kind == model.KindUser && a.Status != "" {
		enable := a.Status != model.StatusSuspended
		p.Enable = &enable
	}

	if includeMandatoryMissing && len(p.MandatoryMissing) > 0 {
		p.Attrs = p.Attrs.Set(MandatoryMissingAttr, utils.ToAnys(p.MandatoryMissing)...)
	}
	return p, nil
}

func (e *Engine) connObjectName(m *model.Mapping, env map[string]any, keyValue string) (string, error) {
	if strings.TrimSpace(m.ConnObjectLink) == "" {
		return keyValue, nil
	}
	values, err := e.eval.Strings(m.ConnObjectLink, env)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return keyValue, nil
	}
	return values[0], nil
}

// AccountView overlays a linked account on its owner, as seen by the mapping.
func AccountView(owner *model.Any, account *model.LinkedAccount) *model.Any {
	view := *owner
	view.PlainAttrs = owner.PlainAttrs.Clone()
	if view.PlainAttrs == nil {
		view.PlainAttrs = model.Attrs{}
	}
	for name, values := range account.PlainAttrs {
		view.PlainAttrs[name] = slices.Clone(values)
	}
	if account.Username != "" {
		view.Name = account.Username
	}
	if account.Password != "" {
		view.Password = account.Password
	}
	if account.Suspended {
		view.Status = model.StatusSuspended
	}
	return &view
}

// PrepareAttrsFromLinkedAccount builds the outbound attributes of a linked account.
// The connObjectKey value is always the account's own.
func (e *Engine) PrepareAttrsFromLinkedAccount(
	ctx context.Context,
	owner *model.Any,
	account *model.LinkedAccount,
	password string,
	includePassword bool,
	provision *model.Provision,
) (*Prepared, error) {
	view := AccountView(owner, account)
	p, err := e.PrepareAttrsFromAny(ctx, view, password, includePassword, false, provision)
	if err != nil {
		return nil, err
	}
	p.ConnObjectKeyValue = account.ConnObjectKeyValue
	if keyItem, ok := provision.Mapping.ConnObjectKeyItem(); ok {
		p.Attrs = p.Attrs.Set(keyItem.ExtAttrName, account.ConnObjectKeyValue)
	}
	if strings.TrimSpace(provision.Mapping.ConnObjectLink) == "" {
		p.Attrs = p.Attrs.Set(connid.AttrName, account.ConnObjectKeyValue)
	}
	return p, nil
}

// Pulled is the inbound view of a connector object.
type Pulled struct {
	Name     string
	Password string
	Status   string
	Attrs    model.Attrs
}

// ApplyPull maps obj onto internal attributes using the inbound items of provision.
func (e *Engine) ApplyPull(ctx context.Context, obj *connid.ConnectorObject, provision *model.Provision) (*Pulled, error) {
	pulled := &Pulled{Attrs: model.Attrs{}}
	if provision.Mapping == nil {
		return pulled, nil
	}

	env := objectEnv(obj)
	for _, item := range provision.Mapping.Items {
		if !item.Purpose.Inbound() {
			continue
		}
		values := nonEmpty(obj.Value(item.ExtAttrName))

		if item.Password || item.IntAttrName == IntPassword {
			if len(values) > 0 {
				pulled.Password = values[0]
			}
			continue
		}

		values, err := e.transformPull(item.PullTransformer, env, values)
		if err != nil {
			return nil, err
		}
		if !item.Multivalue && len(values) > 1 {
			values = values[:1]
		}

		switch item.IntAttrName {
		case IntUsername, IntName:
			if len(values) > 0 {
				pulled.Name = values[0]
			}
		case IntStatus:
			if len(values) > 0 {
				pulled.Status = values[0]
			}
		case IntKey, IntRealm:
			// never overwritten from a resource
		default:
			computed, err := e.isComputed(ctx, item.IntAttrName)
			if err != nil {
				return nil, err
			}
			if !computed {
				pulled.Attrs[item.IntAttrName] = values
			}
		}
	}

	if pulled.Status == "" {
		if enable, ok := obj.Attrs.Find(connid.AttrEnable); ok && len(enable.Values) > 0 {
			if utils.ToBool(enable.Values[0]) {
				pulled.Status = model.StatusActive
			} else {
				pulled.Status = model.StatusSuspended
			}
		}
	}
	return pulled, nil
}

// isComputed reports whether name is a derived or virtual schema.
func (e *Engine) isComputed(ctx context.Context, name string) (bool, error) {
	der, err := e.schemas.FindDerSchema(ctx, name)
	if err != nil || der != nil {
		return der != nil, err
	}
	vir, err := e.schemas.FindVirSchema(ctx, name)
	return vir != nil, err
}

func (e *Engine) transformPull(src string, env map[string]any, values []string) ([]string, error) {
	return e.transform(src, env, values)
}

func objectEnv(obj *connid.ConnectorObject) map[string]any {
	env := make(map[string]any, len(obj.Attrs)+2)
	for _, a := range obj.Attrs {
		values := a.Strings()
		if len(values) == 1 {
			env[a.Name] = values[0]
		} else {
			env[a.Name] = values
		}
	}
	env["uid"] = obj.UID
	env["name"] = obj.Name
	return env
}

// RefreshVirAttrs caches the virtual attribute values of a read from obj.
func (e *Engine) RefreshVirAttrs(ctx context.Context, a *model.Any, obj *connid.ConnectorObject, provision *model.Provision) error {
	if e.vir == nil || obj == nil {
		return nil
	}
	schemas, err := e.schemas.VirSchemasFor(ctx, provision.ResourceKey, provision.AnyType)
	if err != nil {
		return err
	}
	for _, vs := range schemas {
		e.vir.Put(a.Key, vs.Key, nonEmpty(obj.Value(vs.ExtAttrName)))
	}
	return nil
}

// Snapshot renders attrs as a ConnObject whose FIQL selects keyValue on keyItem.
func Snapshot(keyItem model.Item, keyValue string, attrs connid.AttributeSet) *model.ConnObject {
	obj := &model.ConnObject{FIQL: keyItem.ExtAttrName + "==" + keyValue}
	for _, a := range attrs {
		if strings.EqualFold(a.Name, connid.AttrPassword) {
			continue
		}
		obj.Attrs = append(obj.Attrs, model.ConnObjectAttr{Schema: a.Name, Values: a.Strings()})
	}
	sort.Slice(obj.Attrs, func(i, j int) bool { return obj.Attrs[i].Schema < obj.Attrs[j].Schema })
	return obj
}

// SnapshotObject renders a connector object, including __UID__ and __NAME__.
func SnapshotObject(keyItem model.Item, obj *connid.ConnectorObject) *model.ConnObject {
	keyValue := firstOr(obj.Value(keyItem.ExtAttrName), obj.Name)
	attrs := obj.Attrs.Clone().
		Set(connid.AttrUID, obj.UID).
		Set(connid.AttrName, obj.Name)
	return Snapshot(keyItem, keyValue, attrs)
}

func firstOr(values []string, def string) string {
	if len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return def
}
