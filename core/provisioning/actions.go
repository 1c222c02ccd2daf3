package provisioning

import (
	"context"
	"sort"
	"strings"
	"sync"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/model"
	"idm-reconciler/core/store"

	"github.com/google/uuid"
)

// PushContext is what push actions see and may change before the connector call.
type PushContext struct {
	Binding  *store.Binding
	Any      *model.Any
	Account  *model.LinkedAccount
	Password string
	Attrs    connid.AttributeSet
	Remote   *connid.ConnectorObject
}

// PullContext is what pull actions see and may change before the internal change.
type PullContext struct {
	Binding *store.Binding
	Delta   *connid.SyncDelta
	Any     *model.Any
	Account *model.LinkedAccount
}

// PushAction intercepts pushes. Before hooks may veto by returning an error.
type PushAction interface {
	BeforeCreate(ctx context.Context, pc *PushContext) error
	BeforeUpdate(ctx context.Context, pc *PushContext) error
	BeforeDelete(ctx context.Context, pc *PushContext) error
	After(ctx context.Context, pc *PushContext, report *ProvisioningReport)
	OnError(ctx context.Context, pc *PushContext, err error)
}

// PullAction intercepts pulls.
type PullAction interface {
	BeforeCreate(ctx context.Context, pc *PullContext) error
	BeforeUpdate(ctx context.Context, pc *PullContext) error
	BeforeDelete(ctx context.Context, pc *PullContext) error
	After(ctx context.Context, pc *PullContext, report *ProvisioningReport)
	OnError(ctx context.Context, pc *PullContext, err error)
}

// NopPushAction implements PushAction doing nothing; embed it to override single hooks.
type NopPushAction struct{}

func (NopPushAction) BeforeCreate(context.Context, *PushContext) error {
	return nil
}

func (NopPushAction) BeforeUpdate(context.Context, *PushContext) error {
	return nil
}

func (NopPushAction) BeforeDelete(context.Context, *PushContext) error {
	return nil
}

func (NopPushAction) After(context.Context, *PushContext, *ProvisioningReport) {}

func (NopPushAction) OnError(context.Context, *PushContext, error) {}

// NopPullAction implements PullAction doing nothing.
type NopPullAction struct{}

func (NopPullAction) BeforeCreate(context.Context, *PullContext) error {
	return nil
}

func (NopPullAction) BeforeUpdate(context.Context, *PullContext) error {
	return nil
}

func (NopPullAction) BeforeDelete(context.Context, *PullContext) error {
	return nil
}

func (NopPullAction) After(context.Context, *PullContext, *ProvisioningReport) {}

func (NopPullAction) OnError(context.Context, *PullContext, error) {}

// GenerateRandomPassword sets a random password on users created without one.
type GenerateRandomPassword struct{ NopPushAction }

func (GenerateRandomPassword) BeforeCreate(_ context.Context, pc *PushContext) error {
	if pc.Any == nil || pc.Any.Kind != model.KindUser || pc.Password != "" {
		return nil
	}
	if _, ok := pc.Attrs.Find(connid.AttrPassword); ok {
		return nil
	}
	pc.Password = RandomPassword()
	pc.Attrs = pc.Attrs.Set(connid.AttrPassword, pc.Password)
	return nil
}

// RandomPassword returns a password without dashes built from a random UUID.
func RandomPassword() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// LowercaseName lowercases the names of pulled entities before they are created.
type LowercaseName struct{ NopPullAction }

func (LowercaseName) BeforeCreate(_ context.Context, pc *PullContext) error {
	if pc.Any != nil {
		pc.Any.Name = strings.ToLower(pc.Any.Name)
	}
	return nil
}

// Actions is the registry of named push and pull actions.
type Actions struct {
	mu   sync.RWMutex
	push map[string]PushAction
	pull map[string]PullAction
}

// NewActions returns a registry holding the built-in actions.
func NewActions() *Actions {
	a := &Actions{push: map[string]PushAction{}, pull: map[string]PullAction{}}
	a.RegisterPush("GenerateRandomPassword", GenerateRandomPassword{})
	a.RegisterPull("LowercaseName", LowercaseName{})
	return a
}

func (a *Actions) RegisterPush(name string, action PushAction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.push[name] = action
}

func (a *Actions) RegisterPull(name string, action PullAction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pull[name] = action
}

// Names lists the registered push and pull action names.
func (a *Actions) Names() (push, pull []string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for name := range a.push {
		push = append(push, name)
	}
	for name := range a.pull {
		pull = append(pull, name)
	}
	sort.Strings(push)
	sort.Strings(pull)
	return push, pull
}

// Push resolves push actions by name, in order.
func (a *Actions) Push(names []string) ([]PushAction, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]PushAction, 0, len(names))
	for _, name := range names {
		action, ok := a.push[name]
		if !ok {
			return nil, clienterr.Newf(clienterr.NotFound, "push action %s", name)
		}
		out = append(out, action)
	}
	return out, nil
}

// Pull resolves pull actions by name, in order.
func (a *Actions) Pull(names []string) ([]PullAction, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]PullAction, 0, len(names))
	for _, name := range names {
		action, ok := a.pull[name]
		if !ok {
			return nil, clienterr.Newf(clienterr.NotFound, "pull action %s", name)
		}
		out = append(out, action)
	}
	return out, nil
}
