package provisioning

import (
	"context"
	"strings"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/model"

	"github.com/google/uuid"
)

// LogicStore is the persistence used by the kind logic table.
type LogicStore interface {
	SaveAny(ctx context.Context, a *model.Any) error
	DeleteAny(ctx context.Context, key string) error
	FindRealm(ctx context.Context, fullPath string) (*model.Realm, error)
}

// AnyLogic changes internal entities of one kind.
type AnyLogic interface {
	Create(ctx context.Context, a *model.Any) error
	Update(ctx context.Context, a *model.Any) error
	Delete(ctx context.Context, a *model.Any) error
	// Assign and Link add the resource; Assign also means the caller propagates.
	Assign(ctx context.Context, a *model.Any, resourceKey string) error
	Unassign(ctx context.Context, a *model.Any, resourceKey string) error
	Link(ctx context.Context, a *model.Any, resourceKey string) error
	Unlink(ctx context.Context, a *model.Any, resourceKey string) error
}

// LogicTable selects the logic of a kind.
type LogicTable map[model.AnyTypeKind]AnyLogic

// NewLogicTable builds the logic of users, groups and any objects.
func NewLogicTable(st LogicStore) LogicTable {
	base := baseLogic{store: st}
	return LogicTable{
		model.KindUser:      &userLogic{base},
		model.KindGroup:     &groupLogic{base},
		model.KindAnyObject: &anyObjectLogic{base},
	}
}

// For returns the logic of kind.
func (t LogicTable) For(kind model.AnyTypeKind) (AnyLogic, error) {
	logic, ok := t[kind]
	if !ok {
		return nil, clienterr.Newf(clienterr.InvalidValues, "no logic for kind %s", kind)
	}
	return logic, nil
}

type baseLogic struct {
	store LogicStore
}

func (l baseLogic) checkRealm(ctx context.Context, a *model.Any) error {
	if a.RealmPath == "" {
		a.RealmPath = "/"
	}
	if !strings.HasPrefix(a.RealmPath, "/") {
		return clienterr.Newf(clienterr.InvalidRealm, "%s", a.RealmPath)
	}
	if a.RealmPath == "/" {
		return nil
	}
	realm, err := l.store.FindRealm(ctx, a.RealmPath)
	if err != nil {
		return err
	}
	if realm == nil {
		return clienterr.Newf(clienterr.NotFound, "Realm %s", a.RealmPath)
	}
	return nil
}

func (l baseLogic) create(ctx context.Context, a *model.Any) error {
	if strings.TrimSpace(a.Name) == "" {
		return clienterr.Newf(clienterr.InvalidValues, "%s name is required", a.Type)
	}
	if err := l.checkRealm(ctx, a); err != nil {
		return err
	}
	if a.Key == "" {
		a.Key = uuid.NewString()
	}
	return l.store.SaveAny(ctx, a)
}

func (l baseLogic) update(ctx context.Context, a *model.Any) error {
	if a.Key == "" {
		return clienterr.New(clienterr.InvalidValues, "missing key")
	}
	if err := l.checkRealm(ctx, a); err != nil {
		return err
	}
	return l.store.SaveAny(ctx, a)
}

func (l baseLogic) Delete(ctx context.Context, a *model.Any) error {
	return l.store.DeleteAny(ctx, a.Key)
}

func (l baseLogic) Assign(ctx context.Context, a *model.Any, resourceKey string) error {
	if !a.AssignResource(resourceKey) {
		return nil
	}
	return l.store.SaveAny(ctx, a)
}

func (l baseLogic) Unassign(ctx context.Context, a *model.Any, resourceKey string) error {
	if !a.UnassignResource(resourceKey) {
		return nil
	}
	return l.store.SaveAny(ctx, a)
}

func (l baseLogic) Link(ctx context.Context, a *model.Any, resourceKey string) error {
	return l.Assign(ctx, a, resourceKey)
}

func (l baseLogic) Unlink(ctx context.Context, a *model.Any, resourceKey string) error {
	return l.Unassign(ctx, a, resourceKey)
}

// userLogic defaults the status to active.
type userLogic struct{ baseLogic }

func (l *userLogic) Create(ctx context.Context, a *model.Any) error {
	a.Kind = model.KindUser
	if a.Status == "" {
		a.Status = model.StatusActive
	}
	return l.create(ctx, a)
}

func (l *userLogic) Update(ctx context.Context, a *model.Any) error {
	if a.Status == "" {
		a.Status = model.StatusActive
	}
	if a.Status != model.StatusActive && a.Status != model.StatusSuspended {
		return clienterr.Newf(clienterr.InvalidValues, "invalid status %q", a.Status)
	}
	return l.update(ctx, a)
}

// groupLogic drops password and status, which groups do not carry.
type groupLogic struct{ baseLogic }

func (l *groupLogic) Create(ctx context.Context, a *model.Any) error {
	a.Kind = model.KindGroup
	a.Password, a.Status = "", ""
	return l.create(ctx, a)
}

func (l *groupLogic) Update(ctx context.Context, a *model.Any) error {
	a.Password, a.Status = "", ""
	return l.update(ctx, a)
}

type anyObjectLogic struct{ baseLogic }

func (l *anyObjectLogic) Create(ctx context.Context, a *model.Any) error {
	a.Kind = model.KindAnyObject
	a.Password, a.Status = "", ""
	return l.create(ctx, a)
}

func (l *anyObjectLogic) Update(ctx context.Context, a *model.Any) error {
	a.Password, a.Status = "", ""
	return l.update(ctx, a)
}
