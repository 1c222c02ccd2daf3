// Package enginetest builds a seeded Core over in-memory sqlite and a memory connector
// for feature and command tests.
package enginetest

import (
	"context"
	"testing"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/connid/memory"
	"idm-reconciler/core/database"
	"idm-reconciler/core/engine"
	"idm-reconciler/core/model"
	"idm-reconciler/core/provisioning"
	"idm-reconciler/core/reqctx"
	"idm-reconciler/core/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Seeded keys.
const (
	Domain    = "Master"
	Connector = "conn-1"
	Resource  = "ws-target"
	Rossini   = "u-1"
	Verdi     = "u-2"
)

// Fixture is a seeded core with the remote store behind Resource.
type Fixture struct {
	Core   *engine.Core
	DB     *gorm.DB
	Remote *memory.Store
}

// New seeds:
//   - realms / and /even, any types USER and GROUP
//   - connector conn-1 (memory bundle, one store per test) in realm /
//   - resource ws-target mapping USER username->uid (key), email->mail, password->__PASSWORD__
//   - users u-1 rossini in / (email rossini@example.org) and u-2 verdi in /even
func New(t testing.TB) *Fixture {
	return NewWithObjects(t, nil)
}

// NewWithObjects is New with object storage.
func NewWithObjects(t testing.TB, objects *storage.Objects) *Fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	core, err := engine.New(db, engine.Options{
		Database: database.Config{Driver: database.DriverSQLite},
		Provisioning: provisioning.Config{
			ExclusiveReconQuery: true,
			StreamWorkers:       1,
			SearchCap:           100,
			VirAttrCacheSize:    10,
		},
		Connector: connid.Config{CheckPoolSize: 2},
	}, objects, zap.NewNop())
	require.NoError(t, err)

	instance := t.Name()
	t.Cleanup(func() { memory.Reset(instance) })
	remote, err := memory.Shared(instance)
	require.NoError(t, err)

	st := core.Store
	require.NoError(t, st.SaveRealm(ctx, &model.Realm{Key: "r-root", Name: "/", FullPath: "/"}))
	require.NoError(t, st.SaveRealm(ctx, &model.Realm{Key: "r-even", Name: "even", ParentKey: "r-root", FullPath: "/even"}))
	require.NoError(t, st.SaveAnyType(ctx, &model.AnyType{Key: "USER", Kind: model.KindUser}))
	require.NoError(t, st.SaveAnyType(ctx, &model.AnyType{Key: "GROUP", Kind: model.KindGroup}))
	require.NoError(t, st.SaveConnInstance(ctx, &model.ConnInstance{
		Key:         Connector,
		DisplayName: "Memory",
		AdminRealm:  "/",
		BundleName:  memory.BundleName,
		Conf:        []model.ConfProperty{{Name: "instance", Values: []any{instance}}},
	}))
	require.NoError(t, st.SaveResource(ctx, &model.ExternalResource{
		Key:          Resource,
		ConnectorKey: Connector,
		Provisions:   []model.Provision{UserProvision()},
	}))
	require.NoError(t, st.SaveAny(ctx, &model.Any{
		Key: Rossini, Kind: model.KindUser, Type: "USER", Name: "rossini", RealmPath: "/",
		Status: model.StatusActive, PlainAttrs: model.Attrs{"email": {"rossini@example.org"}},
	}))
	require.NoError(t, st.SaveAny(ctx, &model.Any{
		Key: Verdi, Kind: model.KindUser, Type: "USER", Name: "verdi", RealmPath: "/even",
		Status: model.StatusActive,
	}))

	return &Fixture{Core: core, DB: db, Remote: remote}
}

// UserProvision is the USER provision of the seeded resource.
func UserProvision() model.Provision {
	return model.Provision{
		AnyType:     "USER",
		ObjectClass: string(connid.ObjectClassAccount),
		Mapping: &model.Mapping{Items: []model.Item{
			{IntAttrName: "username", ExtAttrName: "uid", ConnObjectKey: true, Purpose: model.PurposeBoth},
			{IntAttrName: "email", ExtAttrName: "mail", Purpose: model.PurposeBoth},
			{IntAttrName: "password", ExtAttrName: connid.AttrPassword, Password: true, Purpose: model.PurposePropagation},
		}},
	}
}

// PutRemote creates an account called name on the remote store and returns its uid.
func (f *Fixture) PutRemote(t testing.TB, name string, attrs ...connid.Attribute) string {
	t.Helper()
	set := connid.AttributeSet(attrs).Set(connid.AttrName, name)
	uid, err := f.Remote.Put(connid.ObjectClassAccount, set)
	require.NoError(t, err)
	return uid
}

// Attr builds an attribute.
func Attr(name string, values ...any) connid.Attribute {
	return connid.Attribute{Name: name, Values: values}
}

// Admin returns a context bound to a caller owning every entitlement.
func Admin(t testing.TB) context.Context {
	return Caller(t, reqctx.Admin(Domain))
}

// Caller returns a context bound to rc, released when the test ends.
func Caller(t testing.TB, rc *reqctx.Context) context.Context {
	ctx, release := reqctx.Acquire(context.Background(), rc)
	t.Cleanup(release)
	return ctx
}
