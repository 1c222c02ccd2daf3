package provisioning

import (
	"context"
	"testing"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/connid/memory"
	"idm-reconciler/core/database"
	"idm-reconciler/core/mapping"
	"idm-reconciler/core/match"
	"idm-reconciler/core/model"
	"idm-reconciler/core/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	store   *store.Store
	conn    *memory.Connector
	binding *store.Binding
	actions *Actions
	pusher  *Pusher
	puller  *Puller
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	st := store.New(db)

	require.NoError(t, st.SaveAnyType(ctx, &model.AnyType{Key: "USER", Kind: model.KindUser}))
	require.NoError(t, st.SaveConnInstance(ctx, &model.ConnInstance{
		Key: "conn-1", DisplayName: "Memory", AdminRealm: "/", BundleName: memory.BundleName,
	}))
	require.NoError(t, st.SaveResource(ctx, &model.ExternalResource{
		Key:          "ws-target",
		ConnectorKey: "conn-1",
		Provisions: []model.Provision{{
			AnyType:     "USER",
			ObjectClass: string(connid.ObjectClassAccount),
			Mapping: &model.Mapping{Items: []model.Item{
				{IntAttrName: "username", ExtAttrName: "uid", ConnObjectKey: true, Purpose: model.PurposeBoth},
				{IntAttrName: "email", ExtAttrName: "mail", Purpose: model.PurposeBoth},
				{IntAttrName: "password", ExtAttrName: connid.AttrPassword, Password: true, Purpose: model.PurposePropagation},
			}},
		}},
	}))

	require.NoError(t, st.SaveAny(ctx, &model.Any{
		Key: "u-1", Kind: model.KindUser, Type: "USER", Name: "rossini", RealmPath: "/",
		PlainAttrs: model.Attrs{"email": {"rossini@example.org"}},
	}))
	require.NoError(t, st.SaveAny(ctx, &model.Any{
		Key: "u-2", Kind: model.KindUser, Type: "USER", Name: "verdi", RealmPath: "/",
	}))

	b, err := st.ResolveBinding(ctx, "USER", "ws-target")
	require.NoError(t, err)

	mem, err := memory.NewStore()
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)
	engine := mapping.NewEngine(st, mapping.NewEvaluator(), mapping.NewVirAttrCache(10, 0))
	logic := NewLogicTable(st)
	actions := NewActions()

	return &fixture{
		store:   st,
		conn:    memory.New(mem),
		binding: b,
		actions: actions,
		pusher:  NewPusher(st, engine, match.NewOutbound(engine, logger), logic, actions, logger),
		puller:  NewPuller(st, engine, match.NewInbound(st, logger), logic, actions, logger),
		logs:    logs,
	}
}

func (f *fixture) entity(t *testing.T, key string) *model.Any {
	t.Helper()
	a, err := f.store.FindAny(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func (f *fixture) remote(t *testing.T, attrs ...connid.Attribute) {
	t.Helper()
	_, err := f.conn.Create(context.Background(), connid.ObjectClassAccount, connid.AttributeSet(attrs), connid.OperationOptions{})
	require.NoError(t, err)
}

func (f *fixture) remoteObject(t *testing.T, uid string) *connid.ConnectorObject {
	t.Helper()
	obj, err := f.conn.GetObject(context.Background(), connid.ObjectClassAccount, uid, connid.OperationOptions{})
	require.NoError(t, err)
	return obj
}

func attr(name string, values ...any) connid.Attribute {
	return connid.Attribute{Name: name, Values: values}
}

// spyPush records what the push action chain saw.
type spyPush struct {
	NopPushAction
	password string
	reports  []ProvisioningReport
	errs     []error
}

func (s *spyPush) After(_ context.Context, pc *PushContext, report *ProvisioningReport) {
	s.password = pc.Password
	s.reports = append(s.reports, *report)
}

func (s *spyPush) OnError(_ context.Context, _ *PushContext, err error) {
	s.errs = append(s.errs, err)
}
