package remediation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/engine/enginetest"
	"idm-reconciler/core/model"
	"idm-reconciler/core/provisioning"
	"idm-reconciler/core/reqctx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func save(t *testing.T, f *enginetest.Fixture, key, op string, payload *model.Any) {
	t.Helper()
	r := &model.Remediation{
		Key: key, AnyType: "USER", Operation: op, Error: "boom",
		Instant: time.Now().UTC(), ResourceKey: enginetest.Resource,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		r.Payload = string(raw)
	}
	require.NoError(t, f.Core.Store.SaveRemediation(context.Background(), r))
}

func TestService_ListReadDelete(t *testing.T) {
	f := enginetest.New(t)
	svc := NewService(f.Core)
	ctx := enginetest.Admin(t)
	save(t, f, "r1", "CREATE", &model.Any{Type: "USER", Name: "bellini"})
	save(t, f, "r2", "CREATE", &model.Any{Type: "USER", Name: "puccini"})

	page, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 25, page.Size)
	assert.EqualValues(t, 2, page.Total)
	assert.Len(t, page.Items, 2)

	r, err := svc.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "boom", r.Error)

	deleted, err := svc.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", deleted.Key)

	_, err = svc.Read(ctx, "r1")
	assert.True(t, clienterr.Is(err, clienterr.NotFound))
	_, err = svc.Delete(ctx, "r1")
	assert.True(t, clienterr.Is(err, clienterr.NotFound))
}

func TestService_Entitlements(t *testing.T) {
	f := enginetest.New(t)
	svc := NewService(f.Core)
	save(t, f, "r1", "CREATE", &model.Any{Type: "USER", Name: "bellini", RealmPath: "/"})
	ctx := enginetest.Caller(t, reqctx.New(enginetest.Domain, "bob", language.English).
		Grant(reqctx.RemediationList, "/even").
		Grant(reqctx.RemediationRemedy, "/even"))

	_, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)

	_, err = svc.Read(ctx, "r1")
	assert.True(t, clienterr.Is(err, clienterr.DelegatedAdministration))

	_, err = svc.Remedy(ctx, "r1")
	assert.True(t, clienterr.Is(err, clienterr.DelegatedAdministration))

	_, err = svc.List(context.Background(), 1, 10)
	assert.True(t, clienterr.Is(err, clienterr.Unauthorized))
}

func TestService_RemedyCreateFromPull(t *testing.T) {
	f := enginetest.New(t)
	svc := NewService(f.Core)
	ctx := enginetest.Admin(t)
	f.PutRemote(t, "bellini", enginetest.Attr("uid", "bellini"), enginetest.Attr("mail", "bellini@example.org"))

	b, conn, err := f.Core.Status.Binding(context.Background(), "USER", enginetest.Resource)
	require.NoError(t, err)
	task := provisioning.DefaultPullTask("/odd")
	task.Remediation = true
	reports, err := f.Core.Puller.Pull(context.Background(), b, conn, "uid", "bellini", "", task)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, provisioning.StatusFailure, reports[0].Status)

	page, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	r := page.Items[0]
	assert.Equal(t, "CREATE", r.Operation)
	assert.Equal(t, "bellini", r.RemoteName)

	_, err = svc.Remedy(ctx, r.Key)
	assert.True(t, clienterr.Is(err, clienterr.NotFound))

	require.NoError(t, f.Core.Store.SaveRealm(context.Background(),
		&model.Realm{Key: "r-odd", Name: "odd", ParentKey: "r-root", FullPath: "/odd"}))
	created, err := svc.Remedy(ctx, r.Key)
	require.NoError(t, err)
	assert.NotEmpty(t, created.Key)
	assert.Equal(t, "/odd", created.RealmPath)
	assert.Equal(t, []string{"bellini@example.org"}, created.PlainAttrs["email"])

	_, err = svc.Read(ctx, r.Key)
	assert.True(t, clienterr.Is(err, clienterr.NotFound))
}

func TestService_RemedyUpdateAndDelete(t *testing.T) {
	f := enginetest.New(t)
	svc := NewService(f.Core)
	ctx := enginetest.Admin(t)

	save(t, f, "upd", "UPDATE", &model.Any{
		Key: enginetest.Rossini, Kind: model.KindUser, Type: "USER", Name: "rossini", RealmPath: "/",
		PlainAttrs: model.Attrs{"email": {"gioachino@example.org"}},
	})
	updated, err := svc.Remedy(ctx, "upd")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, updated.Status)

	a, err := f.Core.Store.FindAny(context.Background(), enginetest.Rossini)
	require.NoError(t, err)
	assert.Equal(t, []string{"gioachino@example.org"}, a.PlainAttrs["email"])

	save(t, f, "del", "DELETE", &model.Any{Key: enginetest.Verdi, Type: "USER", RealmPath: "/even"})
	_, err = svc.Remedy(ctx, "del")
	require.NoError(t, err)
	a, err = f.Core.Store.FindAny(context.Background(), enginetest.Verdi)
	require.NoError(t, err)
	assert.Nil(t, a)

	save(t, f, "gone", "UPDATE", &model.Any{Key: "u-404", Type: "USER", Name: "nobody"})
	_, err = svc.Remedy(ctx, "gone")
	assert.True(t, clienterr.Is(err, clienterr.NotFound))
	_, err = svc.Read(ctx, "gone")
	require.NoError(t, err)
}

func TestService_RemedyInvalid(t *testing.T) {
	f := enginetest.New(t)
	svc := NewService(f.Core)
	ctx := enginetest.Admin(t)
	save(t, f, "empty", "CREATE", nil)
	save(t, f, "none", "NONE", &model.Any{Type: "USER", Name: "bellini"})

	_, err := svc.Remedy(ctx, "empty")
	assert.True(t, clienterr.Is(err, clienterr.InvalidValues))

	_, err = svc.Remedy(ctx, "none")
	assert.True(t, clienterr.Is(err, clienterr.InvalidValues))

	_, err = svc.Remedy(ctx, "missing")
	assert.True(t, clienterr.Is(err, clienterr.NotFound))
}
