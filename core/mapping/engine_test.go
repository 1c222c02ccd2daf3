package mapping

import (
	"context"
	"testing"
	"time"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchemas struct {
	der map[string]*model.DerSchema
	vir map[string]*model.VirSchema
}

func (f *fakeSchemas) FindDerSchema(_ context.Context, key string) (*model.DerSchema, error) {
	return f.der[key], nil
}

func (f *fakeSchemas) FindVirSchema(_ context.Context, key string) (*model.VirSchema, error) {
	return f.vir[key], nil
}

func (f *fakeSchemas) VirSchemasFor(_ context.Context, resourceKey, anyType string) ([]model.VirSchema, error) {
	var out []model.VirSchema
	for _, v := range f.vir {
		if v.ResourceKey == resourceKey && v.AnyType == anyType {
			out = append(out, *v)
		}
	}
	return out, nil
}

func newTestEngine() (*Engine, *VirAttrCache) {
	schemas := &fakeSchemas{
		der: map[string]*model.DerSchema{
			"cn": {Key: "cn", Expression: `firstname + " " + surname`},
		},
		vir: map[string]*model.VirSchema{
			"virtualdata": {Key: "virtualdata", ResourceKey: "ws-target", AnyType: "USER", ExtAttrName: "extdata"},
		},
	}
	vir := NewVirAttrCache(10, time.Minute)
	return NewEngine(schemas, NewEvaluator(), vir), vir
}

func testProvision() *model.Provision {
	return &model.Provision{
		ResourceKey: "ws-target",
		AnyType:     "USER",
		ObjectClass: "__ACCOUNT__",
		Mapping: &model.Mapping{Items: []model.Item{
			{IntAttrName: "username", ExtAttrName: "uid", ConnObjectKey: true, Purpose: model.PurposeBoth, MandatoryCondition: "true"},
			{IntAttrName: "email", ExtAttrName: "mail", Purpose: model.PurposeBoth, MandatoryCondition: "true"},
			{IntAttrName: "cn", ExtAttrName: "cn", Purpose: model.PurposeBoth},
			{IntAttrName: "surname", ExtAttrName: "sn", Purpose: model.PurposePropagation, PropagationTransformer: "upper(value)"},
			{IntAttrName: "password", ExtAttrName: "__PASSWORD__", Password: true, Purpose: model.PurposeBoth},
			{IntAttrName: "virtualdata", ExtAttrName: "extdata", Purpose: model.PurposeBoth},
		}},
	}
}

func testUser() *model.Any {
	return &model.Any{
		Key:       "u-1",
		Kind:      model.KindUser,
		Type:      "USER",
		Name:      "rossini",
		RealmPath: "/",
		Status:    model.StatusActive,
		Password:  "secret",
		PlainAttrs: model.Attrs{
			"firstname": {"Gioacchino"},
			"surname":   {"Rossini"},
		},
	}
}

func TestPrepareAttrsFromAny(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	t.Run("resolves plain derived and builtin attributes", func(t *testing.T) {
		p, err := engine.PrepareAttrsFromAny(ctx, testUser(), "", false, false, testProvision())
		require.NoError(t, err)

		assert.Equal(t, "rossini", p.ConnObjectKeyValue)
		assert.Equal(t, "rossini", p.Attrs.First("uid"))
		assert.Equal(t, "rossini", p.Attrs.First(connid.AttrName))
		assert.Equal(t, "Gioacchino Rossini", p.Attrs.First("cn"))
		assert.Equal(t, "ROSSINI", p.Attrs.First("sn"))
		assert.Equal(t, []string{"mail"}, p.MandatoryMissing)

		_, hasPassword := p.Attrs.Find(connid.AttrPassword)
		assert.False(t, hasPassword)

		mail, ok := p.Attrs.Find("mail")
		require.True(t, ok)
		assert.Empty(t, mail.Values)

		require.NotNil(t, p.Enable)
		assert.True(t, *p.Enable)
	})

	t.Run("includes password when requested", func(t *testing.T) {
		p, err := engine.PrepareAttrsFromAny(ctx, testUser(), "", true, false, testProvision())
		require.NoError(t, err)
		assert.Equal(t, "secret", p.Attrs.First(connid.AttrPassword))

		p, err = engine.PrepareAttrsFromAny(ctx, testUser(), "override", true, false, testProvision())
		require.NoError(t, err)
		assert.Equal(t, "override", p.Attrs.First(connid.AttrPassword))
	})

	t.Run("marks mandatory missing", func(t *testing.T) {
		p, err := engine.PrepareAttrsFromAny(ctx, testUser(), "", false, true, testProvision())
		require.NoError(t, err)
		missing, ok := p.Attrs.Find(MandatoryMissingAttr)
		require.True(t, ok)
		assert.Equal(t, []string{"mail"}, missing.Strings())
	})

	t.Run("mandatory password", func(t *testing.T) {
		provision := testProvision()
		for i := range provision.Mapping.Items {
			if provision.Mapping.Items[i].Password {
				provision.Mapping.Items[i].MandatoryCondition = "true"
			}
		}

		user := testUser()
		user.Password = ""
		p, err := engine.PrepareAttrsFromAny(ctx, user, "", true, false, provision)
		require.NoError(t, err)
		assert.Equal(t, []string{"mail", connid.AttrPassword}, p.MandatoryMissing)
		_, hasPassword := p.Attrs.Find(connid.AttrPassword)
		assert.False(t, hasPassword)

		p, err = engine.PrepareAttrsFromAny(ctx, testUser(), "", false, false, provision)
		require.NoError(t, err)
		assert.Equal(t, []string{"mail"}, p.MandatoryMissing)
	})

	t.Run("suspended user is disabled", func(t *testing.T) {
		user := testUser()
		user.Status = model.StatusSuspended
		p, err := engine.PrepareAttrsFromAny(ctx, user, "", false, false, testProvision())
		require.NoError(t, err)
		require.NotNil(t, p.Enable)
		assert.False(t, *p.Enable)
	})

	t.Run("connObjectLink drives the name", func(t *testing.T) {
		provision := testProvision()
		provision.Mapping.ConnObjectLink = `"uid=" + username + ",ou=people"`
		p, err := engine.PrepareAttrsFromAny(ctx, testUser(), "", false, false, provision)
		require.NoError(t, err)
		assert.Equal(t, "uid=rossini,ou=people", p.Attrs.First(connid.AttrName))
	})

	t.Run("invalid transformer fails", func(t *testing.T) {
		provision := testProvision()
		provision.Mapping.Items[3].PropagationTransformer = "upper("
		_, err := engine.PrepareAttrsFromAny(ctx, testUser(), "", false, false, provision)
		assert.Error(t, err)
	})
}

func TestConnObjectKeyValue(t *testing.T) {
	engine, _ := newTestEngine()

	value, ok, err := engine.ConnObjectKeyValue(context.Background(), testUser(), testProvision())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rossini", value)

	_, ok, err = engine.ConnObjectKeyValue(context.Background(), testUser(), &model.Provision{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrepareAttrsFromLinkedAccount(t *testing.T) {
	engine, _ := newTestEngine()
	account := &model.LinkedAccount{
		Key:                "la-1",
		OwnerKey:           "u-1",
		ResourceKey:        "ws-target",
		ConnObjectKeyValue: "rossini-alt",
		PlainAttrs:         model.Attrs{"email": {"alt@example.org"}},
	}

	p, err := engine.PrepareAttrsFromLinkedAccount(context.Background(), testUser(), account, "", false, testProvision())
	require.NoError(t, err)
	assert.Equal(t, "rossini-alt", p.ConnObjectKeyValue)
	assert.Equal(t, "rossini-alt", p.Attrs.First("uid"))
	assert.Equal(t, "rossini-alt", p.Attrs.First(connid.AttrName))
	assert.Equal(t, "alt@example.org", p.Attrs.First("mail"))
	assert.Empty(t, p.MandatoryMissing)
}

func TestApplyPull(t *testing.T) {
	engine, _ := newTestEngine()
	obj := &connid.ConnectorObject{
		ObjectClass: connid.ObjectClassAccount,
		UID:         "rossini",
		Name:        "rossini",
		Attrs: connid.AttributeSet{
			{Name: "uid", Values: []any{"rossini"}},
			{Name: "mail", Values: []any{"rossini@example.org"}},
			{Name: "cn", Values: []any{"ignored"}},
			{Name: "sn", Values: []any{"ignored too"}},
			{Name: connid.AttrPassword, Values: []any{"pulled"}},
			{Name: connid.AttrEnable, Values: []any{false}},
		},
	}

	pulled, err := engine.ApplyPull(context.Background(), obj, testProvision())
	require.NoError(t, err)
	assert.Equal(t, "rossini", pulled.Name)
	assert.Equal(t, "pulled", pulled.Password)
	assert.Equal(t, model.StatusSuspended, pulled.Status)
	assert.Equal(t, []string{"rossini@example.org"}, pulled.Attrs["email"])
	assert.NotContains(t, pulled.Attrs, "cn")
	assert.NotContains(t, pulled.Attrs, "surname")
	assert.NotContains(t, pulled.Attrs, "virtualdata")
}

func TestRefreshVirAttrs(t *testing.T) {
	ctx := context.Background()
	engine, vir := newTestEngine()
	user := testUser()
	obj := &connid.ConnectorObject{
		UID:   "rossini",
		Attrs: connid.AttributeSet{{Name: "extdata", Values: []any{"remote"}}},
	}

	require.NoError(t, engine.RefreshVirAttrs(ctx, user, obj, testProvision()))
	values, ok := vir.Get(user.Key, "virtualdata")
	require.True(t, ok)
	assert.Equal(t, []string{"remote"}, values)

	p, err := engine.PrepareAttrsFromAny(ctx, user, "", false, false, testProvision())
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Attrs.First("extdata"))
}

func TestSnapshot(t *testing.T) {
	keyItem := model.Item{ExtAttrName: "uid", ConnObjectKey: true}
	obj := SnapshotObject(keyItem, &connid.ConnectorObject{
		UID:  "abc",
		Name: "rossini",
		Attrs: connid.AttributeSet{
			{Name: "uid", Values: []any{"rossini"}},
			{Name: connid.AttrPassword, Values: []any{"x"}},
		},
	})

	assert.Equal(t, "uid==rossini", obj.FIQL)
	var schemas []string
	for _, a := range obj.Attrs {
		schemas = append(schemas, a.Schema)
	}
	assert.Equal(t, []string{"__NAME__", "__UID__", "uid"}, schemas)
}
