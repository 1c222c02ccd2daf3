package memory

import (
	"context"
	"errors"
	"testing"

	"idm-reconciler/core/connid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(name string, attrs ...connid.Attribute) connid.AttributeSet {
	set := connid.AttributeSet{{Name: connid.AttrName, Values: []any{name}}}
	return append(set, attrs...)
}

func newConnector(t *testing.T) *Connector {
	t.Helper()
	store, err := NewStore()
	require.NoError(t, err)
	return New(store)
}

func TestConnector_CreateSearchUpdateDelete(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t)

	uid, err := c.Create(ctx, connid.ObjectClassAccount, account("rossini",
		connid.Attribute{Name: "mail", Values: []any{"rossini@example.org"}},
		connid.Attribute{Name: connid.AttrPassword, Values: []any{"secret"}},
	), connid.OperationOptions{})
	require.NoError(t, err)
	assert.Equal(t, "rossini", uid)

	_, err = c.Create(ctx, connid.ObjectClassAccount, account("rossini"), connid.OperationOptions{})
	assert.ErrorIs(t, err, connid.ErrAlreadyExists)

	obj, err := c.GetObject(ctx, connid.ObjectClassAccount, "rossini", connid.OperationOptions{})
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, "rossini@example.org", obj.Attrs.First("mail"))
	_, hasPwd := obj.Attrs.Find(connid.AttrPassword)
	assert.False(t, hasPwd, "passwords are never read back")

	var found []*connid.ConnectorObject
	_, err = c.Search(ctx, connid.ObjectClassAccount, connid.EqualsIgnoreCase("mail", "ROSSINI@example.org"),
		connid.Collector(&found, 0), connid.OperationOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = c.Update(ctx, connid.ObjectClassAccount, "rossini", connid.AttributeSet{
		{Name: connid.AttrName, Values: []any{"rossini2"}},
		{Name: "mail", Values: nil},
	}, connid.OperationOptions{})
	require.NoError(t, err)

	obj, err = c.GetObject(ctx, connid.ObjectClassAccount, "rossini", connid.OperationOptions{})
	require.NoError(t, err)
	assert.Equal(t, "rossini2", obj.Name)
	_, hasMail := obj.Attrs.Find("mail")
	assert.False(t, hasMail)

	require.NoError(t, c.Delete(ctx, connid.ObjectClassAccount, "rossini", connid.OperationOptions{}))
	err = c.Delete(ctx, connid.ObjectClassAccount, "rossini", connid.OperationOptions{})
	assert.ErrorIs(t, err, connid.ErrUnknownUID)

	obj, err = c.GetObject(ctx, connid.ObjectClassAccount, "rossini", connid.OperationOptions{})
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestConnector_SearchByNameIndex(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t)
	_, err := c.Create(ctx, connid.ObjectClassAccount, account("Verdi"), connid.OperationOptions{})
	require.NoError(t, err)

	var exact []*connid.ConnectorObject
	_, err = c.Search(ctx, connid.ObjectClassAccount, connid.Equals(connid.AttrName, "verdi"), connid.Collector(&exact, 0), connid.OperationOptions{})
	require.NoError(t, err)
	assert.Empty(t, exact)

	var ci []*connid.ConnectorObject
	_, err = c.Search(ctx, connid.ObjectClassAccount, connid.EqualsIgnoreCase(connid.AttrName, "verdi"), connid.Collector(&ci, 0), connid.OperationOptions{})
	require.NoError(t, err)
	require.Len(t, ci, 1)
	assert.Equal(t, "Verdi", ci[0].UID)
}

func TestConnector_Paging(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t)
	for _, n := range []string{"c", "a", "e", "b", "d"} {
		_, err := c.Create(ctx, connid.ObjectClassAccount, account(n), connid.OperationOptions{})
		require.NoError(t, err)
	}

	var page []*connid.ConnectorObject
	res, err := c.Search(ctx, connid.ObjectClassAccount, nil, connid.Collector(&page, 0), connid.OperationOptions{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].UID)
	assert.Equal(t, "2", res.PagedResultsCookie)
	assert.Equal(t, 3, res.RemainingPagedResults)

	page = nil
	res, err = c.Search(ctx, connid.ObjectClassAccount, nil, connid.Collector(&page, 0), connid.OperationOptions{
		PageSize: 2, PagedResultsCookie: res.PagedResultsCookie,
		SortKeys: nil,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, []string{page[0].UID, page[1].UID})

	page = nil
	_, err = c.Search(ctx, connid.ObjectClassAccount, nil, connid.Collector(&page, 0), connid.OperationOptions{
		SortKeys: []connid.SortKey{{Field: connid.AttrName, Ascending: false}},
	})
	require.NoError(t, err)
	assert.Equal(t, "e", page[0].UID)

	var capped []*connid.ConnectorObject
	_, err = c.Search(ctx, connid.ObjectClassAccount, nil, connid.Collector(&capped, 3), connid.OperationOptions{})
	require.NoError(t, err)
	assert.Len(t, capped, 3)
}

func TestConnector_Sync(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t)

	start, err := c.LatestSyncToken(ctx, connid.ObjectClassAccount)
	require.NoError(t, err)

	_, err = c.Create(ctx, connid.ObjectClassAccount, account("bellini"), connid.OperationOptions{})
	require.NoError(t, err)
	_, err = c.Create(ctx, connid.ObjectClassGroup, account("staff"), connid.OperationOptions{})
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, connid.ObjectClassAccount, "bellini", connid.OperationOptions{}))

	var deltas []*connid.SyncDelta
	next, err := c.Sync(ctx, connid.ObjectClassAccount, start, func(d *connid.SyncDelta) bool {
		deltas = append(deltas, d)
		return true
	}, connid.OperationOptions{})
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	assert.Equal(t, connid.DeltaCreateOrUpdate, deltas[0].Type)
	assert.Equal(t, connid.DeltaDelete, deltas[1].Type)
	assert.Nil(t, deltas[1].Object)
	assert.Equal(t, connid.SyncToken("3"), next)

	deltas = nil
	_, err = c.Sync(ctx, connid.ObjectClassAccount, next, func(d *connid.SyncDelta) bool {
		deltas = append(deltas, d)
		return true
	}, connid.OperationOptions{})
	require.NoError(t, err)
	assert.Empty(t, deltas)

	_, err = c.Sync(ctx, connid.ObjectClassAccount, "not-a-number", func(*connid.SyncDelta) bool { return true }, connid.OperationOptions{})
	assert.Error(t, err)
}

func TestFactory_SharedInstance(t *testing.T) {
	t.Cleanup(func() { Reset("factory-test") })
	conf := connid.Configuration{"instance": {"factory-test"}}

	a, err := Factory(conf)
	require.NoError(t, err)
	b, err := Factory(conf)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.Create(ctx, connid.ObjectClassAccount, account("puccini"), connid.OperationOptions{})
	require.NoError(t, err)

	obj, err := b.GetObject(ctx, connid.ObjectClassAccount, "puccini", connid.OperationOptions{})
	require.NoError(t, err)
	assert.NotNil(t, obj)

	failing, err := Factory(connid.Configuration{"instance": {"factory-test"}, "failTest": {true}})
	require.NoError(t, err)
	assert.Error(t, failing.Test(ctx))
	assert.NoError(t, a.Test(ctx))
}

func TestConnector_UnsupportedObjectClass(t *testing.T) {
	c := newConnector(t)
	_, err := c.Create(context.Background(), "__PRINTER__", account("hp"), connid.OperationOptions{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, connid.ErrAlreadyExists))
}

func TestConnector_Schema(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t)
	_, err := c.Create(ctx, connid.ObjectClassAccount, account("x", connid.Attribute{Name: "mail", Values: []any{"x@y"}}), connid.OperationOptions{})
	require.NoError(t, err)

	infos, err := c.Schema(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, connid.ObjectClassAccount, infos[0].Type)
	assert.Equal(t, []string{connid.AttrName, "mail"}, infos[0].Attributes)
}
