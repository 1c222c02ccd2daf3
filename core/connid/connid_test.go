package connid_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/connid/memory"
	"idm-reconciler/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAttributeSet(t *testing.T) {
	var set connid.AttributeSet
	set = set.Set("mail", "a@b")
	set = set.Merge("MAIL", "c@d")
	set = set.Set("cn", "A")

	a, ok := set.Find("Mail")
	require.True(t, ok)
	assert.Equal(t, []string{"a@b", "c@d"}, a.Strings())
	assert.Equal(t, "A", set.First("cn"))

	trimmed := set.Remove("cn")
	assert.Len(t, trimmed, 1)
	assert.Len(t, set, 2, "Remove does not mutate the receiver")
}

func TestFilter(t *testing.T) {
	obj := &connid.ConnectorObject{UID: "u1", Name: "Rossini", Attrs: connid.AttributeSet{
		{Name: "mail", Values: []any{"rossini@example.org"}},
	}}

	tests := []struct {
		name   string
		filter *connid.Filter
		want   bool
	}{
		{"nil", nil, true},
		{"uid", connid.Equals(connid.AttrUID, "u1"), true},
		{"name exact miss", connid.Equals(connid.AttrName, "rossini"), false},
		{"name ignore case", connid.EqualsIgnoreCase(connid.AttrName, "rossini"), true},
		{"and", connid.And(connid.Equals("mail", "rossini@example.org"), connid.Equals(connid.AttrUID, "u2")), false},
		{"or", connid.Or(connid.Equals("mail", "x"), connid.Equals(connid.AttrUID, "u1")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(obj))
		})
	}

	assert.Equal(t, "(mail==x,__UID__==u1)", connid.Or(connid.Equals("mail", "x"), connid.Equals(connid.AttrUID, "u1")).String())
}

func TestConfiguration(t *testing.T) {
	conf := connid.NewConfiguration(
		[]model.ConfProperty{{Name: "url", Values: []any{"ldap://a"}}, {Name: "pageSize", Values: []any{float64(100)}}},
		[]model.ConfProperty{{Name: "url", Values: []any{"ldap://b"}}},
	)
	assert.Equal(t, "ldap://b", conf.String("url", ""))
	assert.Equal(t, 100, conf.Int("pageSize", 10))
	assert.Equal(t, 10, conf.Int("missing", 10))
	assert.False(t, conf.Bool("missing"))
}

func newManager(t *testing.T) *connid.Manager {
	t.Helper()
	reg := connid.NewRegistry()
	reg.Register(memory.Info, memory.Factory)
	return connid.NewManager(reg, zap.NewNop())
}

func memoryInstance(instance string, caps ...string) *model.ConnInstance {
	return &model.ConnInstance{
		Key:          "conn-" + instance,
		BundleName:   memory.BundleName,
		Capabilities: caps,
		Conf:         []model.ConfProperty{{Name: "instance", Values: []any{instance}}},
		LastChange:   time.Unix(100, 0),
	}
}

func TestManager_CapabilityGuard(t *testing.T) {
	t.Cleanup(func() { memory.Reset("guard") })
	m := newManager(t)
	ci := memoryInstance("guard", "SEARCH")
	res := &model.ExternalResource{Key: "r1", ConnectorKey: ci.Key}

	conn, err := m.GetConnector(ci, res)
	require.NoError(t, err)

	_, err = conn.Create(context.Background(), connid.ObjectClassAccount, connid.AttributeSet{{Name: connid.AttrName, Values: []any{"x"}}}, connid.OperationOptions{})
	var ce *connid.ConnectorError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "capability CREATE not enabled")

	_, err = conn.Search(context.Background(), connid.ObjectClassAccount, nil, func(*connid.ConnectorObject) bool { return true }, connid.OperationOptions{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"SEARCH"}, conn.Capabilities().Names())
}

func TestManager_CacheAndReload(t *testing.T) {
	t.Cleanup(func() { memory.Reset("cache") })
	m := newManager(t)
	ci := memoryInstance("cache")
	res := &model.ExternalResource{Key: "r1", ConnectorKey: ci.Key}

	var wg sync.WaitGroup
	conns := make([]connid.Connector, 8)
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.GetConnector(ci, res)
			assert.NoError(t, err)
			conns[i] = c
		}(i)
	}
	wg.Wait()
	for _, c := range conns[1:] {
		assert.Same(t, conns[0], c)
	}

	ci.LastChange = ci.LastChange.Add(time.Second)
	rebuilt, err := m.GetConnector(ci, res)
	require.NoError(t, err)
	assert.NotSame(t, conns[0], rebuilt, "configuration change rebuilds")

	assert.Equal(t, 1, m.Reload())
	again, err := m.GetConnector(ci, res)
	require.NoError(t, err)
	assert.NotSame(t, rebuilt, again)
}

func TestManager_UnknownBundle(t *testing.T) {
	m := newManager(t)
	_, err := m.NewConnector(&model.ConnInstance{Key: "x", BundleName: "nope"}, nil)
	var cfgErr *connid.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

type slowConnector struct {
	connid.Connector
}

func (slowConnector) Capabilities() connid.Capabilities {
	return connid.NewCapabilities(connid.CapTest)
}

func (slowConnector) Test(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestManager_RequestTimeout(t *testing.T) {
	reg := connid.NewRegistry()
	reg.Register(connid.BundleInfo{Name: "slow"}, func(connid.Configuration) (connid.Connector, error) {
		return slowConnector{}, nil
	})
	m := connid.NewManager(reg, zap.NewNop())

	conn, err := m.NewConnector(&model.ConnInstance{Key: "s", BundleName: "slow", ConnRequestTimeout: 1}, nil)
	require.NoError(t, err)

	start := time.Now()
	err = conn.Test(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRegistry_Bundles(t *testing.T) {
	reg := connid.NewRegistry()
	reg.Register(connid.BundleInfo{Name: "b"}, nil)
	reg.Register(connid.BundleInfo{Name: "a"}, nil)
	infos := reg.Bundles()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, connid.Classify(nil))

	typed := clienterr.New(clienterr.NotFound, "x")
	assert.Same(t, typed, connid.Classify(typed))

	err := connid.Classify(&connid.ConfigurationError{Bundle: "ldap", Err: errors.New("url is required")})
	assert.True(t, clienterr.Is(err, clienterr.Configuration))
	assert.ErrorContains(t, err, "connector bundle ldap: url is required")

	err = connid.Classify(connid.Wrap("test", errors.New("refused")))
	assert.True(t, clienterr.Is(err, clienterr.Connector))

	plain := errors.New("plain")
	assert.Equal(t, plain, connid.Classify(plain))
}
