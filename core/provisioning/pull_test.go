package provisioning

import (
	"context"
	"encoding/json"
	"testing"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) byName(t *testing.T, name string) []model.Any {
	t.Helper()
	found, err := f.store.FindAnysByName(context.Background(), "USER", name, false)
	require.NoError(t, err)
	return found
}

func TestPullUnmatched(t *testing.T) {
	tests := []struct {
		name     string
		rule     UnmatchingRule
		status   Status
		created  bool
		assigned bool
	}{
		{name: "provision", rule: UnmatchingProvision, status: StatusSuccess, created: true},
		{name: "assign", rule: UnmatchingAssign, status: StatusSuccess, created: true, assigned: true},
		{name: "unlink", rule: UnmatchingUnlink, status: StatusSuccess, created: true},
		{name: "ignore", rule: UnmatchingIgnore, status: StatusIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.remote(t, attr(connid.AttrName, "puccini"), attr("uid", "puccini"), attr("mail", "puccini@example.org"))
			task := DefaultPullTask("/")
			task.UnmatchingRule = tt.rule

			reports, err := f.puller.Pull(context.Background(), f.binding, f.conn, "uid", "puccini", "", task)
			require.NoError(t, err)
			require.Len(t, reports, 1)
			assert.Equal(t, tt.status, reports[0].Status, reports[0].Message)
			assert.Equal(t, "puccini", reports[0].UIDValue)

			found := f.byName(t, "puccini")
			if !tt.created {
				assert.Empty(t, found)
				return
			}
			require.Len(t, found, 1)
			assert.Equal(t, OperationCreate, reports[0].Operation)
			assert.Equal(t, found[0].Key, reports[0].Key)
			assert.Equal(t, "/", found[0].RealmPath)
			assert.Equal(t, model.StatusActive, found[0].Status)
			assert.Equal(t, []string{"puccini@example.org"}, found[0].PlainAttrs["email"])
			assert.Equal(t, tt.assigned, found[0].HasResource("ws-target"))
		})
	}
}

func TestPullCreateNotAllowed(t *testing.T) {
	f := newFixture(t)
	f.remote(t, attr(connid.AttrName, "puccini"), attr("uid", "puccini"))
	task := DefaultPullTask("/")
	task.PerformCreate = false

	reports, err := f.puller.Pull(context.Background(), f.binding, f.conn, "uid", "puccini", "", task)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, StatusIgnore, reports[0].Status)
	assert.Equal(t, "create not allowed", reports[0].Message)
	assert.Empty(t, f.byName(t, "puccini"))
}

func TestPullNoRemoteObject(t *testing.T) {
	f := newFixture(t)

	reports, err := f.puller.Pull(context.Background(), f.binding, f.conn, "uid", "nobody", "", DefaultPullTask("/"))
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestPullUpdate(t *testing.T) {
	t.Run("changed", func(t *testing.T) {
		f := newFixture(t)
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "new@example.org"))

		reports, err := f.puller.Pull(context.Background(), f.binding, f.conn, "uid", "rossini", "", DefaultPullTask("/"))
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, OperationUpdate, reports[0].Operation)
		assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)
		assert.Equal(t, "u-1", reports[0].Key)
		assert.Equal(t, []string{"new@example.org"}, f.entity(t, "u-1").PlainAttrs["email"])
	})

	t.Run("unchanged", func(t *testing.T) {
		f := newFixture(t)
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "rossini@example.org"))

		reports, err := f.puller.Pull(context.Background(), f.binding, f.conn, "uid", "rossini", "", DefaultPullTask("/"))
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, OperationNone, reports[0].Operation)
		assert.Equal(t, StatusIgnore, reports[0].Status)
		assert.Equal(t, "unchanged", reports[0].Message)
	})

	t.Run("dry run", func(t *testing.T) {
		f := newFixture(t)
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "new@example.org"))
		task := DefaultPullTask("/")
		task.DryRun = true

		reports, err := f.puller.Pull(context.Background(), f.binding, f.conn, "uid", "rossini", "", task)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, OperationUpdate, reports[0].Operation)
		assert.Equal(t, StatusIgnore, reports[0].Status)
		assert.Equal(t, "dry run", reports[0].Message)
		assert.Equal(t, []string{"rossini@example.org"}, f.entity(t, "u-1").PlainAttrs["email"])
	})

	t.Run("enable flag sets the status", func(t *testing.T) {
		f := newFixture(t)
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"),
			attr("mail", "rossini@example.org"), attr(connid.AttrEnable, false))

		reports, err := f.puller.Pull(context.Background(), f.binding, f.conn, "uid", "rossini", "", DefaultPullTask("/"))
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)
		assert.Equal(t, model.StatusSuspended, f.entity(t, "u-1").Status)
	})
}

func TestPullAmbiguousMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveAny(ctx, &model.Any{
		Key: "u-3", Kind: model.KindUser, Type: "USER", Name: "Rossini", RealmPath: "/",
		PlainAttrs: model.Attrs{"email": {"other@example.org"}},
	}))
	f.binding.Provision.IgnoreCaseMatch = true
	f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "new@example.org"))

	reports, err := f.puller.Pull(ctx, f.binding, f.conn, "uid", "rossini", "", DefaultPullTask("/"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "u-1", reports[0].Key)
	assert.Equal(t, OperationUpdate, reports[0].Operation)
	assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)
	assert.NoError(t, Failures(reports))

	assert.Equal(t, []string{"new@example.org"}, f.entity(t, "u-1").PlainAttrs["email"])
	assert.Equal(t, []string{"other@example.org"}, f.entity(t, "u-3").PlainAttrs["email"])
	assert.Equal(t, 1, f.logs.FilterMessage("More than one match found, using the first").Len())

	t.Run("pulling again picks the same entity", func(t *testing.T) {
		again, err := f.puller.Pull(ctx, f.binding, f.conn, "uid", "rossini", "", DefaultPullTask("/"))
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, reports[0].Key, again[0].Key)
		assert.Equal(t, StatusIgnore, again[0].Status)
		assert.Equal(t, "unchanged", again[0].Message)
	})
}

func TestPullMatchedRules(t *testing.T) {
	tests := []struct {
		name     string
		rule     MatchingRule
		op       Operation
		assigned bool
	}{
		{name: "deprovision", rule: MatchingDeprovision, op: OperationDelete},
		{name: "unassign", rule: MatchingUnassign, op: OperationDelete},
		{name: "link", rule: MatchingLink, op: OperationNone, assigned: true},
		{name: "unlink", rule: MatchingUnlink, op: OperationNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"))
			if tt.rule != MatchingLink {
				a := f.entity(t, "u-1")
				a.AssignResource("ws-target")
				require.NoError(t, f.store.SaveAny(ctx, a))
			}
			task := DefaultPullTask("/")
			task.MatchingRule = tt.rule

			reports, err := f.puller.Pull(ctx, f.binding, f.conn, "uid", "rossini", "", task)
			require.NoError(t, err)
			require.Len(t, reports, 1)
			assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)
			assert.Equal(t, tt.op, reports[0].Operation)
			assert.Equal(t, tt.assigned, f.entity(t, "u-1").HasResource("ws-target"))
		})
	}
}

func TestPullDeleteDelta(t *testing.T) {
	t.Run("deletes the matched entity", func(t *testing.T) {
		f := newFixture(t)
		delta := &connid.SyncDelta{Type: connid.DeltaDelete, UID: "rossini"}

		reports := f.puller.HandleDelta(context.Background(), f.binding, delta, DefaultPullTask("/"))

		require.Len(t, reports, 1)
		assert.Equal(t, OperationDelete, reports[0].Operation)
		assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)
		a, err := f.store.FindAny(context.Background(), "u-1")
		require.NoError(t, err)
		assert.Nil(t, a)
	})

	t.Run("delete not allowed", func(t *testing.T) {
		f := newFixture(t)
		delta := &connid.SyncDelta{Type: connid.DeltaDelete, UID: "rossini"}
		task := DefaultPullTask("/")
		task.PerformDelete = false

		reports := f.puller.HandleDelta(context.Background(), f.binding, delta, task)

		require.Len(t, reports, 1)
		assert.Equal(t, StatusIgnore, reports[0].Status)
		f.entity(t, "u-1")
	})

	t.Run("nothing to delete", func(t *testing.T) {
		f := newFixture(t)
		delta := &connid.SyncDelta{Type: connid.DeltaDelete, UID: "nobody"}

		reports := f.puller.HandleDelta(context.Background(), f.binding, delta, DefaultPullTask("/"))

		require.Len(t, reports, 1)
		assert.Equal(t, StatusIgnore, reports[0].Status)
		assert.Equal(t, OperationNone, reports[0].Operation)
	})
}

func TestPullLinkedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveLinkedAccount(ctx, &model.LinkedAccount{
		Key: "la-1", OwnerKey: "u-1", ResourceKey: "ws-target", ConnObjectKeyValue: "rossini-alt",
	}))
	f.remote(t, attr(connid.AttrName, "rossini-alt"), attr("uid", "rossini-alt"), attr("mail", "alt@example.org"))

	reports, err := f.puller.Pull(ctx, f.binding, f.conn, "uid", "rossini-alt", "", DefaultPullTask("/"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "la-1", reports[0].Key)
	assert.Equal(t, OperationUpdate, reports[0].Operation)
	assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)

	accounts, err := f.store.LinkedAccountsOf(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, []string{"alt@example.org"}, accounts[0].PlainAttrs["email"])
	assert.Equal(t, []string{"rossini@example.org"}, f.entity(t, "u-1").PlainAttrs["email"])
}

func TestPullRemediation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote(t, attr(connid.AttrName, "puccini"), attr("uid", "puccini"), attr("mail", "puccini@example.org"))
	task := DefaultPullTask("/")
	task.Remediation = true

	reports, err := f.puller.Pull(ctx, f.binding, f.conn, "uid", "puccini", "/missing", task)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, StatusFailure, reports[0].Status)
	assert.Contains(t, reports[0].Message, "Realm /missing")
	assert.Contains(t, reports[0].Message, "remediation")

	list, total, err := f.store.ListRemediations(ctx, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "USER", list[0].AnyType)
	assert.Equal(t, string(OperationCreate), list[0].Operation)
	assert.Equal(t, "ws-target", list[0].ResourceKey)
	assert.Equal(t, "puccini", list[0].RemoteName)

	var payload model.Any
	require.NoError(t, json.Unmarshal([]byte(list[0].Payload), &payload))
	assert.Equal(t, "puccini", payload.Name)
	assert.Equal(t, "/missing", payload.RealmPath)
}

func TestPullFailureWithoutRemediation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote(t, attr(connid.AttrName, "puccini"), attr("uid", "puccini"))

	reports, err := f.puller.Pull(ctx, f.binding, f.conn, "uid", "puccini", "relative", DefaultPullTask("/"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, StatusFailure, reports[0].Status)
	assert.Contains(t, reports[0].Message, "InvalidRealm")

	_, total, err := f.store.ListRemediations(ctx, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Error(t, Failures(reports))
}

func TestPullAll(t *testing.T) {
	t.Run("incremental stores the token", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.remote(t, attr(connid.AttrName, "puccini"), attr("uid", "puccini"))
		f.remote(t, attr(connid.AttrName, "mascagni"), attr("uid", "mascagni"))
		task := DefaultPullTask("/")
		task.PullMode = PullIncremental

		reports, err := f.puller.PullAll(ctx, f.binding, f.conn, task)
		require.NoError(t, err)
		assert.Len(t, reports, 2)
		assert.NoError(t, Failures(reports))
		assert.NotEmpty(t, f.binding.Provision.SyncToken)

		res, err := f.store.FindResource(ctx, "ws-target")
		require.NoError(t, err)
		assert.Equal(t, f.binding.Provision.SyncToken, res.Provisions[0].SyncToken)

		reports, err = f.puller.PullAll(ctx, f.binding, f.conn, task)
		require.NoError(t, err)
		assert.Empty(t, reports)
	})

	t.Run("incremental dry run keeps the token", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.remote(t, attr(connid.AttrName, "puccini"), attr("uid", "puccini"))
		task := DefaultPullTask("/")
		task.PullMode = PullIncremental
		task.DryRun = true

		reports, err := f.puller.PullAll(ctx, f.binding, f.conn, task)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, StatusIgnore, reports[0].Status)
		assert.Empty(t, f.binding.Provision.SyncToken)
		res, err := f.store.FindResource(ctx, "ws-target")
		require.NoError(t, err)
		assert.Empty(t, res.Provisions[0].SyncToken)

		task.DryRun = false
		reports, err = f.puller.PullAll(ctx, f.binding, f.conn, task)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)
		assert.Len(t, f.byName(t, "puccini"), 1)
	})

	t.Run("full stores the latest token", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.remote(t, attr(connid.AttrName, "puccini"), attr("uid", "puccini"))
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "rossini@example.org"))

		reports, err := f.puller.PullAll(ctx, f.binding, f.conn, DefaultPullTask("/"))
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Len(t, f.byName(t, "puccini"), 1)
		latest, err := f.conn.LatestSyncToken(ctx, connid.ObjectClassAccount)
		require.NoError(t, err)
		assert.Equal(t, string(latest), f.binding.Provision.SyncToken)
	})

	t.Run("filtered", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.remote(t, attr(connid.AttrName, "puccini"), attr("uid", "puccini"))
		f.remote(t, attr(connid.AttrName, "mascagni"), attr("uid", "mascagni"))
		task := DefaultPullTask("/")
		task.PullMode = PullFiltered
		task.Filter = connid.Equals("uid", "mascagni")

		reports, err := f.puller.PullAll(ctx, f.binding, f.conn, task)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Empty(t, f.byName(t, "puccini"))
		assert.Len(t, f.byName(t, "mascagni"), 1)
		assert.Empty(t, f.binding.Provision.SyncToken)
	})

	t.Run("filtered without filter", func(t *testing.T) {
		f := newFixture(t)
		task := DefaultPullTask("/")
		task.PullMode = PullFiltered

		_, err := f.puller.PullAll(context.Background(), f.binding, f.conn, task)
		assert.Error(t, err)
	})
}

func TestPullLowercaseName(t *testing.T) {
	f := newFixture(t)
	f.remote(t, attr(connid.AttrName, "Puccini"), attr("uid", "Puccini"))
	task := DefaultPullTask("/")
	task.Actions = []string{"LowercaseName"}

	reports, err := f.puller.Pull(context.Background(), f.binding, f.conn, "uid", "Puccini", "", task)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)
	assert.Equal(t, "puccini", reports[0].Name)
	assert.Len(t, f.byName(t, "puccini"), 1)
}
